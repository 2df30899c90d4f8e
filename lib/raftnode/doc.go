/*
Package raftnode embeds a raft consensus module (go.etcd.io/raft/v3) into a key-value node.

A Node owns all consensus state and is driven by a single goroutine (Node.Run). Serving
goroutines never touch that state; they build a Request, hand it over with Submit and
wait on the request's Completion:

	req := raftnode.NewCommandRequestFromStrings("SET", "k", "v")
	if err := node.Submit(req); err != nil {
		return err
	}
	res := req.Wait(ctx)

The loop wakes on three sources: the raft tick, the RequestQueue and completions of
asynchronous peer I/O. Commands are serialized into log entries, proposed and tracked by
their log index in the CommitTracker. Once an entry commits it is applied to the
IStateMachine and the waiting caller is resumed with the reply.

Peers are reached over NodeConnections, a small state machine
(disconnected, resolving, connecting, connected) whose blocking steps run on goroutines
and report back to the loop. Messages for a peer that is not connected are dropped;
raft retransmits them once the connection is up.
*/
package raftnode
