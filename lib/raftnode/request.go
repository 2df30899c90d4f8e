package raftnode

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/rKV/lib/cluster"
	"go.etcd.io/raft/v3/raftpb"
)

// --------------------------------------------------------------------------
// Request Kinds
// --------------------------------------------------------------------------

// RequestKind is the type tag of a request
type RequestKind uint8

const (
	KindAddNode RequestKind = iota + 1
	KindAppendEntries
	KindRequestVote
	KindCommand
	KindInfo
)

func (k RequestKind) String() string {
	switch k {
	case KindAddNode:
		return "add-node"
	case KindAppendEntries:
		return "append-entries"
	case KindRequestVote:
		return "request-vote"
	case KindCommand:
		return "command"
	case KindInfo:
		return "info"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// KindOf classifies a raft message. Vote traffic is RequestVote, everything else
// (appends, heartbeats, snapshots, their responses) travels as AppendEntries.
func KindOf(m raftpb.Message) RequestKind {
	switch m.Type {
	case raftpb.MsgVote, raftpb.MsgVoteResp, raftpb.MsgPreVote, raftpb.MsgPreVoteResp:
		return KindRequestVote
	default:
		return KindAppendEntries
	}
}

// --------------------------------------------------------------------------
// Completion
// --------------------------------------------------------------------------

// Result is delivered to the caller of a request once it completes.
type Result struct {
	// Value is the reply of the storage engine (Command) or the status report (Info)
	Value []byte
	// Term and Index describe the local raft state after an AppendEntries/RequestVote
	// was stepped, or the log position a Command was committed at
	Term  uint64
	Index uint64
	Err   error
}

// Completion is a one-shot handle used to resume the caller of a request.
// It is resolved exactly once, from the execution loop.
type Completion struct {
	ch       chan Result
	resolved atomic.Bool
}

func newCompletion() *Completion {
	return &Completion{ch: make(chan Result, 1)}
}

// resolve delivers the result. It returns false if the completion was already resolved.
func (c *Completion) resolve(r Result) bool {
	if !c.resolved.CompareAndSwap(false, true) {
		return false
	}
	c.ch <- r
	return true
}

// Done returns a channel that receives the result once
func (c *Completion) Done() <-chan Result {
	return c.ch
}

// Resolved reports whether a result was delivered
func (c *Completion) Resolved() bool {
	return c.resolved.Load()
}

// Wait blocks until the request completes or ctx is done. A request that is abandoned
// by ctx is still resolved by the loop later, the result is then dropped.
func (c *Completion) Wait(ctx context.Context) Result {
	select {
	case r := <-c.ch:
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Request is a unit of work handed from a serving goroutine to the execution loop.
// The set of implementations is closed: AddNodeRequest, AppendEntriesRequest,
// RequestVoteRequest, CommandRequest and InfoRequest.
type Request interface {
	Kind() RequestKind
	Completion() *Completion
	isRequest()
}

type requestBase struct {
	done *Completion
}

func newRequestBase() requestBase {
	return requestBase{done: newCompletion()}
}

func (r *requestBase) Completion() *Completion { return r.done }

// Wait is a shortcut for Completion().Wait(ctx)
func (r *requestBase) Wait(ctx context.Context) Result { return r.done.Wait(ctx) }

func (r *requestBase) isRequest() {}

// AddNodeRequest registers a peer with the node
type AddNodeRequest struct {
	requestBase
	Peer cluster.PeerRecord
}

func NewAddNodeRequest(peer cluster.PeerRecord) *AddNodeRequest {
	return &AddNodeRequest{requestBase: newRequestBase(), Peer: peer}
}

func (r *AddNodeRequest) Kind() RequestKind { return KindAddNode }

// AppendEntriesRequest carries an inbound append/heartbeat/snapshot raft message
type AppendEntriesRequest struct {
	requestBase
	Source uint64
	Msg    raftpb.Message
}

func (r *AppendEntriesRequest) Kind() RequestKind { return KindAppendEntries }

// RequestVoteRequest carries an inbound (pre-)vote raft message
type RequestVoteRequest struct {
	requestBase
	Source uint64
	Msg    raftpb.Message
}

func (r *RequestVoteRequest) Kind() RequestKind { return KindRequestVote }

// NewRaftMessageRequest wraps an inbound raft message sent by node source.
// The returned request is an *AppendEntriesRequest or a *RequestVoteRequest.
func NewRaftMessageRequest(source uint64, msg raftpb.Message) Request {
	if KindOf(msg) == KindRequestVote {
		return &RequestVoteRequest{requestBase: newRequestBase(), Source: source, Msg: msg}
	}
	return &AppendEntriesRequest{requestBase: newRequestBase(), Source: source, Msg: msg}
}

// requestFlags mark the lifecycle state of a command
type requestFlags uint8

const (
	flagPendingCommit requestFlags = 1 << iota
)

// CommandRequest replicates an argument vector through the raft log and applies it
// to the storage engine once committed
type CommandRequest struct {
	requestBase
	Args [][]byte

	// set by the execution loop once the entry was appended
	flags requestFlags
	index uint64
	term  uint64
}

func NewCommandRequest(args [][]byte) *CommandRequest {
	return &CommandRequest{requestBase: newRequestBase(), Args: args}
}

// NewCommandRequestFromStrings is a convenience wrapper around NewCommandRequest
func NewCommandRequestFromStrings(args ...string) *CommandRequest {
	b := make([][]byte, len(args))
	for i, a := range args {
		b[i] = []byte(a)
	}
	return NewCommandRequest(b)
}

func (r *CommandRequest) Kind() RequestKind { return KindCommand }

// PendingCommit reports whether the command was appended and waits for its commit.
// Only meaningful on the execution loop.
func (r *CommandRequest) PendingCommit() bool { return r.flags&flagPendingCommit != 0 }

// InfoRequest asks for a status report
type InfoRequest struct {
	requestBase
}

func NewInfoRequest() *InfoRequest {
	return &InfoRequest{requestBase: newRequestBase()}
}

func (r *InfoRequest) Kind() RequestKind { return KindInfo }
