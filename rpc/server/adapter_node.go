package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/rKV/lib/cluster"
	"github.com/ValentinKolb/rKV/lib/raftnode"
	"github.com/ValentinKolb/rKV/rpc/common"
	"go.etcd.io/raft/v3/raftpb"
)

// --------------------------------------------------------------------------
// Node administration
// --------------------------------------------------------------------------

// NewNodeServerAdapter creates an adapter for add-node and info requests
func NewNodeServerAdapter(node raftnode.Submitter, timeout time.Duration) IRPCServerAdapter {
	return &nodeServerAdapterImpl{node: node, timeout: timeout}
}

type nodeServerAdapterImpl struct {
	node    raftnode.Submitter
	timeout time.Duration
}

func (adapter *nodeServerAdapterImpl) MessageTypes() []common.MessageType {
	return []common.MessageType{common.MsgTNodeAdd, common.MsgTNodeInfo}
}

func (adapter *nodeServerAdapterImpl) Handle(_ uint64, req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTNodeAdd:
		addr, err := cluster.ParseAddress(req.Addr)
		if err != nil {
			return common.NewAddNodeResponse(0, 0, err)
		}
		res := submitAndWait(adapter.node, raftnode.NewAddNodeRequest(cluster.PeerRecord{ID: req.NodeID, Addr: addr}), adapter.timeout)
		return common.NewAddNodeResponse(res.Term, res.Index, res.Err)
	case common.MsgTNodeInfo:
		res := submitAndWait(adapter.node, raftnode.NewInfoRequest(), adapter.timeout)
		return common.NewInfoResponse(res.Value, res.Err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC NodeAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}

// --------------------------------------------------------------------------
// Messages of other cluster members
// --------------------------------------------------------------------------

// NewPeerServerAdapter creates an adapter that steps raft messages of other nodes
func NewPeerServerAdapter(node raftnode.Submitter, timeout time.Duration) IRPCServerAdapter {
	return &peerServerAdapterImpl{node: node, timeout: timeout}
}

type peerServerAdapterImpl struct {
	node    raftnode.Submitter
	timeout time.Duration
}

func (adapter *peerServerAdapterImpl) MessageTypes() []common.MessageType {
	return []common.MessageType{common.MsgTRaftAppendEntries, common.MsgTRaftRequestVote}
}

func (adapter *peerServerAdapterImpl) Handle(senderID uint64, req *common.Message) *common.Message {
	if senderID == 0 {
		return common.NewRaftResponse(req.MsgType, 0, 0, fmt.Errorf("%w: raft message without sender", raftnode.ErrUnknownPeer))
	}

	var msg raftpb.Message
	if err := msg.Unmarshal(req.Value); err != nil {
		return common.NewRaftResponse(req.MsgType, 0, 0, fmt.Errorf("corrupt raft message: %w", err))
	}

	res := submitAndWait(adapter.node, raftnode.NewRaftMessageRequest(senderID, msg), adapter.timeout)
	return common.NewRaftResponse(req.MsgType, res.Term, res.Index, res.Err)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// submitAndWait hands req to the node and suspends until it completed or timeout passed
func submitAndWait(node raftnode.Submitter, req raftnode.Request, timeout time.Duration) raftnode.Result {
	if err := node.Submit(req); err != nil {
		return raftnode.Result{Err: err}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return req.Completion().Wait(ctx)
}
