package server

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ValentinKolb/rKV/lib/raftnode"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport/base"
	"go.etcd.io/raft/v3/raftpb"
)

// NewPeerCodec returns the framing used on connections to other nodes. Raft messages
// travel as messages of this package, in transport frames tagged with the local node id,
// so any RPC server of the cluster can receive them.
func NewPeerCodec(s serializer.IRPCSerializer) raftnode.PeerCodec {
	return &peerCodec{serializer: s}
}

type peerCodec struct {
	serializer    serializer.IRPCSerializer
	nextRequestID atomic.Uint64
}

func (c *peerCodec) Encode(from uint64, m raftpb.Message) ([]byte, error) {
	data, err := m.Marshal()
	if err != nil {
		return nil, err
	}

	msgType := common.MsgTRaftAppendEntries
	if raftnode.KindOf(m) == raftnode.KindRequestVote {
		msgType = common.MsgTRaftRequestVote
	}

	payload, err := c.serializer.Serialize(*common.NewRaftRequest(msgType, data))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", m.Type, err)
	}
	return base.EncodeFrame(from, c.nextRequestID.Add(1), payload), nil
}

// ReadReply consumes one reply. A reply carrying an error is logged, the peer
// rejected the message but the connection is fine.
func (c *peerCodec) ReadReply(r io.Reader) error {
	_, requestID, data, err := base.ReadFrame(r, nil)
	if err != nil {
		return err
	}

	var msg common.Message
	if err := c.serializer.Deserialize(data, &msg); err != nil {
		return fmt.Errorf("corrupt reply to request %d: %w", requestID, err)
	}
	if err := msg.Error(); err != nil {
		Logger.Debugf("peer rejected %s request %d: %v", msg.MsgType, requestID, err)
	}
	return nil
}
