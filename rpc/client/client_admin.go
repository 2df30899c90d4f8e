package client

import (
	"github.com/ValentinKolb/rKV/lib/cluster"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
)

// RPCAdmin administrates a single remote node
type RPCAdmin interface {
	// AddNode makes peer known to the node. It returns the term and last log index of
	// the node after the change.
	AddNode(peer cluster.PeerRecord) (term, index uint64, err error)
	// Info returns the status report of the node
	Info() (string, error)
	// Close closes the connections of the client
	Close() error
}

// NewRPCAdmin creates a new admin client. Requests go to the endpoints of config in
// round robin order, so config should name exactly one node.
func NewRPCAdmin(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (RPCAdmin, error) {
	adapter, err := connect(config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &rpcAdmin{adapter}, nil
}

type rpcAdmin struct {
	rpcClientAdapter
}

func (a *rpcAdmin) AddNode(peer cluster.PeerRecord) (uint64, uint64, error) {
	resp, err := a.invoke(common.NewAddNodeRequest(peer.ID, peer.Addr.String()))
	if err != nil {
		return 0, 0, err
	}
	return resp.Term, resp.Index, nil
}

func (a *rpcAdmin) Info() (string, error) {
	resp, err := a.invoke(common.NewInfoRequest())
	if err != nil {
		return "", err
	}
	return string(resp.Value), nil
}
