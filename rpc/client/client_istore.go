package client

import (
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
)

// RPCStore is a store.IStore served by a remote node
type RPCStore interface {
	store.IStore
	// Close closes the connections of the store
	Close() error
}

// NewRPCStore creates a new RPC store
// The function takes a config, a transport and a serializer as parameters and connects
// the transport
func NewRPCStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (RPCStore, error) {
	adapter, err := connect(config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &rpcStore{adapter}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Set(key string, value []byte) error {
	_, err := i.invoke(common.NewSetRequest(key, value))
	return err
}

func (i *rpcStore) Delete(key string) error {
	_, err := i.invoke(common.NewDeleteRequest(key))
	return err
}

func (i *rpcStore) Get(key string) ([]byte, bool, error) {
	resp, err := i.invoke(common.NewGetRequest(key))
	if err != nil || !resp.Ok {
		return nil, false, err
	}
	return nonNil(resp.Value), true, nil
}

func (i *rpcStore) Has(key string) (bool, error) {
	resp, err := i.invoke(common.NewHasRequest(key))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (i *rpcStore) Exec(args ...[]byte) ([]byte, error) {
	resp, err := i.invoke(common.NewCommandRequest(args))
	if err != nil || !resp.Ok {
		return nil, err
	}
	return nonNil(resp.Value), nil
}

// nonNil restores empty values, serializers may decode them as nil
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
