package client

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the RPCStore and RPCAdmin with composition pattern
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// connect creates the adapter and connects the transport
func connect(config common.ClientConfig, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (rpcClientAdapter, error) {
	if err := transport.Connect(config); err != nil {
		return rpcClientAdapter{}, err
	}
	return rpcClientAdapter{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// Close closes the connections of the client
func (a *rpcClientAdapter) Close() error {
	return a.transport.Close()
}

// invoke sends req and returns the response.
// Errors set by the server are returned as they were produced there: store errors keep
// their *store.Error type and return code.
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := a.transport.Send(reqBytes)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC client - invalid response: %w", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError {
		return nil, errors.New("RPC client - Error: " + resp.Err)
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC client - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}
	return resp, nil
}
