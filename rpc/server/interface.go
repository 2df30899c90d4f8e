package server

import (
	"github.com/ValentinKolb/rKV/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response.
	// senderID is the node id the request was tagged with, 0 for clients.
	// If an error occurs, it should be set in the response
	Handle(senderID uint64, req *common.Message) (resp *common.Message)

	// MessageTypes lists the message types the adapter handles
	MessageTypes() []common.MessageType
}
