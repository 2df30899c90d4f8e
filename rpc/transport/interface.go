package transport

import (
	"net"

	"github.com/ValentinKolb/rKV/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received.
// senderID is the node id of the sending cluster member, 0 for clients.
type ServerHandleFunc func(senderID uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler is called for every received request
	RegisterHandler(handler ServerHandleFunc)
	// Listen creates a listener for the configured endpoint and serves it until Close is called
	Listen(config common.ServerConfig) error
	// Serve accepts connections on an existing listener until Close is called
	Serve(listener net.Listener, config common.ServerConfig) error
	// Close stops accepting connections and closes all open ones
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response
	Send(req []byte) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
