// Package transport defines the interfaces of the RPC transport layer.
//
// Key Components:
//
//   - IRPCClientTransport: Client side, manages connections and correlates
//     responses with requests.
//
//   - IRPCServerTransport: Server side, accepts connections and hands every request
//     to the registered ServerHandleFunc together with the id of the sending node.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
