// Package rpc connects the nodes of an rKV cluster and its clients. Every node serves
// one endpoint: clients send store and administration requests, other nodes send raft
// messages over the same connection type.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, server and client configuration and logging.
//
//   - transport: Framed request/response transport over TCP. Frames carry the id of
//     the sending node, 0 for clients.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC clients implementing store.IStore and an admin interface for
//     adding nodes and reading the node status.
//
//   - server: The RPC server of a node. It owns the storage engine and the raft node
//     and routes requests to adapters.
package rpc
