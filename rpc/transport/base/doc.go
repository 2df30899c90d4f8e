// Package base implements the transport independent of the network protocol. Protocol
// specific connectors (see the tcp package) plug into it.
//
// Frame format (big endian):
//
//	8 bytes  sender id (0 for clients, the node id for cluster members)
//	8 bytes  request id
//	4 bytes  payload length
//	N bytes  payload
//
// Responses echo the sender and request id of their request.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Protocol specific operations.
//
//   - clientTransport: Manages multiple connections per endpoint with round-robin
//     selection. Requests are pipelined and matched to responses by request id. A
//     broken connection fails all waiting requests and is re-established.
//
//   - serverTransport: Accepts connections and runs the handler. Client requests of a
//     connection are processed by a bounded pool of workers. Requests of cluster
//     members are processed in order on the reading goroutine, raft relies on the
//     messages of a peer arriving in the order they were sent.
//
// Performance Optimizations:
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse read buffers.
//
//   - Frame Batching: Header and payload are written with net.Buffers in a single
//     vectored write.
package base
