// Package server implements the RPC server of an rKV node.
//
// An RPCServer owns a local storage engine, the raft node replicating commands into
// it and the server transport. Incoming messages are routed by type to adapters:
//
//   - NewIStoreServerAdapter: key-value operations and raw commands. The server backs
//     it with a replicated store, every operation is committed through the raft log.
//
//   - NewNodeServerAdapter: add-node and info requests.
//
//   - NewPeerServerAdapter: raft messages of other nodes. They are only accepted in
//     frames tagged with the sender id.
//
// Outgoing raft messages use NewPeerCodec, which frames them exactly like a client
// would, so every node can talk to every other node through the same endpoint.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  NodeID:        1,
//	  Init:          true,
//	  Transport:     common.TransportConfig{Endpoint: "0.0.0.0:5000"},
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s, err := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(0, 0),
//	  serializer.NewBinarySerializer(),
//	)
//	if err != nil {
//	  log.Fatal(err)
//	}
//
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Serve blocks until ctx is cancelled or the node fails. If a metrics endpoint is
// configured, the metrics of the process are served there in the Prometheus format.
package server
