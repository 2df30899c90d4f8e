// Package client implements RPC clients for rKV nodes.
//
// Key Components:
//
//   - NewRPCStore: A store.IStore forwarding every operation to a node. Writes only
//     succeed on the leader, other nodes answer with a store error of code
//     RetCNotLeader naming the leader.
//
//   - NewRPCAdmin: Adds nodes to the cluster and reads the status report of a node.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:5000"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	s, err := client.NewRPCStore(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer s.Close()
//
//	_ = s.Set("mykey", []byte("myvalue"))
//	value, exists, _ := s.Get("mykey")
//
// The serializer has to match the one of the server.
//
// Thread Safety:
//
//	All clients are safe for concurrent use.
package client
