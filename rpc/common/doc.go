// Package common provides the data structures shared by clients, servers and the
// transport layer.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Which fields are set
//     depends on the MessageType. Errors of the storage engine travel with their
//     return code, so clients see the same *store.Error the server produced.
//
//   - MessageType: Enumeration of all operations: key-value operations, raw commands,
//     node administration (add-node, info) and the two raft message kinds exchanged
//     between cluster members.
//
//   - ServerConfig: Identity of the node, its peers, raft parameters and transport
//     settings. ToNodeConfig and ToClusterConfig derive the configuration of the
//     raft node and the address book from it.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Logger factory plugged into the dragonboat logger facade, used by every
//     package of the module.
package common
