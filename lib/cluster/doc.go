// Package cluster holds the static address book of a raft cluster: peer addresses,
// peer records and the configuration a node is started with.
//
// Peer records use the form id@host:port, for example:
//
//	peers, err := cluster.ParsePeers("2@10.0.0.2:6379,3@10.0.0.3:6379")
//
// Hosts are limited to MaxHostLength characters, ports to 1..65535 and ids to positive
// integers. Malformed records are rejected when parsed, so a bad configuration stops
// the process at startup instead of surfacing later as an unreachable peer.
package cluster
