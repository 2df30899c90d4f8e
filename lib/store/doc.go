// Package store provides the key-value interface shared by the storage engine, the
// replicated store and the network client, plus a unified error type.
//
// Key Components:
//
//   - IStore Interface: Set, Get, Delete and Has, plus Exec for every other command of
//     the engine (INCR, APPEND, MSET, ...). Applications can switch between the local
//     engine, the replicated store and the remote client without code changes.
//
//   - Error System: errors raised by a store carry a RetCode, so callers can tell wrong
//     arguments from a missing leader or an unavailable cluster.
//
// Implementations:
//
//   - Local Store (lstore): the in-memory command engine. It is the state machine raft
//     applies committed commands to, and can be used directly for single node setups.
//     Available in the "github.com/ValentinKolb/rKV/lib/store/lstore" package.
//
//   - Replicated Store (rstore): sends every operation through the raft log of a
//     raftnode.Node and returns the reply of the engine once the command committed.
//     Available in the "github.com/ValentinKolb/rKV/lib/store/rstore" package.
//
//   - Remote Store (rpc/client): talks to a running node over the network.
package store
