// Package lstore implements the local, in-memory command engine of a node. It is the
// state machine committed raft entries are applied to (Engine.Apply) and also implements
// store.IStore for direct, non-replicated use.
//
// Commands:
//
//	PING [msg]                 PONG or msg
//	SET key value              OK
//	SETNX key value            1 if the key was set, 0 otherwise
//	MSET key value [key value] OK
//	GET key                    the value, nil if the key does not exist
//	DEL key [key ...]          number of removed keys
//	EXISTS key [key ...]       number of existing keys
//	INCR / DECR key            the new value
//	INCRBY key delta           the new value
//	APPEND key value           the new length
//	STRLEN key                 the length, 0 for missing keys
//
// Command names are case insensitive, keys and values are binary safe. Integer replies
// are decimal ASCII. Wrong arguments are reported as *store.Error with
// RetCInvalidOperation, unknown commands with RetCUnsupportedOperation.
//
// Implementation Details:
//
//   - Key Space: an xsync.MapOf from key to value. Read-modify-write commands (INCR,
//     APPEND) run inside MapOf.Compute, so they are atomic even when the engine is used
//     directly from many goroutines.
//
//   - Values: stored values are never modified in place; Get returns a copy.
//
// Usage Example:
//
//	engine := lstore.NewLocalStore()
//	node, err := raftnode.NewNode(cfg, engine)
//
// Data is not persisted between process restarts.
package lstore
