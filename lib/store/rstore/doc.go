// Package rstore implements store.IStore on top of a raft node. Every operation, reads
// included, is turned into a command, appended to the raft log and answered with the
// reply of the storage engine once the entry committed. Reads are therefore
// linearizable.
//
// The store only holds a raftnode.Submitter. It never touches consensus state.
//
// Error mapping:
//
//   - raftnode.NotLeaderError: store.RetCNotLeader, the message names the leader
//   - raftnode.ErrStopped and timeouts: store.RetCUnavailable
//   - raftnode.ErrEntryReplaced: the command is submitted again (up to 5 times)
//   - errors of the engine: returned unchanged
//
// Usage Example:
//
//	engine := lstore.NewLocalStore()
//	node, _ := raftnode.NewNode(cfg, engine)
//	go node.Run(ctx)
//
//	kv := rstore.NewReplicatedStore(node, 5*time.Second)
//	err := kv.Set("key", []byte("value"))
package rstore
