// Package lstore implements a single replica metadata store based on the
// store.IMetaStore interface.
//
// The storage log stands in for the replicated log. A write goes through the same
// steps as in the replicated store, only without a quorum:
//
//  1. the command is durably appended to the storage log (fsync)
//  2. the entry is handed to the single apply goroutine via the commit channel
//  3. the apply goroutine applies it to the state machine and resolves the waiter
//
// Once step 1 returned the write is final: canceling the request only stops the
// wait, the entry is still applied and visible to later linearizable reads.
//
// Checkpoints: every Config.CheckpointEntries applied entries the state machine
// snapshot is saved and the log is compacted. On start the state is recovered from
// the latest snapshot plus the log entries after it.
//
// Safety: a failed append marks the storage unsafe at the shutdown.Supervisor,
// after that every write is refused.
//
// Usage Example:
//
//	st, err := storage.Create(dir, nodeID)
//	s, err := lstore.NewLocalStore(st, supervisor, lstore.Config{NodeID: nodeID, CheckpointEntries: 1000})
//	out, err := s.Upsert(ctx, "__db/sales", statemachine.Absent(), value)
//
// For multiple replicas use the dstore package, which implements the same interface
// on top of Dragonboat.
package lstore
