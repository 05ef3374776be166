// Package store defines IMetaStore, the interface of the metadata store used by the
// compute layer, and the recovery shared by its implementations.
//
// Every operation returns a *metaerr.MetaError on failure. Reads take a consistency
// level:
//
//   - statemachine.Latest: read the latest applied state, may miss writes that are
//     committed but not yet applied on the contacted replica
//   - statemachine.Linearizable: wait until every write committed before the read
//     was issued is applied, then read
//
// Writes are conditional (statemachine.MatchSeq). A condition that does not hold is
// an outcome (ApplyOutcome.Conflict), not an error.
//
// Implementations:
//
//   - Local Store (lstore): a single replica. The storage log stands in for the
//     replicated log: a write is durably appended, handed to a single apply
//     goroutine and answered once applied. Available in the
//     "github.com/ValentinKolb/dMeta/lib/store/lstore" package.
//
//   - Distributed Store (dstore): built on the Dragonboat RAFT library. Committed
//     entries are journaled to the storage backend and applied by an on-disk state
//     machine. Writes are only accepted by the leader, other replicas answer
//     ForwardToLeader. Available in the "github.com/ValentinKolb/dMeta/lib/store/dstore"
//     package.
//
// Both implementations rebuild their state on start with Recover: restore the
// latest snapshot, replay the log entries after it.
package store
