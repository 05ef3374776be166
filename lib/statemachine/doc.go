/*
Package statemachine implements the deterministic metadata state machine.

Committed log entries are binary encoded Commands (Upsert, Delete, Noop). Apply
consumes them strictly sequentially and in increasing index order:

	sm := statemachine.New()
	cmd := statemachine.NewUpsert("__db/db1", statemachine.Absent(), value)
	outcome, err := sm.Apply(index, cmd.Serialize())

Conditional writes (create-if-absent, compare-and-swap on the record version) are
evaluated against the state as of the applied index. A failed condition is a
Conflict in the ApplyOutcome, not an error: the entry was applied, it just did
not change the state.

Determinism: records are held in an ordered btree, the record versions come from
a counter that is part of the state and nothing reads a clock or a random source
on the apply path. Applying the same log on two instances yields bit identical
snapshots.

Snapshots are self describing (magic, format version, applied index, counter,
records in key order) and protected by an xxhash64 checksum. Restore rejects every
malformed snapshot with MetaStoreDamaged. Restoring a snapshot taken at index j
and replaying the entries after j yields the same state as applying the whole log.

Reads use a shared lock and run concurrently to each other. WaitApplied is the
suspension point of linearizable reads: it returns once the given index has been
applied or fails with ReadTimeout when the deadline expires.
*/
package statemachine
