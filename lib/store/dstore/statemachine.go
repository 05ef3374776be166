package dstore

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/shutdown"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/ValentinKolb/dMeta/lib/store"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// result codes of sm.Result.Value
const (
	resultOutcome uint64 = iota // Data is a json encoded statemachine.ApplyOutcome
	resultError                 // Data is a json encoded metaerr.MetaError
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// onDiskStateMachine is the Dragonboat IOnDiskStateMachine of a replica. Every
// committed entry is journaled to the storage backend before it is applied, so
// the applied state survives a restart without Dragonboat replaying it.
type onDiskStateMachine struct {
	shardID   uint64
	replicaID uint64
	dir       string
	sup       *shutdown.Supervisor

	st *storage.Store
	sm *statemachine.StateMachine
}

// preparedSnapshot is the state captured by PrepareSnapshot
type preparedSnapshot struct {
	index uint64
	data  []byte
}

// CreateStateMachineFactory returns the function Dragonboat uses to create the state machine
// of a replica. The storage of each replica lives in dataDir/shard-<id>-replica-<id>.
func CreateStateMachineFactory(dataDir string, sup *shutdown.Supervisor) sm.CreateOnDiskStateMachineFunc {
	return func(shardID uint64, replicaID uint64) sm.IOnDiskStateMachine {
		return newOnDiskStateMachine(dataDir, shardID, replicaID, sup)
	}
}

func newOnDiskStateMachine(dataDir string, shardID, replicaID uint64, sup *shutdown.Supervisor) *onDiskStateMachine {
	if sup == nil {
		sup = shutdown.NewSupervisor(0)
	}
	return &onDiskStateMachine{
		shardID:   shardID,
		replicaID: replicaID,
		dir:       filepath.Join(dataDir, fmt.Sprintf("shard-%d-replica-%d", shardID, replicaID)),
		sup:       sup,
		sm:        statemachine.New(),
	}
}

// Open opens (or creates) the storage of the replica, recovers the state and
// returns the index of the last applied entry.
func (fsm *onDiskStateMachine) Open(_ <-chan struct{}) (uint64, error) {
	st, err := storage.Create(fsm.dir, fsm.replicaID)
	if err != nil {
		fsm.sup.Observe(err)
		return 0, err
	}
	if err := store.Recover(st, fsm.sm); err != nil {
		fsm.sup.Observe(err)
		_ = st.Close()
		return 0, err
	}
	fsm.st = st
	return fsm.sm.AppliedIndex(), nil
}

// Update journals and applies committed entries. Failures are reported in the
// entry results, an error returned here would stop the NodeHost.
func (fsm *onDiskStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}
	start := time.Now()

	applied := fsm.sm.AppliedIndex()
	noop := statemachine.NewNoop()

	batch := make([]storage.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Index <= applied {
			continue
		}
		data := e.Cmd
		if len(data) == 0 {
			data = noop.Serialize()
		}
		batch = append(batch, storage.Entry{Index: e.Index, Data: data})
	}

	if err := fsm.sup.CheckWrite(); err != nil {
		return failAll(entries, err), nil
	}
	if err := fsm.st.Append(batch...); err != nil {
		// nothing of the batch was applied, the memory state matches the storage
		fsm.sup.OnUnsafeStorage(err, true)
		return failAll(entries, metaerr.Wrap(err)), nil
	}

	next := 0
	for idx, e := range entries {
		if e.Index <= applied {
			entries[idx].Result = encodeError(metaerr.Unknownf("log index %d already applied", e.Index))
			continue
		}
		out, err := fsm.sm.Apply(e.Index, batch[next].Data)
		next++
		if err != nil {
			log.Errorf("failed to apply log index %d: %v", e.Index, err)
			fsm.sup.Observe(err)
			entries[idx].Result = encodeError(err)
			continue
		}
		entries[idx].Result = encodeOutcome(out)
	}

	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		log.Infof("Statemachine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// Lookup executes a statemachine.Query.
func (fsm *onDiskStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(statemachine.Query)
	if !ok {
		return nil, metaerr.Unknownf("invalid Query type: %T", itf)
	}
	return fsm.sm.Lookup(q)
}

// Sync makes every journaled entry durable.
func (fsm *onDiskStateMachine) Sync() error {
	return fsm.st.Sync()
}

// PrepareSnapshot captures the state. It runs on the update path, so the captured
// index and data belong together.
func (fsm *onDiskStateMachine) PrepareSnapshot() (interface{}, error) {
	return preparedSnapshot{index: fsm.sm.AppliedIndex(), data: fsm.sm.Snapshot()}, nil
}

// SaveSnapshot writes the prepared snapshot to w and stores it as checkpoint,
// compacting the journal.
func (fsm *onDiskStateMachine) SaveSnapshot(ctx interface{}, w io.Writer, done <-chan struct{}) error {
	p, ok := ctx.(preparedSnapshot)
	if !ok {
		return fmt.Errorf("invalid snapshot context type: %T", ctx)
	}

	select {
	case <-done:
		return sm.ErrSnapshotStopped
	default:
	}

	if _, err := w.Write(p.data); err != nil {
		return err
	}
	if err := fsm.st.SaveSnapshot(p.index, p.data); err != nil {
		fsm.sup.OnUnsafeStorage(err, true)
		return err
	}
	return nil
}

// RecoverFromSnapshot replaces the state with a snapshot received from the leader.
func (fsm *onDiskStateMachine) RecoverFromSnapshot(r io.Reader, done <-chan struct{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	select {
	case <-done:
		return sm.ErrSnapshotStopped
	default:
	}

	if err := fsm.sm.Restore(data); err != nil {
		fsm.sup.Observe(err)
		return err
	}
	if err := fsm.st.SaveSnapshot(fsm.sm.AppliedIndex(), data); err != nil {
		// the memory state is ahead of the storage now
		fsm.sup.OnUnsafeStorage(err, false)
		return err
	}
	return nil
}

// Close closes the storage.
func (fsm *onDiskStateMachine) Close() error {
	if fsm.st == nil {
		return nil
	}
	return fsm.st.Close()
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

func encodeOutcome(out statemachine.ApplyOutcome) sm.Result {
	data, err := json.Marshal(out)
	if err != nil {
		return encodeError(metaerr.FromJSONError(err))
	}
	return sm.Result{Value: resultOutcome, Data: data}
}

func encodeError(err error) sm.Result {
	data, jerr := json.Marshal(metaerr.Wrap(err))
	if jerr != nil {
		data = []byte(`{"kind":"UnknownError","msg":"failed to encode error"}`)
	}
	return sm.Result{Value: resultError, Data: data}
}

// decodeResult is the inverse of encodeOutcome and encodeError
func decodeResult(res sm.Result) (statemachine.ApplyOutcome, error) {
	var out statemachine.ApplyOutcome
	switch res.Value {
	case resultOutcome:
		if err := json.Unmarshal(res.Data, &out); err != nil {
			return out, metaerr.FromJSONError(err)
		}
		return out, nil
	case resultError:
		me := &metaerr.MetaError{}
		if err := json.Unmarshal(res.Data, me); err != nil {
			return out, metaerr.FromJSONError(err)
		}
		return out, me
	default:
		return out, metaerr.Unknownf("unknown result code %d", res.Value)
	}
}

func failAll(entries []sm.Entry, err error) []sm.Entry {
	res := encodeError(err)
	for idx := range entries {
		entries[idx].Result = res
	}
	return entries
}
