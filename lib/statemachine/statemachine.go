package statemachine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/btree"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("statemachine")

	applyDuration = metrics.NewHistogram("dmeta_statemachine_apply_duration_seconds")
	applyConflict = metrics.NewCounter("dmeta_statemachine_apply_conflicts_total")
)

// btreeDegree is the degree of the ordered record index
const btreeDegree = 32

// item is the btree element, ordered by key
type item struct {
	key string
	rec *Record
}

func (i item) Less(than btree.Item) bool {
	return i.key < than.(item).key
}

// --------------------------------------------------------------------------
// State Machine
// --------------------------------------------------------------------------

// StateMachine is the deterministic metadata store. Committed log entries are
// applied strictly sequentially by Apply, reads run concurrently.
//
// The state only depends on the applied entries: records are kept in an ordered
// btree, versions come from a counter that is part of the state and no clock or
// random value is read while applying.
type StateMachine struct {
	mu      sync.RWMutex
	records *btree.BTree
	applied uint64        // the last applied log index
	seq     uint64        // the last assigned record version
	notify  chan struct{} // closed (and replaced) whenever the applied index moves
}

// New creates an empty state machine.
func New() *StateMachine {
	return &StateMachine{
		records: btree.New(btreeDegree),
		notify:  make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Apply (write path)
// --------------------------------------------------------------------------

// Apply applies the committed entry at index. Indices must be strictly increasing,
// gaps are allowed (the consensus library consumes some indices itself).
//
// Conditional writes are evaluated against the state as of this index, a failed
// condition is reported in the outcome, not as error. An entry that can not be
// decoded fails with BadBytes and does not advance the applied index.
func (s *StateMachine) Apply(index uint64, data []byte) (ApplyOutcome, error) {
	start := time.Now()
	defer applyDuration.UpdateDuration(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if index <= s.applied {
		return ApplyOutcome{}, metaerr.Unknownf("log index %d already applied (applied index is %d)", index, s.applied)
	}

	cmd := Command{}
	if err := cmd.Deserialize(data); err != nil {
		return ApplyOutcome{}, metaerr.BadBytes(fmt.Sprintf("failed to decode entry at log index %d: %v", index, err))
	}
	if _, err := metaerr.DecodeUTF8([]byte(cmd.Key)); err != nil {
		return ApplyOutcome{}, err
	}

	var outcome ApplyOutcome
	switch cmd.Type {
	case CommandTUpsert:
		outcome = s.upsert(index, cmd)
	case CommandTDelete:
		outcome = s.delete(index, cmd)
	default:
		outcome = ApplyOutcome{Applied: true}
	}
	outcome.Index = index

	if outcome.Conflict != ConflictNone {
		applyConflict.Inc()
	}

	s.advance(index)
	return outcome, nil
}

// upsert executes an upsert command. The caller holds the write lock.
func (s *StateMachine) upsert(index uint64, cmd Command) ApplyOutcome {
	current, _ := s.get(cmd.Key)

	if conflict := cmd.Match.check(current); conflict != ConflictNone {
		return ApplyOutcome{Conflict: conflict, Prev: current.clone(), Result: current.clone()}
	}

	s.seq++
	next := &Record{
		Key:          cmd.Key,
		Value:        append([]byte(nil), cmd.Value...),
		Version:      s.seq,
		CreatedIndex: index,
		UpdatedIndex: index,
	}
	if current != nil {
		next.CreatedIndex = current.CreatedIndex
	}
	s.records.ReplaceOrInsert(item{key: cmd.Key, rec: next})

	return ApplyOutcome{Applied: true, Prev: current.clone(), Result: next.clone()}
}

// delete executes a delete command. The caller holds the write lock.
func (s *StateMachine) delete(index uint64, cmd Command) ApplyOutcome {
	current, _ := s.get(cmd.Key)

	if conflict := cmd.Match.check(current); conflict != ConflictNone {
		return ApplyOutcome{Conflict: conflict, Prev: current.clone(), Result: current.clone()}
	}
	if current == nil {
		return ApplyOutcome{Conflict: ConflictNotFound}
	}

	s.records.Delete(item{key: cmd.Key})
	return ApplyOutcome{Applied: true, Prev: current.clone()}
}

// advance moves the applied index and wakes up waiting readers. The caller holds the write lock.
func (s *StateMachine) advance(index uint64) {
	s.applied = index
	close(s.notify)
	s.notify = make(chan struct{})
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// get returns the stored record (not a copy). The caller holds a lock.
func (s *StateMachine) get(key string) (*Record, bool) {
	found := s.records.Get(item{key: key})
	if found == nil {
		return nil, false
	}
	return found.(item).rec, true
}

// list returns copies of all records with the prefix in key order. The caller holds a lock.
func (s *StateMachine) list(prefix string) []Record {
	res := make([]Record, 0)
	s.records.AscendGreaterOrEqual(item{key: prefix}, func(i btree.Item) bool {
		it := i.(item)
		if !strings.HasPrefix(it.key, prefix) {
			return false
		}
		res = append(res, *it.rec.clone())
		return true
	})
	return res
}

// Get returns a copy of the record for key.
func (s *StateMachine) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.get(key)
	if !ok {
		return Record{}, false
	}
	return *rec.clone(), true
}

// List returns copies of all records whose key starts with prefix, ordered by key.
func (s *StateMachine) List(prefix string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(prefix)
}

// Len returns the number of records.
func (s *StateMachine) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Len()
}

// AppliedIndex returns the last applied log index.
func (s *StateMachine) AppliedIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// WaitApplied blocks until the entry at index has been applied or ctx is done.
// An expired deadline yields a ReadTimeout, a canceled context a ConnectionError.
func (s *StateMachine) WaitApplied(ctx context.Context, index uint64) error {
	for {
		s.mu.RLock()
		applied, ch := s.applied, s.notify
		s.mu.RUnlock()

		if applied >= index {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return metaerr.ReadTimeout(index, ctx.Err())
			}
			return metaerr.Connection(fmt.Sprintf("wait for log index %d to be applied", index), ctx.Err())
		}
	}
}
