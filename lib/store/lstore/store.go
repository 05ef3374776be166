package lstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/shutdown"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("store")

// commitBuffer is the capacity of the channel between the propose and the apply path
const commitBuffer = 1024

// Config configures a local store.
type Config struct {
	NodeID            uint64 // The id reported as the single member and leader
	Address           string // The address reported for the single member
	CheckpointEntries uint64 // Save a snapshot every n applied entries (0 disables checkpoints)
}

// proposal is a durably appended entry waiting to be applied
type proposal struct {
	index uint64
	data  []byte
}

type result struct {
	out statemachine.ApplyOutcome
	err error
}

// hooks are called by the store in tests, all of them may be nil
type hooks struct {
	afterAppend func(index uint64) // after the entry is durable, before waiting for the apply
	beforeApply func(index uint64) // on the apply goroutine, before the entry is applied
}

type storeImpl struct {
	cfg   Config
	st    *storage.Store
	sm    *statemachine.StateMachine
	sup   *shutdown.Supervisor
	hooks hooks

	mu       sync.Mutex // serializes proposals, guards closed
	closed   bool
	commitCh chan proposal
	waiters  *xsync.MapOf[uint64, chan result]
	done     chan struct{} // closed when the apply goroutine returned

	sinceCheckpoint uint64 // only used by the apply goroutine
}

// NewLocalStore creates a single replica store on top of st. The state is
// recovered from st (snapshot + log replay) before the store is returned.
// The store owns st and closes it on Close.
func NewLocalStore(st *storage.Store, sup *shutdown.Supervisor, cfg Config) (store.IMetaStore, error) {
	return newStore(st, sup, cfg, hooks{})
}

func newStore(st *storage.Store, sup *shutdown.Supervisor, cfg Config, h hooks) (*storeImpl, error) {
	if sup == nil {
		sup = shutdown.NewSupervisor(0)
	}
	if cfg.NodeID == 0 {
		cfg.NodeID = st.Identity().ID
	}

	sm := statemachine.New()
	if err := store.Recover(st, sm); err != nil {
		sup.Observe(err)
		return nil, err
	}

	s := &storeImpl{
		cfg:      cfg,
		st:       st,
		sm:       sm,
		sup:      sup,
		hooks:    h,
		commitCh: make(chan proposal, commitBuffer),
		waiters:  xsync.NewMapOf[uint64, chan result](),
		done:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// --------------------------------------------------------------------------
// Propose and Apply
// --------------------------------------------------------------------------

// propose durably appends cmd and waits until it is applied. Once the entry is
// appended it is applied even if ctx is done before, only the wait is canceled.
func (s *storeImpl) propose(ctx context.Context, cmd statemachine.Command) (statemachine.ApplyOutcome, error) {
	var zero statemachine.ApplyOutcome

	if err := s.sup.CheckWrite(); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, metaerr.Connection("propose write", err)
	}

	data := cmd.Serialize()
	ch := make(chan result, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, metaerr.Unknown("store is closed")
	}

	index := s.st.LastIndex() + 1
	s.waiters.Store(index, ch)
	if err := s.st.Append(storage.Entry{Index: index, Data: data}); err != nil {
		s.waiters.Delete(index)
		s.mu.Unlock()
		// nothing was applied, the memory state is still consistent
		s.sup.OnUnsafeStorage(err, true)
		return zero, metaerr.Wrap(err)
	}
	s.commitCh <- proposal{index: index, data: data}
	s.mu.Unlock()

	if s.hooks.afterAppend != nil {
		s.hooks.afterAppend(index)
	}

	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return zero, metaerr.Connection(fmt.Sprintf("wait for apply of log index %d", index), ctx.Err())
	}
}

// run is the single apply path of the store
func (s *storeImpl) run() {
	defer close(s.done)

	for p := range s.commitCh {
		if s.hooks.beforeApply != nil {
			s.hooks.beforeApply(p.index)
		}

		out, err := s.sm.Apply(p.index, p.data)
		if err != nil {
			log.Errorf("failed to apply log index %d: %v", p.index, err)
			s.sup.Observe(err)
		}
		if ch, ok := s.waiters.LoadAndDelete(p.index); ok {
			ch <- result{out: out, err: err}
		}

		s.sinceCheckpoint++
		if s.cfg.CheckpointEntries > 0 && s.sinceCheckpoint >= s.cfg.CheckpointEntries {
			s.checkpoint()
		}
	}
}

// checkpoint saves a snapshot of the state machine and compacts the log
func (s *storeImpl) checkpoint() {
	s.sinceCheckpoint = 0
	if s.sup.Unsafe() {
		return
	}
	index := s.sm.AppliedIndex()
	if err := s.st.SaveSnapshot(index, s.sm.Snapshot()); err != nil {
		s.sup.OnUnsafeStorage(err, true)
	}
}

// readBarrier waits until every entry appended before the call is applied
func (s *storeImpl) readBarrier(ctx context.Context, level statemachine.Consistency) error {
	if err := s.sup.CheckRead(); err != nil {
		return err
	}
	if level != statemachine.Linearizable {
		return nil
	}
	return s.sm.WaitApplied(ctx, s.st.LastIndex())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key string, level statemachine.Consistency) (statemachine.Record, bool, error) {
	if err := s.readBarrier(ctx, level); err != nil {
		return statemachine.Record{}, false, err
	}
	rec, ok := s.sm.Get(key)
	return rec, ok, nil
}

func (s *storeImpl) List(ctx context.Context, prefix string, level statemachine.Consistency) ([]statemachine.Record, error) {
	if err := s.readBarrier(ctx, level); err != nil {
		return nil, err
	}
	return s.sm.List(prefix), nil
}

func (s *storeImpl) Upsert(ctx context.Context, key string, match statemachine.MatchSeq, value []byte) (statemachine.ApplyOutcome, error) {
	if err := store.ValidateKey(key); err != nil {
		return statemachine.ApplyOutcome{}, err
	}
	return s.propose(ctx, statemachine.NewUpsert(key, match, value))
}

func (s *storeImpl) Delete(ctx context.Context, key string, match statemachine.MatchSeq) (statemachine.ApplyOutcome, error) {
	if err := store.ValidateKey(key); err != nil {
		return statemachine.ApplyOutcome{}, err
	}
	return s.propose(ctx, statemachine.NewDelete(key, match))
}

func (s *storeImpl) Members(_ context.Context) (store.Membership, error) {
	return store.Membership{
		Nodes:       map[uint64]string{s.cfg.NodeID: s.cfg.Address},
		Leader:      s.cfg.NodeID,
		LeaderKnown: true,
	}, nil
}

func (s *storeImpl) AddNode(_ context.Context, id uint64, _ string) error {
	return metaerr.ChangeMembership(id, "unsupported", "a local store has exactly one member")
}

func (s *storeImpl) RemoveNode(_ context.Context, id uint64) error {
	return metaerr.ChangeMembership(id, "unsupported", "a local store has exactly one member")
}

func (s *storeImpl) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.commitCh)
	s.mu.Unlock()

	<-s.done
	return s.st.Close()
}
