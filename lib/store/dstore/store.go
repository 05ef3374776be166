package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/shutdown"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// nodeHost is the part of *dragonboat.NodeHost used by the store
type nodeHost interface {
	GetLeaderID(shardID uint64) (uint64, uint64, bool, error)
	GetNoOPSession(shardID uint64) *client.Session
	SyncPropose(ctx context.Context, session *client.Session, cmd []byte) (sm.Result, error)
	SyncRead(ctx context.Context, shardID uint64, query interface{}) (interface{}, error)
	StaleRead(shardID uint64, query interface{}) (interface{}, error)
	SyncGetShardMembership(ctx context.Context, shardID uint64) (*dragonboat.Membership, error)
	SyncRequestAddReplica(ctx context.Context, shardID uint64, replicaID uint64, target string, configChangeIndex uint64) error
	SyncRequestDeleteReplica(ctx context.Context, shardID uint64, replicaID uint64, configChangeIndex uint64) error
	StopShard(shardID uint64) error
}

// storeImpl implements store.IMetaStore on top of a Dragonboat NodeHost.
type storeImpl struct {
	nh        nodeHost
	shardID   uint64
	replicaID uint64
	cs        *client.Session
	timeout   time.Duration
	sup       *shutdown.Supervisor
}

// NewDistributedStore creates a store for the shard replicated by nh. replicaID is
// the id of the local replica, writes are only accepted while it is the leader.
// Other replicas answer with ForwardToLeader.
func NewDistributedStore(nh *dragonboat.NodeHost, shardID, replicaID uint64, timeout time.Duration, sup *shutdown.Supervisor) store.IMetaStore {
	return newStore(nh, shardID, replicaID, timeout, sup)
}

func newStore(nh nodeHost, shardID, replicaID uint64, timeout time.Duration, sup *shutdown.Supervisor) *storeImpl {
	if sup == nil {
		sup = shutdown.NewSupervisor(0)
	}
	return &storeImpl{
		nh:        nh,
		shardID:   shardID,
		replicaID: replicaID,
		cs:        nh.GetNoOPSession(shardID),
		timeout:   timeout,
		sup:       sup,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// checkLeader returns nil if the local replica is the leader. Otherwise a
// RetryableError naming the leader, or ForwardToLeader without a leader while
// no leader is known.
func (s *storeImpl) checkLeader(op opKind) error {
	leader, _, valid, err := s.nh.GetLeaderID(s.shardID)
	if err != nil {
		return fromDragonboat(op, err)
	}
	if !valid || leader == 0 {
		return metaerr.ForwardUnknown()
	}
	if leader != s.replicaID {
		return &metaerr.RetryableError{Leader: leader}
	}
	return nil
}

// write proposes cmd and waits for its outcome. If the system is busy the
// proposal is retried up to 5 times.
func (s *storeImpl) write(ctx context.Context, cmd statemachine.Command) (statemachine.ApplyOutcome, error) {
	var zero statemachine.ApplyOutcome

	if err := s.sup.CheckWrite(); err != nil {
		return zero, err
	}
	if err := s.checkLeader(opWrite); err != nil {
		// the RetryableError becomes a ForwardToLeader at the store boundary
		return zero, metaerr.Wrap(err)
	}

	data := cmd.Serialize()
	for i := 0; i < retries; i++ {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := s.nh.SyncPropose(pctx, s.cs, data)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			if !sleep(ctx, s.timeout/10) {
				return zero, metaerr.Connection("propose write", ctx.Err())
			}
			continue
		}
		if err != nil {
			return zero, fromDragonboat(opWrite, err)
		}
		return decodeResult(res)
	}
	return zero, metaerr.Connection("propose write", dragonboat.ErrSystemBusy)
}

// read queries the state machine. Linearizable reads use SyncRead (ReadIndex),
// Latest reads use the faster StaleRead.
func (s *storeImpl) read(ctx context.Context, q statemachine.Query, level statemachine.Consistency) (statemachine.QueryResult, error) {
	var zero statemachine.QueryResult

	if err := s.sup.CheckRead(); err != nil {
		return zero, err
	}

	for i := 0; i < retries; i++ {
		var res interface{}
		var err error

		if level == statemachine.Linearizable {
			rctx, cancel := context.WithTimeout(ctx, s.timeout)
			res, err = s.nh.SyncRead(rctx, s.shardID, q)
			cancel()
		} else {
			res, err = s.nh.StaleRead(s.shardID, q)
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			if !sleep(ctx, s.timeout/10) {
				return zero, metaerr.Connection("read", ctx.Err())
			}
			continue
		}
		if err != nil {
			return zero, fromDragonboat(opRead, err)
		}

		casted, ok := res.(statemachine.QueryResult)
		if !ok {
			return zero, metaerr.Unknownf("unexpected type: received %T, expected %T", res, zero)
		}
		return casted, nil
	}
	return zero, metaerr.Connection("read", dragonboat.ErrSystemBusy)
}

// membership returns the current membership of the shard
func (s *storeImpl) membership(ctx context.Context) (*dragonboat.Membership, error) {
	mctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	m, err := s.nh.SyncGetShardMembership(mctx, s.shardID)
	if err != nil {
		return nil, fromDragonboat(opMembership, err)
	}
	return m, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key string, level statemachine.Consistency) (statemachine.Record, bool, error) {
	res, err := s.read(ctx, statemachine.Query{Type: statemachine.QueryTGet, Key: key}, level)
	if err != nil {
		return statemachine.Record{}, false, err
	}
	return res.Record, res.Ok, nil
}

func (s *storeImpl) List(ctx context.Context, prefix string, level statemachine.Consistency) ([]statemachine.Record, error) {
	res, err := s.read(ctx, statemachine.Query{Type: statemachine.QueryTList, Key: prefix}, level)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s *storeImpl) Upsert(ctx context.Context, key string, match statemachine.MatchSeq, value []byte) (statemachine.ApplyOutcome, error) {
	if err := store.ValidateKey(key); err != nil {
		return statemachine.ApplyOutcome{}, err
	}
	return s.write(ctx, statemachine.NewUpsert(key, match, value))
}

func (s *storeImpl) Delete(ctx context.Context, key string, match statemachine.MatchSeq) (statemachine.ApplyOutcome, error) {
	if err := store.ValidateKey(key); err != nil {
		return statemachine.ApplyOutcome{}, err
	}
	return s.write(ctx, statemachine.NewDelete(key, match))
}

func (s *storeImpl) Members(ctx context.Context) (store.Membership, error) {
	m, err := s.membership(ctx)
	if err != nil {
		return store.Membership{}, err
	}
	res := store.Membership{
		ConfigChangeID: m.ConfigChangeID,
		Nodes:          make(map[uint64]string, len(m.Nodes)),
	}
	for id, addr := range m.Nodes {
		res.Nodes[id] = addr
	}
	if leader, _, valid, err := s.nh.GetLeaderID(s.shardID); err == nil && valid {
		res.Leader = leader
		res.LeaderKnown = true
	}
	return res, nil
}

func (s *storeImpl) AddNode(ctx context.Context, id uint64, address string) error {
	if id == 0 || address == "" {
		return metaerr.InvalidConfig("node id and address are required")
	}
	if err := s.checkLeader(opMembership); err != nil {
		return metaerr.Wrap(err)
	}
	m, err := s.membership(ctx)
	if err != nil {
		return err
	}
	if _, ok := m.Nodes[id]; ok {
		return metaerr.ChangeMembership(id, "already a member", fmt.Sprintf("node %d is already a member", id))
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.nh.SyncRequestAddReplica(cctx, s.shardID, id, address, m.ConfigChangeID); err != nil {
		return withNode(fromDragonboat(opMembership, err), id)
	}
	log.Infof("added node %d (%s) to shard %d", id, address, s.shardID)
	return nil
}

func (s *storeImpl) RemoveNode(ctx context.Context, id uint64) error {
	if err := s.checkLeader(opMembership); err != nil {
		return metaerr.Wrap(err)
	}
	m, err := s.membership(ctx)
	if err != nil {
		return err
	}
	if _, ok := m.Nodes[id]; !ok {
		return metaerr.ChangeMembership(id, "not a member", fmt.Sprintf("node %d is not a member", id))
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.nh.SyncRequestDeleteReplica(cctx, s.shardID, id, m.ConfigChangeID); err != nil {
		return withNode(fromDragonboat(opMembership, err), id)
	}
	log.Infof("removed node %d from shard %d", id, s.shardID)
	return nil
}

func (s *storeImpl) Close() error {
	if err := s.nh.StopShard(s.shardID); err != nil && !errors.Is(err, dragonboat.ErrShardNotFound) {
		return fromDragonboat(opMembership, err)
	}
	return nil
}

// withNode fills in the node id of a ChangeMembershipError
func withNode(err error, id uint64) error {
	me, ok := metaerr.As(err)
	if !ok || me.Kind != metaerr.KindChangeMembership || me.Membership == nil {
		return err
	}
	return metaerr.ChangeMembership(id, me.Membership.Reason, me.Membership.Msg)
}
