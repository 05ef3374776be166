package lstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/shutdown"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, dir string, sup *shutdown.Supervisor, cfg Config, h hooks) *storeImpl {
	t.Helper()
	st, err := storage.Create(dir, 1)
	require.NoError(t, err)
	s, err := newStore(st, sup, cfg, h)
	require.NoError(t, err)
	return s
}

func kindOf(t *testing.T, err error) metaerr.Kind {
	t.Helper()
	kind, ok := metaerr.KindOf(err)
	require.True(t, ok, "expected a MetaError, got %v", err)
	return kind
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), nil, Config{Address: "localhost:8080"}, hooks{})
	defer s.Close()

	out, err := s.Upsert(ctx, "__db/db1", statemachine.Absent(), []byte("one"))
	require.NoError(t, err)
	require.True(t, out.Applied)
	assert.Equal(t, uint64(1), out.Index)

	// create-if-absent again is a conflict, not an error
	out, err = s.Upsert(ctx, "__db/db1", statemachine.Absent(), []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, statemachine.ConflictAlreadyExists, out.Conflict)

	for _, level := range []statemachine.Consistency{statemachine.Latest, statemachine.Linearizable} {
		rec, found, err := s.Get(ctx, "__db/db1", level)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("one"), rec.Value)
	}

	_, err = s.Upsert(ctx, "__db/db2", statemachine.Any(), []byte("x"))
	require.NoError(t, err)
	recs, err := s.List(ctx, "__db/", statemachine.Linearizable)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	out, err = s.Delete(ctx, "__db/db1", statemachine.Exact(999))
	require.NoError(t, err)
	assert.Equal(t, statemachine.ConflictVersionMismatch, out.Conflict)

	rec, _, err := s.Get(ctx, "__db/db1", statemachine.Linearizable)
	require.NoError(t, err)
	out, err = s.Delete(ctx, "__db/db1", statemachine.Exact(rec.Version))
	require.NoError(t, err)
	assert.True(t, out.Applied)

	_, found, err := s.Get(ctx, "__db/db1", statemachine.Linearizable)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidKey(t *testing.T) {
	s := openStore(t, t.TempDir(), nil, Config{}, hooks{})
	defer s.Close()

	_, err := s.Upsert(context.Background(), string([]byte{0xff}), statemachine.Any(), nil)
	assert.Equal(t, metaerr.KindBadBytes, kindOf(t, err))
	_, err = s.Delete(context.Background(), "", statemachine.Any())
	assert.Equal(t, metaerr.KindBadBytes, kindOf(t, err))

	// nothing reached the log
	assert.Equal(t, uint64(0), s.st.LastIndex())
}

func TestRestartDurability(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openStore(t, dir, nil, Config{CheckpointEntries: 5}, hooks{})
	for i := 0; i < 12; i++ {
		_, err := s.Upsert(ctx, fmt.Sprintf("__node/%d", i), statemachine.Any(), []byte("n"))
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	st, err := storage.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), st.SnapshotIndex(), "checkpoints after 5 and 10 entries")
	assert.Equal(t, uint64(12), st.LastIndex())

	s2, err := newStore(st, nil, Config{}, hooks{})
	require.NoError(t, err)
	defer s2.Close()

	recs, err := s2.List(ctx, "__node/", statemachine.Linearizable)
	require.NoError(t, err)
	assert.Len(t, recs, 12)
	assert.Equal(t, uint64(12), s2.sm.AppliedIndex())

	// new writes continue after the recovered index
	out, err := s2.Upsert(ctx, "__node/99", statemachine.Any(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(13), out.Index)
}

func TestCanceledWriteIsDurable(t *testing.T) {
	gate := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	s := openStore(t, t.TempDir(), nil, Config{}, hooks{
		// the client goes away after the append, before the entry is applied
		afterAppend: func(uint64) { cancel() },
		beforeApply: func(uint64) { <-gate },
	})
	defer s.Close()

	_, err := s.Upsert(ctx, "__tbl/db1/t1", statemachine.Absent(), []byte("schema"))
	require.Error(t, err)
	me, _ := metaerr.As(err)
	require.Equal(t, metaerr.KindConnection, me.Kind)
	assert.True(t, me.Conn.Source.IsKind(metaerr.CauseCanceled))

	close(gate)

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	rec, found, err := s.Get(readCtx, "__tbl/db1/t1", statemachine.Linearizable)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("schema"), rec.Value)
}

func TestAlreadyCanceledWriteIsNotProposed(t *testing.T) {
	s := openStore(t, t.TempDir(), nil, Config{}, hooks{})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Upsert(ctx, "k", statemachine.Any(), nil)
	assert.Equal(t, metaerr.KindConnection, kindOf(t, err))
	assert.Equal(t, uint64(0), s.st.LastIndex())
}

func TestLinearizableReadTimeout(t *testing.T) {
	gate := make(chan struct{})
	s := openStore(t, t.TempDir(), nil, Config{}, hooks{
		beforeApply: func(uint64) { <-gate },
	})
	defer func() {
		close(gate)
		s.Close()
	}()

	writeCtx, writeCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer writeCancel()
	_, err := s.Upsert(writeCtx, "k", statemachine.Any(), nil)
	require.Error(t, err)

	readCtx, readCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer readCancel()
	_, _, err = s.Get(readCtx, "k", statemachine.Linearizable)
	assert.Equal(t, metaerr.KindReadTimeout, kindOf(t, err))

	// a stale tolerant read does not wait
	_, found, err := s.Get(context.Background(), "k", statemachine.Latest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnsafeStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("consistent state keeps serving reads", func(t *testing.T) {
		sup := shutdown.NewSupervisor(0)
		s := openStore(t, t.TempDir(), sup, Config{}, hooks{})
		defer s.Close()

		_, err := s.Upsert(ctx, "k", statemachine.Any(), []byte("v"))
		require.NoError(t, err)

		sup.OnUnsafeStorage(errors.New("disk full"), true)

		_, err = s.Upsert(ctx, "k", statemachine.Any(), []byte("w"))
		assert.Equal(t, metaerr.KindMetaStoreDamaged, kindOf(t, err))

		rec, found, err := s.Get(ctx, "k", statemachine.Linearizable)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("v"), rec.Value)
	})

	t.Run("inconsistent state refuses everything", func(t *testing.T) {
		sup := shutdown.NewSupervisor(0)
		s := openStore(t, t.TempDir(), sup, Config{}, hooks{})
		defer s.Close()

		sup.OnUnsafeStorage(errors.New("lost write"), false)

		_, _, err := s.Get(ctx, "k", statemachine.Latest)
		assert.Equal(t, metaerr.KindMetaStoreDamaged, kindOf(t, err))
		_, err = s.List(ctx, "", statemachine.Latest)
		assert.Equal(t, metaerr.KindMetaStoreDamaged, kindOf(t, err))
	})

	t.Run("failed append marks the storage unsafe", func(t *testing.T) {
		sup := shutdown.NewSupervisor(0)
		s := openStore(t, t.TempDir(), sup, Config{}, hooks{})
		defer s.Close()

		// pull the storage away under the store
		require.NoError(t, s.st.Close())

		_, err := s.Upsert(ctx, "k", statemachine.Any(), nil)
		require.Error(t, err)
		assert.True(t, sup.Unsafe())

		_, err = s.Upsert(ctx, "k", statemachine.Any(), nil)
		assert.Equal(t, metaerr.KindMetaStoreDamaged, kindOf(t, err))
	})
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, t.TempDir(), nil, Config{Address: "unix:///tmp/dmeta.sock"}, hooks{})
	defer s.Close()

	m, err := s.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uint64]string{1: "unix:///tmp/dmeta.sock"}, m.Nodes)
	assert.True(t, m.LeaderKnown)
	assert.Equal(t, uint64(1), m.Leader)

	assert.Equal(t, metaerr.KindChangeMembership, kindOf(t, s.AddNode(ctx, 2, "other")))
	assert.Equal(t, metaerr.KindChangeMembership, kindOf(t, s.RemoveNode(ctx, 1)))
}

func TestCloseIsIdempotent(t *testing.T) {
	s := openStore(t, t.TempDir(), nil, Config{}, hooks{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Upsert(context.Background(), "k", statemachine.Any(), nil)
	assert.Equal(t, metaerr.KindUnknown, kindOf(t, err))
}
