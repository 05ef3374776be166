package statemachine

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// entry is a committed log entry used by the tests
type entry struct {
	index uint64
	data  []byte
}

// randomLog generates a reproducible log with creates, conditional updates,
// deletes and noops over a small key space. Indices have gaps.
func randomLog(seed int64, n int) []entry {
	r := rand.New(rand.NewSource(seed))
	log := make([]entry, 0, n)
	index := uint64(0)
	for i := 0; i < n; i++ {
		index += uint64(1 + r.Intn(3))
		key := fmt.Sprintf("__tbl/db%d/t%d", r.Intn(3), r.Intn(5))
		var cmd Command
		switch r.Intn(6) {
		case 0:
			cmd = NewUpsert(key, Absent(), []byte(fmt.Sprintf("v%d", i)))
		case 1:
			cmd = NewUpsert(key, Exact(uint64(r.Intn(i+1))), []byte(fmt.Sprintf("cas%d", i)))
		case 2:
			cmd = NewDelete(key, Any())
		case 3:
			cmd = NewNoop()
		default:
			cmd = NewUpsert(key, Any(), []byte(fmt.Sprintf("any%d", i)))
		}
		log = append(log, entry{index: index, data: cmd.Serialize()})
	}
	return log
}

func applyAll(t *testing.T, sm *StateMachine, log []entry) {
	t.Helper()
	for _, e := range log {
		_, err := sm.Apply(e.index, e.data)
		require.NoError(t, err)
	}
}

func upsert(t *testing.T, sm *StateMachine, index uint64, key string, match MatchSeq, value string) ApplyOutcome {
	t.Helper()
	cmd := NewUpsert(key, match, []byte(value))
	out, err := sm.Apply(index, cmd.Serialize())
	require.NoError(t, err)
	return out
}

func TestConditionalWrites(t *testing.T) {
	sm := New()

	// create-if-absent succeeds on an empty store
	out := upsert(t, sm, 1, "__db/db1", Absent(), "a")
	require.True(t, out.Applied)
	assert.Equal(t, ConflictNone, out.Conflict)
	assert.Nil(t, out.Prev)
	assert.Equal(t, uint64(1), out.Result.Version)
	assert.Equal(t, uint64(1), out.Result.CreatedIndex)

	// create-if-absent conflicts, the entry is still applied
	out = upsert(t, sm, 2, "__db/db1", Absent(), "b")
	assert.False(t, out.Applied)
	assert.Equal(t, ConflictAlreadyExists, out.Conflict)
	assert.Equal(t, []byte("a"), out.Result.Value)
	assert.Equal(t, uint64(2), sm.AppliedIndex())

	// compare-and-swap with the wrong version
	out = upsert(t, sm, 3, "__db/db1", Exact(7), "c")
	assert.Equal(t, ConflictVersionMismatch, out.Conflict)

	// compare-and-swap with the right version
	out = upsert(t, sm, 4, "__db/db1", Exact(1), "d")
	require.True(t, out.Applied)
	assert.Equal(t, uint64(2), out.Result.Version)
	assert.Equal(t, uint64(1), out.Result.CreatedIndex)
	assert.Equal(t, uint64(4), out.Result.UpdatedIndex)
	assert.Equal(t, []byte("a"), out.Prev.Value)

	// compare-and-swap on a missing key
	out = upsert(t, sm, 5, "__db/missing", Exact(1), "e")
	assert.Equal(t, ConflictNotFound, out.Conflict)

	// delete with the wrong version, then the right one
	del := NewDelete("__db/db1", Exact(1))
	out, err := sm.Apply(6, del.Serialize())
	require.NoError(t, err)
	assert.Equal(t, ConflictVersionMismatch, out.Conflict)

	del = NewDelete("__db/db1", Exact(2))
	out, err = sm.Apply(7, del.Serialize())
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, []byte("d"), out.Prev.Value)

	// delete of a missing key
	out, err = sm.Apply(8, del.Serialize())
	require.NoError(t, err)
	assert.Equal(t, ConflictNotFound, out.Conflict)

	_, ok := sm.Get("__db/db1")
	assert.False(t, ok)
}

func TestApplyIndexRules(t *testing.T) {
	sm := New()
	upsert(t, sm, 5, "k", Any(), "v")

	// gaps are fine, old or repeated indices are not
	noop := NewNoop()
	_, err := sm.Apply(5, noop.Serialize())
	kind, _ := metaerr.KindOf(err)
	assert.Equal(t, metaerr.KindUnknown, kind)

	_, err = sm.Apply(3, noop.Serialize())
	assert.Error(t, err)

	out, err := sm.Apply(10, noop.Serialize())
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, uint64(10), sm.AppliedIndex())
}

func TestApplyBadBytes(t *testing.T) {
	sm := New()

	_, err := sm.Apply(1, []byte{1, 2})
	kind, ok := metaerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, metaerr.KindBadBytes, kind)
	assert.Equal(t, uint64(0), sm.AppliedIndex(), "a bad entry must not advance the applied index")

	invalidKey := NewUpsert(string([]byte{0xff, 0xfe}), Any(), []byte("v"))
	_, err = sm.Apply(1, invalidKey.Serialize())
	kind, _ = metaerr.KindOf(err)
	assert.Equal(t, metaerr.KindBadBytes, kind)
	assert.Equal(t, 0, sm.Len())
}

func TestDeterminism(t *testing.T) {
	for _, seed := range []int64{1, 2, 3, 42} {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			log := randomLog(seed, 500)

			a, b := New(), New()
			applyAll(t, a, log)
			applyAll(t, b, log)

			assert.Equal(t, a.Snapshot(), b.Snapshot())
			assert.Equal(t, a.Digest(), b.Digest())
			assert.Equal(t, a.List(""), b.List(""))
		})
	}
}

func TestSnapshotReplayEquivalence(t *testing.T) {
	log := randomLog(7, 400)

	direct := New()
	applyAll(t, direct, log)

	for _, j := range []int{0, 1, 137, 399} {
		t.Run(fmt.Sprintf("snapshot after %d entries", j), func(t *testing.T) {
			source := New()
			applyAll(t, source, log[:j])
			snap := source.Snapshot()

			restored := New()
			require.NoError(t, restored.Restore(snap))
			applyAll(t, restored, log[j:])

			assert.Equal(t, direct.Snapshot(), restored.Snapshot())
			assert.Equal(t, direct.AppliedIndex(), restored.AppliedIndex())
		})
	}
}

func TestSnapshotIsSelfDescribing(t *testing.T) {
	sm := New()
	applyAll(t, sm, randomLog(3, 50))

	info, err := InspectSnapshot(sm.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, snapshotFormat, info.Format)
	assert.Equal(t, sm.AppliedIndex(), info.Applied)
	assert.Equal(t, uint64(sm.Len()), info.Records)
	assert.Equal(t, sm.Digest(), info.Checksum)

	var buf bytes.Buffer
	require.NoError(t, sm.SaveSnapshot(&buf))
	other := New()
	require.NoError(t, other.RecoverFromSnapshot(&buf))
	assert.Equal(t, sm.List(""), other.List(""))
}

func TestCorruptedSnapshot(t *testing.T) {
	sm := New()
	applyAll(t, sm, randomLog(5, 100))
	snap := sm.Snapshot()

	flipped := append([]byte(nil), snap...)
	flipped[len(flipped)/2] ^= 0xff

	badMagic := append([]byte(nil), snap...)
	badMagic[0] = 'X'

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", snap[:len(snap)-3]},
		{"flipped byte", flipped},
		{"bad magic", badMagic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := New()
			upsert(t, target, 1, "untouched", Any(), "v")

			err := target.Restore(tt.data)
			kind, ok := metaerr.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, metaerr.KindMetaStoreDamaged, kind)

			// the state is left as it was
			_, found := target.Get("untouched")
			assert.True(t, found)
		})
	}
}

func TestListByPrefix(t *testing.T) {
	sm := New()
	upsert(t, sm, 1, "__tbl/db1/b", Any(), "1")
	upsert(t, sm, 2, "__tbl/db1/a", Any(), "2")
	upsert(t, sm, 3, "__tbl/db10/a", Any(), "3")
	upsert(t, sm, 4, "__db/db1", Any(), "4")

	recs := sm.List("__tbl/db1/")
	require.Len(t, recs, 2)
	assert.Equal(t, "__tbl/db1/a", recs[0].Key)
	assert.Equal(t, "__tbl/db1/b", recs[1].Key)

	assert.Len(t, sm.List("__tbl/"), 3)
	assert.Empty(t, sm.List("__node/"))
}

func TestReadsReturnCopies(t *testing.T) {
	sm := New()
	upsert(t, sm, 1, "k", Any(), "value")

	rec, _ := sm.Get("k")
	rec.Value[0] = 'X'

	again, _ := sm.Get("k")
	assert.Equal(t, []byte("value"), again.Value)
}

func TestWaitApplied(t *testing.T) {
	sm := New()

	// already applied
	require.NoError(t, sm.WaitApplied(context.Background(), 0))

	// applied while waiting
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- sm.WaitApplied(ctx, 3)
	}()
	upsert(t, sm, 1, "a", Any(), "1")
	upsert(t, sm, 3, "b", Any(), "2")
	require.NoError(t, <-done)

	// deadline expires
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sm.WaitApplied(ctx, 100)
	kind, _ := metaerr.KindOf(err)
	assert.Equal(t, metaerr.KindReadTimeout, kind)

	// canceled by the caller
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	err = sm.WaitApplied(ctx, 100)
	kind, _ = metaerr.KindOf(err)
	assert.Equal(t, metaerr.KindConnection, kind)
}

func TestLookup(t *testing.T) {
	sm := New()
	upsert(t, sm, 1, "__db/a", Any(), "1")
	upsert(t, sm, 2, "__db/b", Any(), "2")

	res, err := sm.Lookup(Query{Type: QueryTGet, Key: "__db/a"})
	require.NoError(t, err)
	assert.True(t, res.Ok)
	assert.Equal(t, []byte("1"), res.Record.Value)
	assert.Equal(t, uint64(2), res.Applied)

	res, err = sm.Lookup(Query{Type: QueryTList, Key: "__db/"})
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)

	_, err = sm.Lookup(Query{Type: 99})
	assert.Error(t, err)
}
