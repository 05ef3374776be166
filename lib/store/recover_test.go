package store

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLog appends n upserts to st and applies them to sm
func writeLog(t *testing.T, st *storage.Store, sm *statemachine.StateMachine, from, n int) {
	t.Helper()
	for i := from; i < from+n; i++ {
		cmd := statemachine.NewUpsert(fmt.Sprintf("__node/%03d", i%7), statemachine.Any(), []byte(fmt.Sprintf("v%d", i)))
		index := st.LastIndex() + 1
		require.NoError(t, st.Append(storage.Entry{Index: index, Data: cmd.Serialize()}))
		_, err := sm.Apply(index, cmd.Serialize())
		require.NoError(t, err)
	}
}

func TestRecover(t *testing.T) {
	tests := []struct {
		name     string
		snapshot bool
	}{
		{"log only", false},
		{"snapshot and log", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := storage.Create(t.TempDir(), 1)
			require.NoError(t, err)
			defer st.Close()

			live := statemachine.New()
			writeLog(t, st, live, 0, 20)
			if tt.snapshot {
				require.NoError(t, st.SaveSnapshot(live.AppliedIndex(), live.Snapshot()))
			}
			writeLog(t, st, live, 20, 15)

			recovered := statemachine.New()
			require.NoError(t, Recover(st, recovered))
			assert.Equal(t, live.Snapshot(), recovered.Snapshot())
		})
	}
}

func TestRecoverRejectsUnreplayableLog(t *testing.T) {
	st, err := storage.Create(t.TempDir(), 1)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Append(storage.Entry{Index: 1, Data: []byte{0xde, 0xad}}))

	err = Recover(st, statemachine.New())
	kind, ok := metaerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, metaerr.KindMetaStoreDamaged, kind)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("__db/sales"))
	assert.NoError(t, ValidateKey("__tbl/ümlaut/täble"))

	for _, key := range []string{"", string([]byte{0xc3, 0x28})} {
		kind, _ := metaerr.KindOf(ValidateKey(key))
		assert.Equal(t, metaerr.KindBadBytes, kind)
	}
}
