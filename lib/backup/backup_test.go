package backup

import (
	"bytes"
	"context"
	"testing"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/ValentinKolb/dMeta/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fill writes n records into a new store at dir and closes it
func fill(t *testing.T, dir string, n int) {
	t.Helper()
	st, err := storage.Create(dir, 1)
	require.NoError(t, err)
	s, err := lstore.NewLocalStore(st, nil, lstore.Config{CheckpointEntries: 3})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := s.Upsert(context.Background(), string(rune('a'+i)), statemachine.Any(), []byte{byte(i)})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())
}

func requireKind(t *testing.T, err error, kind metaerr.Kind) {
	t.Helper()
	got, ok := metaerr.KindOf(err)
	require.True(t, ok, "expected a MetaError, got %v", err)
	require.Equal(t, kind, got, "unexpected error %v", err)
}

func TestExportImport(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	fill(t, src, 5)

	var buf bytes.Buffer
	info, err := Export(src, &buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), info.Applied)
	assert.Equal(t, uint64(5), info.Records)

	inspected, err := Inspect(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, info, inspected)

	imported, err := Import(dst, 2, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, info, imported)

	// the imported store serves the same state and continues after the snapshot
	st, err := storage.Open(dst)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Identity().ID)
	s, err := lstore.NewLocalStore(st, nil, lstore.Config{})
	require.NoError(t, err)
	defer s.Close()

	rec, found, err := s.Get(context.Background(), "c", statemachine.Linearizable)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{2}, rec.Value)

	out, err := s.Upsert(context.Background(), "z", statemachine.Any(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), out.Index)
}

func TestImportRejects(t *testing.T) {
	src := t.TempDir()
	fill(t, src, 2)
	var buf bytes.Buffer
	_, err := Export(src, &buf)
	require.NoError(t, err)
	snap := buf.Bytes()

	t.Run("non empty store", func(t *testing.T) {
		_, err := Import(src, 1, bytes.NewReader(snap))
		requireKind(t, err, metaerr.KindInvalidConfig)
	})

	t.Run("other identity", func(t *testing.T) {
		_, err := Import(src, 9, bytes.NewReader(snap))
		requireKind(t, err, metaerr.KindMetaStoreAlreadyExists)
	})

	t.Run("damaged snapshot", func(t *testing.T) {
		damaged := append([]byte(nil), snap...)
		damaged[len(damaged)/2] ^= 0xff
		_, err := Import(t.TempDir(), 1, bytes.NewReader(damaged))
		requireKind(t, err, metaerr.KindMetaStoreDamaged)

		_, err = Inspect(bytes.NewReader(damaged))
		requireKind(t, err, metaerr.KindMetaStoreDamaged)
	})
}

func TestExportMissingStore(t *testing.T) {
	_, err := Export(t.TempDir(), &bytes.Buffer{})
	requireKind(t, err, metaerr.KindMetaStoreNotFound)
}
