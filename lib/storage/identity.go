package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/google/uuid"
)

const (
	identityFile   = "IDENTITY"
	identityFormat = 1
)

// Identity is the durable identity of a store directory.
type Identity struct {
	ID          uint64 `json:"id"`          // The node id the store belongs to
	Incarnation string `json:"incarnation"` // Random id generated on creation
	Format      int    `json:"format"`      // Format version of the directory layout
}

// readIdentity reads the identity file of the store at path. A missing file
// yields MetaStoreNotFound, an unreadable one MetaStoreDamaged.
func readIdentity(path string) (Identity, error) {
	var id Identity

	data, err := os.ReadFile(filepath.Join(path, identityFile))
	if errors.Is(err, os.ErrNotExist) {
		return id, metaerr.NotFound()
	}
	if err != nil {
		return id, metaerr.Damagedf("failed to read store identity: %v", err)
	}

	if err := json.Unmarshal(data, &id); err != nil {
		return id, metaerr.Damagedf("failed to parse store identity: %v", err)
	}
	if id.Format != identityFormat {
		return id, metaerr.Damagedf("unsupported store format %d", id.Format)
	}
	if _, err := uuid.Parse(id.Incarnation); err != nil {
		return id, metaerr.Damagedf("invalid store incarnation %q: %v", id.Incarnation, err)
	}
	return id, nil
}

// writeIdentity durably creates the identity file: the content is written to a
// temporary file which is synced, renamed and then the directory is synced.
func writeIdentity(path string, id Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(path, identityFile+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, filepath.Join(path, identityFile)); err != nil {
		return err
	}
	return syncDir(path)
}

// syncDir fsyncs a directory, making renames and file creations in it durable
func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync directory %s: %w", path, err)
	}
	return nil
}

// newIdentity creates a fresh identity for id
func newIdentity(id uint64) Identity {
	return Identity{
		ID:          id,
		Incarnation: uuid.NewString(),
		Format:      identityFormat,
	}
}
