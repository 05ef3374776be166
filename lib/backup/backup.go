package backup

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/storage"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("backup")

// Export opens the store at path, rebuilds the state (snapshot + log replay) and
// writes it as a snapshot to w. The store must not be in use by a running server.
func Export(path string, w io.Writer) (statemachine.SnapshotInfo, error) {
	st, err := storage.Open(path)
	if err != nil {
		return statemachine.SnapshotInfo{}, err
	}
	defer st.Close()

	sm := statemachine.New()
	if err := store.Recover(st, sm); err != nil {
		return statemachine.SnapshotInfo{}, err
	}

	data := sm.Snapshot()
	info, err := statemachine.InspectSnapshot(data)
	if err != nil {
		return statemachine.SnapshotInfo{}, err
	}
	if _, err := w.Write(data); err != nil {
		return statemachine.SnapshotInfo{}, fmt.Errorf("failed to write snapshot: %w", err)
	}
	log.Infof("exported %s: %d records at index %d", path, info.Records, info.Applied)
	return info, nil
}

// Import validates the snapshot read from r and installs it into the store at
// path. The store is created for node id if it does not exist, an existing store
// must be empty. The snapshot is durable when Import returns.
func Import(path string, id uint64, r io.Reader) (statemachine.SnapshotInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return statemachine.SnapshotInfo{}, fmt.Errorf("failed to read snapshot: %w", err)
	}

	// a full restore validates every record, not only the header
	sm := statemachine.New()
	if err := sm.Restore(data); err != nil {
		return statemachine.SnapshotInfo{}, err
	}
	info, err := statemachine.InspectSnapshot(data)
	if err != nil {
		return statemachine.SnapshotInfo{}, err
	}

	st, err := storage.Create(path, id)
	if err != nil {
		return statemachine.SnapshotInfo{}, err
	}
	defer st.Close()

	if last := st.LastIndex(); last > 0 {
		return statemachine.SnapshotInfo{}, metaerr.InvalidConfig(fmt.Sprintf(
			"store at %s is not empty (last index %d), import needs an empty store", path, last))
	}
	if err := st.SaveSnapshot(info.Applied, data); err != nil {
		return statemachine.SnapshotInfo{}, err
	}
	log.Infof("imported %d records at index %d into %s", info.Records, info.Applied, path)
	return info, nil
}

// Inspect validates the snapshot read from r and returns its header.
func Inspect(r io.Reader) (statemachine.SnapshotInfo, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return statemachine.SnapshotInfo{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return statemachine.InspectSnapshot(buf.Bytes())
}
