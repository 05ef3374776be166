package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("storage")

	fsyncDuration = metrics.NewHistogram("dmeta_storage_fsync_duration_seconds")
	appendedTotal = metrics.NewCounter("dmeta_storage_appended_entries_total")
)

const (
	dbDir = "db"

	// value header: 8 bytes index + 8 bytes xxhash64
	valueHeaderSize = 16
)

var (
	logPrefix   = []byte("log/")
	logEnd      = []byte("log0") // first key after all "log/" keys
	snapshotKey = []byte("meta/snapshot")
)

// Entry is a single log entry.
type Entry struct {
	Index uint64
	Data  []byte
}

// Info describes the content of a store.
type Info struct {
	Path          string   `json:"path" yaml:"path"`
	Identity      Identity `json:"identity" yaml:"identity"`
	LastIndex     uint64   `json:"last_index" yaml:"last_index"`
	SnapshotIndex uint64   `json:"snapshot_index" yaml:"snapshot_index"`
	LogEntries    int      `json:"log_entries" yaml:"log_entries"`
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store is the durable storage of one replica: the log of committed entries and the
// latest state machine snapshot, kept in a pebble database next to an IDENTITY file.
//
// Every write is synced before the call returns. Every read verifies checksums;
// corruption is reported as MetaStoreDamaged and never skipped or repaired.
type Store struct {
	mu        sync.Mutex
	path      string
	identity  Identity
	db        *pebble.DB
	last      uint64 // the last appended (or snapshotted) index
	snapIndex uint64 // the index of the latest snapshot
	closed    bool
}

// Create creates a store for node id at path. If a store with the same id already
// exists it is opened, a store with another id fails with MetaStoreAlreadyExists.
func Create(path string, id uint64) (*Store, error) {
	if id == 0 {
		return nil, metaerr.InvalidConfig("store id must not be 0")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, metaerr.InvalidConfig(fmt.Sprintf("failed to create store directory %s: %v", path, err))
	}

	existing, err := readIdentity(path)
	switch {
	case err == nil:
		if existing.ID != id {
			return nil, metaerr.AlreadyExists(existing.ID)
		}
		return open(path, existing, true)
	case errors.Is(err, metaerr.NotFound()):
		// continue below
	default:
		return nil, err
	}

	identity := newIdentity(id)

	// the database is created before the identity, an identity always points at a database
	s, err := open(path, identity, false)
	if err != nil {
		return nil, err
	}
	if err := writeIdentity(path, identity); err != nil {
		_ = s.Close()
		return nil, metaerr.Damagedf("failed to write store identity: %v", err)
	}

	log.Infof("created store %s for node %d (incarnation %s)", path, id, identity.Incarnation)
	return s, nil
}

// Open opens the existing store at path. It fails with MetaStoreNotFound if there
// is no store.
func Open(path string) (*Store, error) {
	identity, err := readIdentity(path)
	if err != nil {
		return nil, err
	}
	return open(path, identity, true)
}

// open opens the pebble database and loads the log bounds
func open(path string, identity Identity, mustExist bool) (*Store, error) {
	db, err := pebble.Open(filepath.Join(path, dbDir), &pebble.Options{ErrorIfNotExists: mustExist})
	if err != nil {
		return nil, metaerr.Damagedf("failed to open store database: %v", err)
	}

	s := &Store{
		path:     path,
		identity: identity,
		db:       db,
	}

	snapIndex, _, found, err := s.readSnapshot(false)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if found {
		s.snapIndex = snapIndex
	}

	s.last = s.snapIndex
	iter := db.NewIter(&pebble.IterOptions{LowerBound: logPrefix, UpperBound: logEnd})
	if iter.Last() {
		index, ok := parseLogKey(iter.Key())
		if !ok {
			_ = iter.Close()
			_ = db.Close()
			return nil, metaerr.Damagedf("malformed log key %x", iter.Key())
		}
		if index > s.last {
			s.last = index
		}
	}
	if err := iter.Close(); err != nil {
		_ = db.Close()
		return nil, metaerr.Damagedf("failed to read log bounds: %v", err)
	}

	log.Debugf("opened store %s (last index %d, snapshot index %d)", path, s.last, s.snapIndex)
	return s, nil
}

// --------------------------------------------------------------------------
// Log
// --------------------------------------------------------------------------

// Append durably appends the entries. Indices must be strictly increasing and larger
// than every index already in the store, gaps are allowed.
func (s *Store) Append(entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return metaerr.Unknown("store is closed")
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	prev := s.last
	for _, e := range entries {
		if e.Index <= prev {
			return metaerr.Unknownf("log append out of order: index %d after %d", e.Index, prev)
		}
		if err := batch.Set(logKey(e.Index), encodeValue(e.Index, e.Data), nil); err != nil {
			return metaerr.Damagedf("failed to stage log entry %d: %v", e.Index, err)
		}
		prev = e.Index
	}

	start := time.Now()
	if err := batch.Commit(pebble.Sync); err != nil {
		log.Errorf("failed to append %d log entries: %v", len(entries), err)
		return metaerr.Damagedf("failed to append log entries: %v", err)
	}
	fsyncDuration.UpdateDuration(start)
	appendedTotal.Add(len(entries))

	s.last = prev
	return nil
}

// Entries returns all log entries after the given index in index order.
func (s *Store) Entries(after uint64) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, metaerr.Unknown("store is closed")
	}

	iter := s.db.NewIter(&pebble.IterOptions{LowerBound: logKey(after + 1), UpperBound: logEnd})
	defer iter.Close()

	entries := make([]Entry, 0)
	prev := after
	for iter.First(); iter.Valid(); iter.Next() {
		index, ok := parseLogKey(iter.Key())
		if !ok {
			return nil, metaerr.Damagedf("malformed log key %x", iter.Key())
		}
		if index <= prev {
			return nil, metaerr.Damagedf("log index %d out of order after %d", index, prev)
		}
		data, err := decodeValue(index, iter.Value())
		if err != nil {
			log.Errorf("log entry %d is damaged: %v", index, err)
			return nil, err
		}
		entries = append(entries, Entry{Index: index, Data: data})
		prev = index
	}
	if err := iter.Error(); err != nil {
		return nil, metaerr.Damagedf("failed to read log: %v", err)
	}
	return entries, nil
}

// LastIndex returns the index of the last appended entry (or of the snapshot, if newer).
func (s *Store) LastIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// SaveSnapshot durably stores the snapshot taken at index and removes all log
// entries up to and including index. Both happen atomically.
func (s *Store) SaveSnapshot(index uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return metaerr.Unknown("store is closed")
	}
	if index < s.snapIndex {
		return metaerr.Unknownf("snapshot at index %d is older than the stored one at %d", index, s.snapIndex)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(snapshotKey, encodeValue(index, data), nil); err != nil {
		return metaerr.Damagedf("failed to stage snapshot: %v", err)
	}
	if err := batch.DeleteRange(logKey(0), logKey(index+1), nil); err != nil {
		return metaerr.Damagedf("failed to stage log compaction: %v", err)
	}

	start := time.Now()
	if err := batch.Commit(pebble.Sync); err != nil {
		log.Errorf("failed to save snapshot at index %d: %v", index, err)
		return metaerr.Damagedf("failed to save snapshot: %v", err)
	}
	fsyncDuration.UpdateDuration(start)

	s.snapIndex = index
	if index > s.last {
		s.last = index
	}
	log.Infof("saved snapshot at index %d (%d bytes), compacted log", index, len(data))
	return nil
}

// Snapshot returns the latest snapshot. found is false if no snapshot was saved yet.
func (s *Store) Snapshot() (index uint64, data []byte, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, nil, false, metaerr.Unknown("store is closed")
	}
	return s.readSnapshot(true)
}

// readSnapshot reads and verifies the snapshot. The caller holds the lock (or owns the store).
func (s *Store) readSnapshot(withData bool) (uint64, []byte, bool, error) {
	value, closer, err := s.db.Get(snapshotKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, metaerr.Damagedf("failed to read snapshot: %v", err)
	}
	defer closer.Close()

	if len(value) < valueHeaderSize {
		return 0, nil, false, metaerr.Damaged("snapshot record truncated")
	}
	index := binary.BigEndian.Uint64(value[:8])
	data, err := decodeValue(index, value)
	if err != nil {
		return 0, nil, false, err
	}
	if !withData {
		return index, nil, true, nil
	}
	return index, data, true, nil
}

// SnapshotIndex returns the index of the latest snapshot (0 if there is none).
func (s *Store) SnapshotIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapIndex
}

// --------------------------------------------------------------------------
// Lifecycle and Info
// --------------------------------------------------------------------------

// Identity returns the identity of the store.
func (s *Store) Identity() Identity {
	return s.identity
}

// Path returns the directory of the store.
func (s *Store) Path() string {
	return s.path
}

// Info returns a description of the store content.
func (s *Store) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Path:          s.path,
		Identity:      s.identity,
		LastIndex:     s.last,
		SnapshotIndex: s.snapIndex,
	}
	if s.closed {
		return info, metaerr.Unknown("store is closed")
	}

	iter := s.db.NewIter(&pebble.IterOptions{LowerBound: logPrefix, UpperBound: logEnd})
	for iter.First(); iter.Valid(); iter.Next() {
		info.LogEntries++
	}
	if err := iter.Close(); err != nil {
		return info, metaerr.Damagedf("failed to read log: %v", err)
	}
	return info, nil
}

// Sync makes sure all previous writes are durable.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return metaerr.Unknown("store is closed")
	}
	if err := s.db.LogData(nil, pebble.Sync); err != nil {
		return metaerr.Damagedf("failed to sync store: %v", err)
	}
	return nil
}

// Close closes the store. Closing a closed store is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// logKey returns the key of the log entry at index ("log/" + 8 bytes big endian)
func logKey(index uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), logPrefix...), index)
}

// parseLogKey is the inverse of logKey
func parseLogKey(key []byte) (uint64, bool) {
	if len(key) != len(logPrefix)+8 || string(key[:len(logPrefix)]) != string(logPrefix) {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(logPrefix):]), true
}

// checksum covers the index and the payload, a value moved to another key is detected
func checksum(index uint64, data []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(binary.BigEndian.AppendUint64(nil, index))
	_, _ = d.Write(data)
	return d.Sum64()
}

// encodeValue returns 8 bytes index + 8 bytes checksum + data
func encodeValue(index uint64, data []byte) []byte {
	value := make([]byte, valueHeaderSize, valueHeaderSize+len(data))
	binary.BigEndian.PutUint64(value[:8], index)
	binary.BigEndian.PutUint64(value[8:16], checksum(index, data))
	return append(value, data...)
}

// decodeValue verifies a value and returns a copy of its payload
func decodeValue(index uint64, value []byte) ([]byte, error) {
	if len(value) < valueHeaderSize {
		return nil, metaerr.Damagedf("record at index %d truncated (%d bytes)", index, len(value))
	}
	if stored := binary.BigEndian.Uint64(value[:8]); stored != index {
		return nil, metaerr.Damagedf("record at index %d claims index %d", index, stored)
	}
	data := value[valueHeaderSize:]
	if sum := binary.BigEndian.Uint64(value[8:16]); sum != checksum(index, data) {
		return nil, metaerr.Damagedf("checksum mismatch for record at index %d", index)
	}
	return append([]byte(nil), data...), nil
}
