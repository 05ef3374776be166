package statemachine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/cespare/xxhash/v2"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Snapshot Format
// --------------------------------------------------------------------------

// A snapshot is a self describing binary blob:
//
//	8 bytes  magic "DMETASNP"
//	2 bytes  format version
//	8 bytes  applied index
//	8 bytes  sequence (last assigned version)
//	8 bytes  record count
//	records  (in key order):
//	         4 bytes key length, key,
//	         4 bytes value length, value,
//	         8 bytes version, 8 bytes created index, 8 bytes updated index
//	8 bytes  xxhash64 of everything before
//
// All integers are big endian. The same state always yields the same bytes.
const (
	snapshotMagic   = "DMETASNP"
	snapshotFormat  = uint16(1)
	snapshotHeader  = 8 + 2 + 8 + 8 + 8
	snapshotTrailer = 8
)

// SnapshotInfo describes a snapshot without the records.
type SnapshotInfo struct {
	Format   uint16 `json:"format" yaml:"format"`
	Applied  uint64 `json:"applied" yaml:"applied"`
	Seq      uint64 `json:"seq" yaml:"seq"`
	Records  uint64 `json:"records" yaml:"records"`
	Checksum uint64 `json:"checksum" yaml:"checksum"`
}

// Snapshot returns a complete snapshot of the current state.
func (s *StateMachine) Snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := bytes.NewBuffer(make([]byte, 0, snapshotHeader+snapshotTrailer+s.records.Len()*64))
	buf.WriteString(snapshotMagic)
	buf.Write(binary.BigEndian.AppendUint16(nil, snapshotFormat))
	buf.Write(binary.BigEndian.AppendUint64(nil, s.applied))
	buf.Write(binary.BigEndian.AppendUint64(nil, s.seq))
	buf.Write(binary.BigEndian.AppendUint64(nil, uint64(s.records.Len())))

	s.records.Ascend(func(i btree.Item) bool {
		rec := i.(item).rec
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(rec.Key))))
		buf.WriteString(rec.Key)
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(rec.Value))))
		buf.Write(rec.Value)
		buf.Write(binary.BigEndian.AppendUint64(nil, rec.Version))
		buf.Write(binary.BigEndian.AppendUint64(nil, rec.CreatedIndex))
		buf.Write(binary.BigEndian.AppendUint64(nil, rec.UpdatedIndex))
		return true
	})

	sum := xxhash.Sum64(buf.Bytes())
	buf.Write(binary.BigEndian.AppendUint64(nil, sum))
	return buf.Bytes()
}

// SaveSnapshot writes a snapshot of the current state to w.
func (s *StateMachine) SaveSnapshot(w io.Writer) error {
	_, err := w.Write(s.Snapshot())
	return err
}

// Digest returns the checksum of the current snapshot. Two state machines with the
// same digest hold bit identical state.
func (s *StateMachine) Digest() uint64 {
	snap := s.Snapshot()
	return binary.BigEndian.Uint64(snap[len(snap)-snapshotTrailer:])
}

// Restore replaces the current state with the snapshot. Any malformed snapshot
// fails with MetaStoreDamaged and leaves the current state untouched.
func (s *StateMachine) Restore(data []byte) error {
	info, records, err := decodeSnapshot(data)
	if err != nil {
		log.Errorf("failed to restore snapshot: %v", err)
		return err
	}

	tree := btree.New(btreeDegree)
	for _, rec := range records {
		tree.ReplaceOrInsert(item{key: rec.Key, rec: rec})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = tree
	s.seq = info.Seq
	s.advance(info.Applied)

	log.Infof("restored snapshot at index %d with %d records", info.Applied, info.Records)
	return nil
}

// RecoverFromSnapshot reads a snapshot from r and restores it.
func (s *StateMachine) RecoverFromSnapshot(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return metaerr.Damagedf("failed to read snapshot: %v", err)
	}
	return s.Restore(data)
}

// InspectSnapshot validates a snapshot and returns its header.
func InspectSnapshot(data []byte) (SnapshotInfo, error) {
	info, _, err := decodeSnapshot(data)
	return info, err
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// snapshotReader reads big endian values and remembers the first error
type snapshotReader struct {
	data []byte
	pos  int
	err  error
}

func (r *snapshotReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.pos < n {
		r.err = fmt.Errorf("snapshot truncated at offset %d", r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *snapshotReader) uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *snapshotReader) uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *snapshotReader) uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// decodeSnapshot validates and decodes a snapshot
func decodeSnapshot(data []byte) (SnapshotInfo, []*Record, error) {
	var info SnapshotInfo

	if len(data) < snapshotHeader+snapshotTrailer {
		return info, nil, metaerr.Damagedf("snapshot too short: %d bytes", len(data))
	}
	if string(data[:len(snapshotMagic)]) != snapshotMagic {
		return info, nil, metaerr.Damaged("snapshot has an invalid magic number")
	}

	body := data[:len(data)-snapshotTrailer]
	info.Checksum = binary.BigEndian.Uint64(data[len(data)-snapshotTrailer:])
	if sum := xxhash.Sum64(body); sum != info.Checksum {
		return info, nil, metaerr.Damagedf("snapshot checksum mismatch: stored %x, computed %x", info.Checksum, sum)
	}

	r := &snapshotReader{data: body, pos: len(snapshotMagic)}
	info.Format = r.uint16()
	if info.Format != snapshotFormat {
		return info, nil, metaerr.Damagedf("unsupported snapshot format %d", info.Format)
	}
	info.Applied = r.uint64()
	info.Seq = r.uint64()
	info.Records = r.uint64()

	// every record needs at least 32 bytes, this bounds the allocation below
	if info.Records > uint64(len(body))/32 {
		return info, nil, metaerr.Damagedf("snapshot claims %d records in %d bytes", info.Records, len(body))
	}

	records := make([]*Record, 0, info.Records)
	prev := ""
	for i := uint64(0); i < info.Records; i++ {
		key := r.take(int(r.uint32()))
		value := r.take(int(r.uint32()))
		rec := &Record{
			Key:          string(key),
			Version:      r.uint64(),
			CreatedIndex: r.uint64(),
			UpdatedIndex: r.uint64(),
		}
		if r.err != nil {
			return info, nil, metaerr.Damaged(r.err.Error())
		}
		if len(value) > 0 {
			rec.Value = append([]byte(nil), value...)
		}
		if i > 0 && rec.Key <= prev {
			return info, nil, metaerr.Damagedf("snapshot records out of order at %q", rec.Key)
		}
		if rec.Version > info.Seq || rec.UpdatedIndex > info.Applied {
			return info, nil, metaerr.Damagedf("snapshot record %q is newer than the snapshot", rec.Key)
		}
		prev = rec.Key
		records = append(records, rec)
	}
	if r.pos != len(body) {
		return info, nil, metaerr.Damagedf("snapshot has %d trailing bytes", len(body)-r.pos)
	}

	return info, records, nil
}
