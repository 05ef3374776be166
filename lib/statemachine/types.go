package statemachine

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// Record is a single entry of the metadata store.
type Record struct {
	Key          string `json:"key"`
	Value        []byte `json:"value,omitempty"`
	Version      uint64 `json:"version"`       // Monotonic version, unique across all records
	CreatedIndex uint64 `json:"created_index"` // Log index that created the record
	UpdatedIndex uint64 `json:"updated_index"` // Log index of the last update
}

// clone returns a deep copy of the record (the value slice is not shared)
func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Value != nil {
		c.Value = append([]byte(nil), r.Value...)
	}
	return &c
}

// --------------------------------------------------------------------------
// Conditions
// --------------------------------------------------------------------------

// MatchKind defines the condition a write is evaluated against.
type MatchKind uint8

const (
	MatchAny    MatchKind = iota // Unconditional write
	MatchAbsent                  // Write only if the key does not exist (create-if-absent)
	MatchExact                   // Write only if the current version equals MatchSeq.Version (compare-and-swap)
)

func (m MatchKind) String() string {
	switch m {
	case MatchAny:
		return "any"
	case MatchAbsent:
		return "absent"
	case MatchExact:
		return "exact"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// MatchSeq is the condition of a conditional write.
type MatchSeq struct {
	Kind    MatchKind `json:"kind"`
	Version uint64    `json:"version,omitempty"`
}

// Any matches every state of a key.
func Any() MatchSeq { return MatchSeq{Kind: MatchAny} }

// Absent matches only a key that does not exist.
func Absent() MatchSeq { return MatchSeq{Kind: MatchAbsent} }

// Exact matches only a key with the given version.
func Exact(version uint64) MatchSeq { return MatchSeq{Kind: MatchExact, Version: version} }

// check evaluates the condition against the current record (nil if absent)
func (m MatchSeq) check(current *Record) Conflict {
	switch m.Kind {
	case MatchAbsent:
		if current != nil {
			return ConflictAlreadyExists
		}
	case MatchExact:
		if current == nil {
			return ConflictNotFound
		}
		if current.Version != m.Version {
			return ConflictVersionMismatch
		}
	}
	return ConflictNone
}

// --------------------------------------------------------------------------
// Apply Outcome
// --------------------------------------------------------------------------

// Conflict is a business level outcome of an applied entry.
type Conflict uint8

const (
	ConflictNone            Conflict = iota // The write was executed
	ConflictAlreadyExists                   // MatchAbsent on an existing key
	ConflictVersionMismatch                 // MatchExact with another version
	ConflictNotFound                        // The key does not exist
)

func (c Conflict) String() string {
	switch c {
	case ConflictNone:
		return "none"
	case ConflictAlreadyExists:
		return "already exists"
	case ConflictVersionMismatch:
		return "version mismatch"
	case ConflictNotFound:
		return "not found"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// MarshalJSON implements the json.Marshaller interface for Conflict.
func (c Conflict) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Conflict.
func (c *Conflict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "none":
		*c = ConflictNone
	case "already exists":
		*c = ConflictAlreadyExists
	case "version mismatch":
		*c = ConflictVersionMismatch
	case "not found":
		*c = ConflictNotFound
	default:
		return fmt.Errorf("unknown conflict: %s", s)
	}
	return nil
}

// ApplyOutcome reports the result of applying one log entry. A conflict is not an
// error: the entry was applied, the condition just did not hold.
type ApplyOutcome struct {
	Index    uint64   `json:"index"`
	Applied  bool     `json:"applied"`          // Whether the state was changed
	Conflict Conflict `json:"conflict"`         // Why the state was not changed
	Prev     *Record  `json:"prev,omitempty"`   // The record before the entry was applied
	Result   *Record  `json:"result,omitempty"` // The record after the entry was applied
}

// --------------------------------------------------------------------------
// Read Consistency
// --------------------------------------------------------------------------

// Consistency is the consistency level of a read.
type Consistency uint8

const (
	Latest       Consistency = iota // Read the latest applied state (may be stale)
	Linearizable                    // Observe every write committed before the read was issued
)

func (c Consistency) String() string {
	switch c {
	case Latest:
		return "latest"
	case Linearizable:
		return "linearizable"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseConsistency parses the names returned by Consistency.String
func ParseConsistency(s string) (Consistency, error) {
	switch s {
	case "latest", "stale":
		return Latest, nil
	case "linearizable", "":
		return Linearizable, nil
	default:
		return 0, fmt.Errorf("invalid consistency level %s (expected latest or linearizable)", s)
	}
}
