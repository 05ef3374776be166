package store

import (
	"context"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IMetaStore is the interface of the replicated metadata store used by the
// compute layer. Every failure is returned as a *metaerr.MetaError.
//
// Writes are conditional: match decides whether the write is applied. A failed
// condition is reported in the ApplyOutcome (Conflict), not as an error, because
// the log entry was still applied.
type IMetaStore interface {
	// Get returns the record for key. The boolean return value indicates whether the key was found.
	Get(ctx context.Context, key string, level statemachine.Consistency) (rec statemachine.Record, found bool, err error)
	// List returns all records whose key starts with prefix, in key order.
	List(ctx context.Context, prefix string, level statemachine.Consistency) (recs []statemachine.Record, err error)
	// Upsert creates or updates key if match holds.
	Upsert(ctx context.Context, key string, match statemachine.MatchSeq, value []byte) (out statemachine.ApplyOutcome, err error)
	// Delete removes key if match holds.
	Delete(ctx context.Context, key string, match statemachine.MatchSeq) (out statemachine.ApplyOutcome, err error)
	// Members returns the current cluster membership.
	Members(ctx context.Context) (m Membership, err error)
	// AddNode adds a replica with the given id and address to the cluster.
	AddNode(ctx context.Context, id uint64, address string) (err error)
	// RemoveNode removes the replica with the given id from the cluster.
	RemoveNode(ctx context.Context, id uint64) (err error)
	// Close releases all resources. The store must not be used afterwards.
	Close() (err error)
}

// Membership describes the replicas of a cluster.
type Membership struct {
	ConfigChangeID uint64            `json:"configChangeId"`
	Nodes          map[uint64]string `json:"nodes"` // replica id -> address
	Leader         uint64            `json:"leader,omitempty"`
	LeaderKnown    bool              `json:"leaderKnown"`
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ValidateKey checks a key before it is proposed. Keys must be non-empty UTF-8,
// an invalid key is rejected with BadBytes before it reaches the log.
func ValidateKey(key string) error {
	if key == "" {
		return metaerr.BadBytes("key must not be empty")
	}
	if _, err := metaerr.DecodeUTF8([]byte(key)); err != nil {
		return err
	}
	return nil
}
