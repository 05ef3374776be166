package statemachine

import (
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
)

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet     QueryType = iota // Retrieve a record by key.
	QueryTList                     // Retrieve all records with a key prefix.
	QueryTApplied                  // Retrieve the applied index.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTList:
		return "List"
	case QueryTApplied:
		return "Applied"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key or prefix for the Query (empty for some queries).
}

// QueryResult is the result of a Query.
type QueryResult struct {
	Ok      bool     // Whether the record was found (QueryTGet)
	Record  Record   // The record (QueryTGet)
	Records []Record // The records (QueryTList)
	Applied uint64   // The applied index at the time of the query
}

// Lookup executes a read-only query against the current state.
func (s *StateMachine) Lookup(q Query) (QueryResult, error) {
	switch q.Type {
	case QueryTGet:
		s.mu.RLock()
		defer s.mu.RUnlock()
		rec, ok := s.get(q.Key)
		res := QueryResult{Ok: ok, Applied: s.applied}
		if ok {
			res.Record = *rec.clone()
		}
		return res, nil
	case QueryTList:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return QueryResult{Records: s.list(q.Key), Applied: s.applied}, nil
	case QueryTApplied:
		return QueryResult{Applied: s.AppliedIndex()}, nil
	default:
		return QueryResult{}, metaerr.Unknown(fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}
