package router

import "github.com/ValentinKolb/dMeta/lib/metaerr"

// OpKind is the kind of operation a router executes.
type OpKind uint8

const (
	OpRead OpKind = iota
	OpWrite
	OpMembership
)

func (o OpKind) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpMembership:
		return "membership"
	default:
		return "unknown"
	}
}

// Action is what the router does after a failed attempt.
type Action uint8

const (
	ActionSurface Action = iota // return the error to the caller
	ActionRetry                 // try again
)

func (a Action) String() string {
	if a == ActionRetry {
		return "retry"
	}
	return "surface"
}

// CacheOp is the change of the leader cache that comes with a decision.
type CacheOp uint8

const (
	CacheKeep CacheOp = iota
	CacheSet
	CacheInvalidate
)

// Attempt describes the attempt that failed.
type Attempt struct {
	Op                   OpKind
	Target               uint64 // the node the attempt was sent to
	SameEndpointFailures int    // connection failures at Target before this attempt
	Cached               uint64 // the cached leader when the attempt failed
	CachedKnown          bool
}

// Decision is the result of Decide.
type Decision struct {
	Action     Action
	Target     uint64
	HasTarget  bool // false: the router picks the next replica itself
	Backoff    bool // wait before the next attempt
	Cache      CacheOp
	CacheValue uint64 // the new leader for CacheSet, the expected one for CacheInvalidate
}

// Decide is the retry decision table. It is a pure function of the failed attempt
// and its error:
//
//	ForwardToLeader{id}   retry at id immediately, cache := id
//	ForwardToLeader{}     back off, retry at the cached leader or the next replica,
//	                      invalidate the cache if the cached leader answered this
//	ConnectionError       retry the same endpoint up to sameEndpointRetries times,
//	                      then the cached leader (writes) or the next replica
//	ReadTimeout           back off, retry the same target
//	everything else       surface
func Decide(a Attempt, err error, sameEndpointRetries int) Decision {
	me, ok := metaerr.As(err)
	if !ok {
		return Decision{Action: ActionSurface}
	}

	switch me.Kind {
	case metaerr.KindForwardToLeader:
		if me.Forward != nil && me.Forward.Leader != nil {
			// a just reported leader is fresher than the cached one
			leader := *me.Forward.Leader
			return Decision{
				Action:     ActionRetry,
				Target:     leader,
				HasTarget:  true,
				Cache:      CacheSet,
				CacheValue: leader,
			}
		}

		// election in progress
		d := Decision{Action: ActionRetry, Backoff: true}
		if a.CachedKnown && a.Cached == a.Target {
			d.Cache = CacheInvalidate
			d.CacheValue = a.Cached
			return d
		}
		if a.CachedKnown {
			d.Target = a.Cached
			d.HasTarget = true
		}
		return d

	case metaerr.KindConnection:
		d := Decision{Action: ActionRetry, Backoff: true}
		if a.SameEndpointFailures+1 < sameEndpointRetries {
			d.Target = a.Target
			d.HasTarget = true
			return d
		}
		if a.CachedKnown && a.Cached == a.Target {
			// the cached leader is not reachable
			d.Cache = CacheInvalidate
			d.CacheValue = a.Cached
			return d
		}
		if a.Op != OpRead && a.CachedKnown {
			d.Target = a.Cached
			d.HasTarget = true
		}
		return d

	case metaerr.KindReadTimeout:
		return Decision{Action: ActionRetry, Backoff: true, Target: a.Target, HasTarget: true}

	default:
		return Decision{Action: ActionSurface}
	}
}
