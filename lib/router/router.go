package router

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("router")

// Config bounds the retries of a router.
type Config struct {
	MaxAttempts         int           `json:"maxAttempts" yaml:"max-attempts"`                   // Total attempts per operation (including the first)
	MaxElapsed          time.Duration `json:"maxElapsed" yaml:"max-elapsed"`                     // Total wall time per operation
	BackoffBase         time.Duration `json:"backoffBase" yaml:"backoff-base"`                   // First backoff delay
	BackoffMax          time.Duration `json:"backoffMax" yaml:"backoff-max"`                     // Upper bound of the backoff delay
	SameEndpointRetries int           `json:"sameEndpointRetries" yaml:"same-endpoint-retries"` // Connection failures tolerated per endpoint
}

// DefaultConfig returns the defaults used by the cli.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         10,
		MaxElapsed:          10 * time.Second,
		BackoffBase:         50 * time.Millisecond,
		BackoffMax:          2 * time.Second,
		SameEndpointRetries: 2,
	}
}

// withDefaults replaces unset values with the defaults
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = d.MaxElapsed
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.SameEndpointRetries <= 0 {
		c.SameEndpointRetries = 1
	}
	return c
}

// Router executes operations against a set of replicas and retries them according
// to Decide.
type Router struct {
	cfg      Config
	cache    *LeaderCache
	replicas []uint64
}

// New creates a router for the given replicas. The cache may be shared between
// routers of the same cluster.
func New(cfg Config, cache *LeaderCache, replicas []uint64) *Router {
	sorted := append([]uint64(nil), replicas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if cache == nil {
		cache = NewLeaderCache()
	}
	return &Router{
		cfg:      cfg.withDefaults(),
		cache:    cache,
		replicas: sorted,
	}
}

// Cache returns the leader cache of the router.
func (r *Router) Cache() *LeaderCache {
	return r.cache
}

// Do runs fn until it succeeds, Decide surfaces its error or the retry budget is
// exhausted. In the last two cases the last error returned by fn is returned.
func (r *Router) Do(ctx context.Context, op OpKind, fn func(ctx context.Context, target uint64) error) error {
	target, ok := r.initialTarget()
	if !ok {
		return metaerr.InvalidConfig("no replicas configured")
	}

	start := time.Now()
	backoff := r.cfg.BackoffBase
	failures := 0

	for attempt := 1; ; attempt++ {
		err := fn(ctx, target)
		if err == nil {
			if op != OpRead {
				// only the leader accepts writes
				r.cache.Set(target)
			}
			return nil
		}

		cached, known := r.cache.Get()
		d := Decide(Attempt{
			Op:                   op,
			Target:               target,
			SameEndpointFailures: failures,
			Cached:               cached,
			CachedKnown:          known,
		}, err, r.cfg.SameEndpointRetries)

		switch d.Cache {
		case CacheSet:
			r.cache.Set(d.CacheValue)
		case CacheInvalidate:
			r.cache.Invalidate(d.CacheValue)
		}
		countAttempt(op, d.Action)

		if d.Action == ActionSurface {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt >= r.cfg.MaxAttempts {
			log.Warningf("%s failed after %d attempts: %v", op, attempt, err)
			return err
		}
		remaining := r.cfg.MaxElapsed - time.Since(start)
		if remaining <= 0 {
			log.Warningf("%s failed after %v: %v", op, time.Since(start), err)
			return err
		}

		next := r.nextReplica(target)
		if d.HasTarget {
			next = d.Target
		}
		if kind, _ := metaerr.KindOf(err); kind == metaerr.KindConnection && next == target {
			failures++
		} else {
			failures = 0
		}

		if d.Backoff {
			// exponential backoff with a small random jitter (+-10%)
			wait := time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64()))
			if wait > remaining {
				wait = remaining
			}
			if !sleep(ctx, wait) {
				return err
			}
			backoff *= 2
			if backoff > r.cfg.BackoffMax {
				backoff = r.cfg.BackoffMax
			}
		}

		log.Debugf("%s attempt %d at node %d failed (%v), retrying at node %d", op, attempt, target, err, next)
		target = next
	}
}

// initialTarget is the cached leader, or the first replica
func (r *Router) initialTarget() (uint64, bool) {
	if leader, ok := r.cache.Get(); ok {
		return leader, true
	}
	if len(r.replicas) == 0 {
		return 0, false
	}
	return r.replicas[0], true
}

// nextReplica returns the replica following target (round robin)
func (r *Router) nextReplica(target uint64) uint64 {
	if len(r.replicas) == 0 {
		return target
	}
	i := sort.Search(len(r.replicas), func(i int) bool { return r.replicas[i] > target })
	return r.replicas[i%len(r.replicas)]
}

// sleep waits for d. It returns false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func countAttempt(op OpKind, action Action) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`dmeta_router_failed_attempts_total{op=%q,action=%q}`, op, action)).Inc()
}
