package shutdown

import (
	"sync"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	log = logger.GetLogger("shutdown")

	integrityErrors = metrics.NewCounter("dmeta_shutdown_integrity_errors_total")
	unsafeStorage   = metrics.NewCounter("dmeta_shutdown_unsafe_storage_total")
)

// DefaultIntegrityThreshold is the number of BadBytes / SerdeJsonError occurrences
// after which the storage is considered unsafe.
const DefaultIntegrityThreshold = 16

// Supervisor is the circuit breaker for storage safety violations. The zero value
// is not usable, use NewSupervisor.
type Supervisor struct {
	mu         sync.Mutex
	threshold  int
	integrity  int
	unsafe     bool
	consistent bool
	cause      error
	done       chan struct{}
}

// NewSupervisor creates a supervisor. A threshold < 1 uses DefaultIntegrityThreshold.
func NewSupervisor(threshold int) *Supervisor {
	if threshold < 1 {
		threshold = DefaultIntegrityThreshold
	}
	return &Supervisor{
		threshold: threshold,
		done:      make(chan struct{}),
	}
}

// OnUnsafeStorage marks the storage as unsafe. The transition is one-way: every
// later write is refused. consistent reports whether the in-memory state still
// matches the last durable checkpoint, reads are served only while every report
// said so.
func (s *Supervisor) OnUnsafeStorage(cause error, consistent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsafe {
		s.consistent = s.consistent && consistent
		return
	}

	s.unsafe = true
	s.consistent = consistent
	s.cause = cause
	unsafeStorage.Inc()
	close(s.done)

	log.Errorf("storage is unsafe, refusing writes (reads allowed: %v): %v", consistent, cause)
}

// Observe inspects an error returned by the storage or apply path and escalates
// integrity failures. It returns err unchanged.
func (s *Supervisor) Observe(err error) error {
	kind, ok := metaerr.KindOf(err)
	if !ok {
		return err
	}

	switch kind {
	case metaerr.KindMetaStoreDamaged:
		// the state machine rejects damaged input before touching its state
		s.OnUnsafeStorage(err, true)
	case metaerr.KindBadBytes, metaerr.KindSerdeJSON:
		integrityErrors.Inc()
		log.Warningf("integrity error: %v", err)

		s.mu.Lock()
		s.integrity++
		escalate := s.integrity >= s.threshold
		s.mu.Unlock()

		if escalate {
			s.OnUnsafeStorage(err, true)
		}
	}
	return err
}

// CheckWrite returns an error once the storage has been marked unsafe.
func (s *Supervisor) CheckWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unsafe {
		return nil
	}
	return metaerr.Damagedf("storage is unsafe, writes are refused: %v", s.cause)
}

// CheckRead returns an error if the storage is unsafe and the in-memory state can
// not be trusted.
func (s *Supervisor) CheckRead() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unsafe || s.consistent {
		return nil
	}
	return metaerr.Damagedf("storage is unsafe, requests are refused: %v", s.cause)
}

// Done is closed when the storage has been marked unsafe.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Unsafe reports whether the storage has been marked unsafe.
func (s *Supervisor) Unsafe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsafe
}

// Err returns the ShutdownError that caused the transition, or nil.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unsafe {
		return nil
	}
	return &metaerr.ShutdownError{Kind: metaerr.ShutdownUnsafeStorage, Cause: s.cause}
}
