package metaerr

import "fmt"

// --------------------------------------------------------------------------
// Retryable Error (write path)
// --------------------------------------------------------------------------

// RetryableError is returned by the write path when the request must be retried
// at another node. Unlike the ForwardToLeader MetaError it always names a leader.
type RetryableError struct {
	Leader uint64
}

func (r *RetryableError) Error() string {
	return fmt.Sprintf("request must be forwarded to leader: %d", r.Leader)
}

// MetaError converts the error into the ForwardToLeader MetaError that crosses the
// store boundary.
func (r *RetryableError) MetaError() *MetaError {
	return ForwardTo(r.Leader)
}

// --------------------------------------------------------------------------
// Shutdown Error
// --------------------------------------------------------------------------

// ShutdownKind identifies the reason of a shutdown.
type ShutdownKind uint8

const (
	ShutdownUnsafeStorage ShutdownKind = iota + 1 // Storage can no longer be trusted
)

// ShutdownError is a terminal signal consumed by the shutdown supervisor.
// It is never returned to a client.
type ShutdownError struct {
	Kind  ShutdownKind
	Cause error
}

func (s *ShutdownError) Error() string {
	if s.Cause == nil {
		return "unsafe storage error"
	}
	return fmt.Sprintf("unsafe storage error: %v", s.Cause)
}

func (s *ShutdownError) Unwrap() error {
	return s.Cause
}

// Is matches every ShutdownError of the same kind (e.g. errors.Is(err, metaerr.ErrUnsafeStorage))
func (s *ShutdownError) Is(target error) bool {
	t, ok := target.(*ShutdownError)
	return ok && t.Kind == s.Kind
}

// ErrUnsafeStorage is the sentinel for ShutdownUnsafeStorage.
var ErrUnsafeStorage = &ShutdownError{Kind: ShutdownUnsafeStorage}
