package metaerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// --------------------------------------------------------------------------
// Connection Error
// --------------------------------------------------------------------------

// ConnectionError describes a transport failure. Msg names the operation that was
// attempted, Source is the opaque cause.
type ConnectionError struct {
	Msg    string   `json:"msg"`
	Source AnyError `json:"source"`
}

func (c *ConnectionError) Error() string {
	return fmt.Sprintf("ConnectionError: %s source: %s", c.Msg, c.Source.Error())
}

// Connection creates a ConnectionError for the operation msg caused by cause.
func Connection(msg string, cause error) *MetaError {
	return &MetaError{
		Kind: KindConnection,
		Conn: &ConnectionError{Msg: msg, Source: NewAnyError(cause)},
	}
}

// --------------------------------------------------------------------------
// Opaque Cause
// --------------------------------------------------------------------------

// CauseKind is a coarse classification of a transport failure.
type CauseKind string

const (
	CauseDial     CauseKind = "dial"     // The endpoint could not be reached
	CauseTimeout  CauseKind = "timeout"  // A deadline expired
	CauseReset    CauseKind = "reset"    // The peer reset or broke the connection
	CauseEOF      CauseKind = "eof"      // The stream ended unexpectedly
	CauseClosed   CauseKind = "closed"   // The connection was closed locally
	CauseCanceled CauseKind = "canceled" // The caller canceled the operation
	CauseProtocol CauseKind = "protocol" // The peer answered with something unexpected
	CauseOther    CauseKind = "other"
)

// AnyError is a type erased transport error. It keeps only the rendering of the
// original error, its Go type name and a coarse kind, so it can be serialized and
// compared without depending on the transport library.
type AnyError struct {
	Kind CauseKind `json:"kind,omitempty"`
	Type string    `json:"type,omitempty"`
	Msg  string    `json:"msg"`
}

// NewAnyError captures err. A nil error yields an empty AnyError.
func NewAnyError(err error) AnyError {
	if err == nil {
		return AnyError{}
	}
	var pe *protocolError
	if errors.As(err, &pe) {
		return AnyError{Kind: CauseProtocol, Type: fmt.Sprintf("%T", err), Msg: err.Error()}
	}
	return AnyError{Kind: classify(err), Type: fmt.Sprintf("%T", err), Msg: err.Error()}
}

func (a AnyError) Error() string {
	return a.Msg
}

// Equal compares two causes by their rendering.
func (a AnyError) Equal(other AnyError) bool {
	return a.Msg == other.Msg
}

// IsKind is the downcast-by-kind query of the opaque cause.
func (a AnyError) IsKind(kind CauseKind) bool {
	return a.Kind == kind
}

// classify maps an error onto a CauseKind
func classify(err error) CauseKind {
	switch {
	case errors.Is(err, context.Canceled):
		return CauseCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, syscall.ETIMEDOUT):
		return CauseTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return CauseEOF
	case errors.Is(err, net.ErrClosed):
		return CauseClosed
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNABORTED):
		return CauseReset
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ENOENT):
		return CauseDial
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return CauseDial
	}
	return CauseOther
}

// protocolError marks a cause as a protocol violation (e.g. unexpected status code)
type protocolError struct {
	msg string
}

func (p *protocolError) Error() string {
	return p.msg
}

// ProtocolError creates a cause that is classified as CauseProtocol.
func ProtocolError(format string, args ...interface{}) error {
	return &protocolError{msg: fmt.Sprintf(format, args...)}
}
