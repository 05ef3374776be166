package metaerr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/errcode"
)

// --------------------------------------------------------------------------
// MetaError
// --------------------------------------------------------------------------

// MetaError is the single error type returned by every public operation of the
// metadata service. Which fields are set depends on the Kind:
//
//	ForwardToLeader        -> Forward
//	ChangeMembershipError  -> Membership
//	ConnectionError        -> Conn
//	ErrorCode              -> Code
//	MetaStoreAlreadyExists -> ID
//	ReadTimeout            -> Index, Msg
//	all others             -> Msg
//
// A MetaError is a value: it is created where the failure happens and never
// mutated afterwards.
type MetaError struct {
	Kind       Kind                   `json:"kind"`
	Msg        string                 `json:"msg,omitempty"`
	ID         uint64                 `json:"id,omitempty"`
	Index      uint64                 `json:"index,omitempty"`
	Forward    *ForwardToLeader       `json:"forward,omitempty"`
	Membership *ChangeMembershipError `json:"membership,omitempty"`
	Conn       *ConnectionError       `json:"conn,omitempty"`
	Code       *errcode.ErrorCode     `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *MetaError) Error() string {
	switch e.Kind {
	case KindForwardToLeader:
		if e.Forward != nil {
			return e.Forward.Error()
		}
	case KindChangeMembership:
		if e.Membership != nil {
			return e.Membership.Error()
		}
	case KindConnection:
		if e.Conn != nil {
			return e.Conn.Error()
		}
	case KindErrorCode:
		if e.Code != nil {
			return e.Code.Error()
		}
	case KindMetaStoreAlreadyExists:
		return fmt.Sprintf("raft state present id=%d, can not create", e.ID)
	case KindMetaStoreNotFound:
		return "raft state absent, can not open"
	case KindSerdeJSON:
		return "serde_json error: " + e.Msg
	case KindReadTimeout:
		return fmt.Sprintf("read timed out waiting for log index %d: %s", e.Index, e.Msg)
	}
	return e.Msg
}

// Unwrap exposes the sub-error (if any) to errors.Is and errors.As.
func (e *MetaError) Unwrap() error {
	switch {
	case e.Forward != nil:
		return e.Forward
	case e.Membership != nil:
		return e.Membership
	case e.Conn != nil:
		return e.Conn
	case e.Code != nil:
		return e.Code
	}
	return nil
}

// Is matches another MetaError of the same kind, this makes errors.Is(err, metaerr.NotFound()) work.
func (e *MetaError) Is(target error) bool {
	t, ok := target.(*MetaError)
	return ok && t.Kind == e.Kind
}

// GobEncode encodes the error using its JSON representation. The JSON form is the
// canonical wire format and keeps the difference between absent and empty sub-errors.
func (e *MetaError) GobEncode() ([]byte, error) {
	return json.Marshal(e)
}

// GobDecode is the inverse of GobEncode.
func (e *MetaError) GobDecode(data []byte) error {
	return json.Unmarshal(data, e)
}

// --------------------------------------------------------------------------
// Sub-Errors
// --------------------------------------------------------------------------

// ForwardToLeader tells the caller that the contacted node is not the leader.
// Leader is nil if no leader is known (election in progress).
type ForwardToLeader struct {
	Leader *uint64 `json:"leader,omitempty"`
}

func (f *ForwardToLeader) Error() string {
	if f.Leader == nil {
		return "has to forward request to leader, but no leader is known"
	}
	return fmt.Sprintf("has to forward request to leader %d", *f.Leader)
}

// ChangeMembershipError is returned when a membership change was rejected.
type ChangeMembershipError struct {
	NodeID uint64 `json:"node_id,omitempty"` // The node the change was about
	Reason string `json:"reason"`            // Short reason, e.g. "rejected", "unsupported"
	Msg    string `json:"msg,omitempty"`
}

func (c *ChangeMembershipError) Error() string {
	if c.Msg == "" {
		return fmt.Sprintf("change membership error: %s (node %d)", c.Reason, c.NodeID)
	}
	return fmt.Sprintf("change membership error: %s (node %d): %s", c.Reason, c.NodeID, c.Msg)
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// ForwardTo creates a ForwardToLeader error with a known leader.
func ForwardTo(leader uint64) *MetaError {
	return &MetaError{Kind: KindForwardToLeader, Forward: &ForwardToLeader{Leader: &leader}}
}

// ForwardUnknown creates a ForwardToLeader error without a known leader.
func ForwardUnknown() *MetaError {
	return &MetaError{Kind: KindForwardToLeader, Forward: &ForwardToLeader{}}
}

// ChangeMembership creates a ChangeMembershipError.
func ChangeMembership(nodeID uint64, reason, msg string) *MetaError {
	return &MetaError{
		Kind:       KindChangeMembership,
		Membership: &ChangeMembershipError{NodeID: nodeID, Reason: reason, Msg: msg},
	}
}

func Unknown(msg string) *MetaError {
	return &MetaError{Kind: KindUnknown, Msg: msg}
}

func Unknownf(format string, args ...interface{}) *MetaError {
	return Unknown(fmt.Sprintf(format, args...))
}

func InvalidConfig(msg string) *MetaError {
	return &MetaError{Kind: KindInvalidConfig, Msg: msg}
}

// AlreadyExists reports that a store with the identity id exists.
func AlreadyExists(id uint64) *MetaError {
	return &MetaError{Kind: KindMetaStoreAlreadyExists, ID: id}
}

func NotFound() *MetaError {
	return &MetaError{Kind: KindMetaStoreNotFound}
}

func SerdeJSON(msg string) *MetaError {
	return &MetaError{Kind: KindSerdeJSON, Msg: msg}
}

func BadBytes(msg string) *MetaError {
	return &MetaError{Kind: KindBadBytes, Msg: msg}
}

func Damaged(msg string) *MetaError {
	return &MetaError{Kind: KindMetaStoreDamaged, Msg: msg}
}

func Damagedf(format string, args ...interface{}) *MetaError {
	return Damaged(fmt.Sprintf(format, args...))
}

// ReadTimeout reports that waiting for index to be applied took too long.
func ReadTimeout(index uint64, cause error) *MetaError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &MetaError{Kind: KindReadTimeout, Index: index, Msg: msg}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// As returns the MetaError in err's chain.
func As(err error) (*MetaError, bool) {
	var me *MetaError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// KindOf returns the kind of the MetaError in err's chain.
// The second return value is false if err is not a MetaError.
func KindOf(err error) (Kind, bool) {
	me, ok := As(err)
	if !ok {
		return 0, false
	}
	return me.Kind, true
}

// Wrap converts any error into a MetaError. MetaErrors are returned unchanged,
// RetryableErrors become ForwardToLeader, application errors become ErrorCode and
// everything else becomes an UnknownError carrying the rendered message.
func Wrap(err error) *MetaError {
	if err == nil {
		return nil
	}
	if me, ok := As(err); ok {
		return me
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return re.MetaError()
	}
	var ec *errcode.ErrorCode
	if errors.As(err, &ec) {
		return FromErrorCode(ec)
	}
	return Unknown(err.Error())
}
