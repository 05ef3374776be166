package dstore

import (
	"errors"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/lni/dragonboat/v4"
)

// opKind selects how errors of the consensus library are classified
type opKind uint8

const (
	opRead opKind = iota
	opWrite
	opMembership
)

func (o opKind) String() string {
	switch o {
	case opRead:
		return "read"
	case opWrite:
		return "propose write"
	default:
		return "change membership"
	}
}

// fromDragonboat converts an error returned by the NodeHost into a MetaError.
//
//	ErrTimeout                                   read: ReadTimeout, else ConnectionError
//	ErrSystemBusy, ErrShardNotReady, ErrCanceled,
//	ErrAborted                                   ConnectionError (retry later)
//	ErrRejected                                  membership: ChangeMembershipError
//	ErrShardNotFound, ErrClosed, ...             UnknownError
func fromDragonboat(op opKind, err error) error {
	if err == nil {
		return nil
	}
	if me, ok := metaerr.As(err); ok {
		return me
	}

	switch {
	case errors.Is(err, dragonboat.ErrTimeout):
		if op == opRead {
			return metaerr.ReadTimeout(0, err)
		}
		return metaerr.Connection(op.String(), err)
	case errors.Is(err, dragonboat.ErrSystemBusy),
		errors.Is(err, dragonboat.ErrShardNotReady),
		errors.Is(err, dragonboat.ErrCanceled),
		errors.Is(err, dragonboat.ErrAborted):
		return metaerr.Connection(op.String(), err)
	case errors.Is(err, dragonboat.ErrRejected) && op == opMembership:
		return metaerr.ChangeMembership(0, "rejected", err.Error())
	default:
		return metaerr.Unknownf("%s failed: %v", op, err)
	}
}
