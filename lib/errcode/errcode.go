package errcode

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Application Error Type
// --------------------------------------------------------------------------

// ErrorCode is a structured application level error. It carries a stable numeric
// code, a symbolic name and a human readable message and can be serialized without
// losing its identity, so it survives the trip from a replica to the client.
type ErrorCode struct {
	Code    uint16 `json:"code"`    // The stable numeric code
	Name    string `json:"name"`    // The symbolic name of the code (e.g. UnknownDatabase)
	Message string `json:"message"` // The error message
}

// Error implements the error interface.
func (e *ErrorCode) Error() string {
	return fmt.Sprintf("%s (code %d): %s", e.Name, e.Code, e.Message)
}

// Is reports whether target is an ErrorCode with the same code.
// This allows errors.Is(err, errcode.New(errcode.CodeUnknownTable, "")) style checks.
func (e *ErrorCode) Is(target error) bool {
	t, ok := target.(*ErrorCode)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new ErrorCode with the given code and message.
// The name is derived from the code.
func New(code uint16, msg string) *ErrorCode {
	return &ErrorCode{
		Code:    code,
		Name:    nameOf(code),
		Message: msg,
	}
}

// --------------------------------------------------------------------------
// Codes
// --------------------------------------------------------------------------

const (
	CodeUnknownDatabase        uint16 = 1003
	CodeBadArguments           uint16 = 1006
	CodeUnknownTable           uint16 = 1025
	CodeMetaServiceError       uint16 = 2001
	CodeTableVersionMismatched uint16 = 2009
	CodeDatabaseAlreadyExists  uint16 = 2301
	CodeTableAlreadyExists     uint16 = 2302
	CodeDatabaseNotEmpty       uint16 = 2304
	CodeUnknownNode            uint16 = 2401
	CodeNodeAlreadyExists      uint16 = 2402
)

func nameOf(code uint16) string {
	switch code {
	case CodeUnknownDatabase:
		return "UnknownDatabase"
	case CodeBadArguments:
		return "BadArguments"
	case CodeUnknownTable:
		return "UnknownTable"
	case CodeMetaServiceError:
		return "MetaServiceError"
	case CodeTableVersionMismatched:
		return "TableVersionMismatched"
	case CodeDatabaseAlreadyExists:
		return "DatabaseAlreadyExists"
	case CodeTableAlreadyExists:
		return "TableAlreadyExists"
	case CodeDatabaseNotEmpty:
		return "DatabaseNotEmpty"
	case CodeUnknownNode:
		return "UnknownNode"
	case CodeNodeAlreadyExists:
		return "NodeAlreadyExists"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

func UnknownDatabase(msg string) *ErrorCode        { return New(CodeUnknownDatabase, msg) }
func BadArguments(msg string) *ErrorCode           { return New(CodeBadArguments, msg) }
func UnknownTable(msg string) *ErrorCode           { return New(CodeUnknownTable, msg) }
func MetaServiceError(msg string) *ErrorCode       { return New(CodeMetaServiceError, msg) }
func TableVersionMismatched(msg string) *ErrorCode { return New(CodeTableVersionMismatched, msg) }
func DatabaseAlreadyExists(msg string) *ErrorCode  { return New(CodeDatabaseAlreadyExists, msg) }
func TableAlreadyExists(msg string) *ErrorCode     { return New(CodeTableAlreadyExists, msg) }
func DatabaseNotEmpty(msg string) *ErrorCode       { return New(CodeDatabaseNotEmpty, msg) }
func UnknownNode(msg string) *ErrorCode            { return New(CodeUnknownNode, msg) }
func NodeAlreadyExists(msg string) *ErrorCode      { return New(CodeNodeAlreadyExists, msg) }

// IsIdempotentConflict reports whether the code describes a conflict that a retry
// can never resolve (the operation either already happened or can not happen).
func (e *ErrorCode) IsIdempotentConflict() bool {
	switch e.Code {
	case CodeDatabaseAlreadyExists, CodeTableAlreadyExists, CodeNodeAlreadyExists,
		CodeTableVersionMismatched, CodeUnknownDatabase, CodeUnknownTable, CodeUnknownNode:
		return true
	default:
		return false
	}
}
