package metaerr

import (
	"errors"
	"unicode/utf8"

	"github.com/ValentinKolb/dMeta/lib/errcode"
)

// --------------------------------------------------------------------------
// Conversions from lower layers (all total)
// --------------------------------------------------------------------------

// badBytesPrefix is the fixed diagnostic prefix of BadBytes errors created from invalid text
const badBytesPrefix = "Bad bytes, cannot parse bytes with UTF8, cause: "

// errInvalidUTF8 is the cause reported for invalid text encoding
var errInvalidUTF8 = errors.New("invalid utf-8 sequence")

// FromErrorCode wraps an application error.
func FromErrorCode(ec *errcode.ErrorCode) *MetaError {
	if ec == nil {
		return Unknown("nil application error")
	}
	return &MetaError{Kind: KindErrorCode, Code: ec}
}

// FromJSONError wraps a decode error of structured data.
func FromJSONError(err error) *MetaError {
	if err == nil {
		return SerdeJSON("")
	}
	return SerdeJSON(err.Error())
}

// FromUTF8Error wraps a byte to text decode failure.
func FromUTF8Error(err error) *MetaError {
	if err == nil {
		err = errInvalidUTF8
	}
	return BadBytes(badBytesPrefix + err.Error())
}

// DecodeUTF8 converts b into a string and fails with BadBytes if b is not valid UTF-8.
func DecodeUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", FromUTF8Error(errInvalidUTF8)
	}
	return string(b), nil
}

// --------------------------------------------------------------------------
// Conversion to the application layer
// --------------------------------------------------------------------------

// ToErrorCode converts err into an application error. A wrapped application error
// is returned unchanged, every other error becomes a MetaServiceError carrying its
// rendered message.
func ToErrorCode(err error) *errcode.ErrorCode {
	if err == nil {
		return nil
	}
	if me, ok := As(err); ok && me.Kind == KindErrorCode && me.Code != nil {
		return me.Code
	}
	var ec *errcode.ErrorCode
	if _, isMeta := As(err); !isMeta && errors.As(err, &ec) {
		return ec
	}
	return errcode.MetaServiceError(err.Error())
}
