package metaerr

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// Kind identifies the variant of a MetaError. The set is closed.
type Kind uint8

const (
	KindUnknown                Kind = iota // Non-retryable, operator facing error
	KindForwardToLeader                    // The contacted node is not the leader
	KindChangeMembership                   // A membership change was rejected
	KindConnection                         // Transport failure
	KindErrorCode                          // Wrapped application error
	KindInvalidConfig                      // Invalid configuration, operator facing
	KindMetaStoreAlreadyExists             // A store with another identity exists at the path
	KindMetaStoreNotFound                  // No store exists at the path
	KindSerdeJSON                          // Structured data could not be decoded
	KindBadBytes                           // Bytes could not be decoded
	KindMetaStoreDamaged                   // Local storage is corrupted or unsafe
	KindReadTimeout                        // A linearizable read did not observe its index in time
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "UnknownError"
	case KindForwardToLeader:
		return "ForwardToLeader"
	case KindChangeMembership:
		return "ChangeMembershipError"
	case KindConnection:
		return "ConnectionError"
	case KindErrorCode:
		return "ErrorCode"
	case KindInvalidConfig:
		return "InvalidConfig"
	case KindMetaStoreAlreadyExists:
		return "MetaStoreAlreadyExists"
	case KindMetaStoreNotFound:
		return "MetaStoreNotFound"
	case KindSerdeJSON:
		return "SerdeJsonError"
	case KindBadBytes:
		return "BadBytes"
	case KindMetaStoreDamaged:
		return "MetaStoreDamaged"
	case KindReadTimeout:
		return "ReadTimeout"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// parseKind is the inverse of Kind.String
func parseKind(s string) (Kind, error) {
	for k := KindUnknown; k <= KindReadTimeout; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown error kind: %s", s)
}

// MarshalJSON implements the json.Marshaller interface for Kind.
// This allows Kind to be serialized as a string in JSON.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := parseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
