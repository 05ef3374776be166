package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Key     string                   `json:"key,omitempty"`     // Used for: KV key or prefix, catalog database name
	Name    string                   `json:"name,omitempty"`    // Used for: catalog table name
	Value   []byte                   `json:"value,omitempty"`   // Used for: Upsert value, JSON encoded catalog requests
	Match   statemachine.MatchSeq    `json:"match"`             // Used for: Upsert, Delete
	Level   statemachine.Consistency `json:"level,omitempty"`   // Used for: Get, List
	NodeID  uint64                   `json:"node_id,omitempty"` // Used for: AddNode, RemoveNode, UnregisterNode
	Address string                   `json:"address,omitempty"` // Used for: AddNode
	Version uint64                   `json:"version,omitempty"` // Used for: expected version of UpdateTable

	// Response only fields
	Ok      bool               `json:"ok,omitempty"`      // Used for: Get responses (found)
	Payload []byte             `json:"payload,omitempty"` // JSON encoded result of the operation
	Err     *metaerr.MetaError `json:"err,omitempty"`     // Nil if no error occurred
}

// Decode unmarshals the payload of a response into v.
func (m *Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return metaerr.SerdeJSON(fmt.Sprintf("%s response has no payload", m.MsgType))
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return metaerr.FromJSONError(err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(key string, level statemachine.Consistency) *Message {
	return &Message{MsgType: MsgTKVGet, Key: key, Level: level}
}

// NewListRequest creates a new List request
func NewListRequest(prefix string, level statemachine.Consistency) *Message {
	return &Message{MsgType: MsgTKVList, Key: prefix, Level: level}
}

// NewUpsertRequest creates a new Upsert request
func NewUpsertRequest(key string, match statemachine.MatchSeq, value []byte) *Message {
	return &Message{MsgType: MsgTKVUpsert, Key: key, Match: match, Value: value}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string, match statemachine.MatchSeq) *Message {
	return &Message{MsgType: MsgTKVDelete, Key: key, Match: match}
}

// NewMembersRequest creates a new Members request
func NewMembersRequest() *Message {
	return &Message{MsgType: MsgTMembers}
}

// NewAddNodeRequest creates a new AddNode request
func NewAddNodeRequest(id uint64, address string) *Message {
	return &Message{MsgType: MsgTAddNode, NodeID: id, Address: address}
}

// NewRemoveNodeRequest creates a new RemoveNode request
func NewRemoveNodeRequest(id uint64) *Message {
	return &Message{MsgType: MsgTRemoveNode, NodeID: id}
}

// NewCatalogRequest creates a catalog request. body is JSON encoded into Value if not nil.
func NewCatalogRequest(msgType MessageType, database, name string, body interface{}) (*Message, error) {
	msg := &Message{MsgType: msgType, Key: database, Name: name}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, metaerr.FromJSONError(err)
		}
		msg.Value = data
	}
	return msg, nil
}

// NewResponse creates a response of the given type. payload is JSON encoded if not
// nil, err is converted into a MetaError.
func NewResponse(msgType MessageType, payload interface{}, err error) *Message {
	msg := &Message{MsgType: msgType}
	if err != nil {
		msg.Err = metaerr.Wrap(err)
		return msg
	}
	if payload != nil {
		data, jerr := json.Marshal(payload)
		if jerr != nil {
			msg.Err = metaerr.FromJSONError(jerr)
			return msg
		}
		msg.Payload = data
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err error) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     metaerr.Wrap(err),
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// messageTypeNames maps every MessageType to its wire name
var messageTypeNames = map[MessageType]string{
	MsgTSuccess:        "success",
	MsgTError:          "error",
	MsgTKVGet:          "get",
	MsgTKVList:         "list",
	MsgTKVUpsert:       "upsert",
	MsgTKVDelete:       "delete",
	MsgTMembers:        "members",
	MsgTAddNode:        "addNode",
	MsgTRemoveNode:     "removeNode",
	MsgTDBCreate:       "dbCreate",
	MsgTDBGet:          "dbGet",
	MsgTDBList:         "dbList",
	MsgTDBDrop:         "dbDrop",
	MsgTTableCreate:    "tableCreate",
	MsgTTableGet:       "tableGet",
	MsgTTableList:      "tableList",
	MsgTTableUpdate:    "tableUpdate",
	MsgTTableDrop:      "tableDrop",
	MsgTNodeRegister:   "nodeRegister",
	MsgTNodeUnregister: "nodeUnregister",
	MsgTNodeList:       "nodeList",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsCatalog reports whether the message is handled by the catalog adapter.
func (t MessageType) IsCatalog() bool {
	return t >= MsgTDBCreate && t <= MsgTNodeList
}

// IsRead reports whether the message does not change any state.
func (t MessageType) IsRead() bool {
	switch t {
	case MsgTKVGet, MsgTKVList, MsgTMembers, MsgTDBGet, MsgTDBList, MsgTTableGet, MsgTTableList, MsgTNodeList:
		return true
	default:
		return false
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IMetaStore operations

	MsgTKVGet      // Get a record by key
	MsgTKVList     // List records by prefix
	MsgTKVUpsert   // Conditionally create or update a record
	MsgTKVDelete   // Conditionally delete a record
	MsgTMembers    // Get the cluster membership
	MsgTAddNode    // Add a replica
	MsgTRemoveNode // Remove a replica

	// ICatalog operations

	MsgTDBCreate       // Create a database
	MsgTDBGet          // Get a database
	MsgTDBList         // List all databases
	MsgTDBDrop         // Drop an empty database
	MsgTTableCreate    // Create a table
	MsgTTableGet       // Get a table
	MsgTTableList      // List the tables of a database
	MsgTTableUpdate    // Update a table (compare-and-swap)
	MsgTTableDrop      // Drop a table
	MsgTNodeRegister   // Register a compute node
	MsgTNodeUnregister // Unregister a compute node
	MsgTNodeList       // List the compute nodes
)
