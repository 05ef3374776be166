package statemachine

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTNoop   CommandType = iota // Does nothing, only advances the applied index.
	CommandTUpsert                    // Insert or update an entry (conditionally).
	CommandTDelete                    // Delete an entry (conditionally).
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTNoop:
		return "Noop"
	case CommandTUpsert:
		return "Upsert"
	case CommandTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// commandHeaderSize is the size of the fixed part of a serialized command:
// Type + MatchKind + MatchVersion + KeyLen
const commandHeaderSize = 1 + 1 + 8 + 4

// Command represents a command to be executed by the state machine (a single entry in the log)
type Command struct {
	Type  CommandType
	Match MatchSeq
	Key   string
	Value []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return commandHeaderSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 1 byte for the match kind,
// 8 bytes for the match version (big endian),
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	result[1] = byte(command.Match.Kind)
	binary.BigEndian.PutUint64(result[2:10], command.Match.Version)
	binary.BigEndian.PutUint32(result[10:14], uint32(len(command.Key)))

	n := copy(result[commandHeaderSize:], command.Key)
	copy(result[commandHeaderSize+n:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
// The key is returned as is, validating its encoding is up to the caller.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	if command.Type > CommandTDelete {
		return fmt.Errorf("unknown command type %d", data[0])
	}

	command.Match.Kind = MatchKind(data[1])
	if command.Match.Kind > MatchExact {
		return fmt.Errorf("unknown match kind %d", data[1])
	}
	command.Match.Version = binary.BigEndian.Uint64(data[2:10])

	keyLen := binary.BigEndian.Uint32(data[10:14])
	if uint64(len(data)) < uint64(commandHeaderSize)+uint64(keyLen) {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	keyEnd := commandHeaderSize + int(keyLen)
	command.Key = string(data[commandHeaderSize:keyEnd])

	if len(data) > keyEnd {
		valueLen := len(data) - keyEnd
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[keyEnd:])
	} else {
		command.Value = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Command Factory Functions
// --------------------------------------------------------------------------

// NewUpsert creates an upsert command
func NewUpsert(key string, match MatchSeq, value []byte) Command {
	return Command{Type: CommandTUpsert, Match: match, Key: key, Value: value}
}

// NewDelete creates a delete command
func NewDelete(key string, match MatchSeq) Command {
	return Command{Type: CommandTDelete, Match: match, Key: key}
}

// NewNoop creates a command that only advances the applied index
func NewNoop() Command {
	return Command{Type: CommandTNoop}
}
