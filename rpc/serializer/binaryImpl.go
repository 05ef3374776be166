package serializer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey uint16 = 1 << iota
	hasName
	hasValue
	hasMatch
	hasLevel
	hasNodeID
	hasAddress
	hasVersion
	hasOk
	hasPayload
	hasErr
)

// headerSize is MsgType (1 byte) + flags (2 bytes)
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// The error is embedded as JSON, it is the self-describing form of a MetaError
	var errBytes []byte
	if msg.Err != nil {
		var err error
		if errBytes, err = json.Marshal(msg.Err); err != nil {
			return nil, fmt.Errorf("failed to encode error: %w", err)
		}
	}

	result := make([]byte, headerSize, b.sizeBytes(msg, len(errBytes)))
	result[0] = byte(msg.MsgType)
	var flags uint16

	if msg.Key != "" {
		flags |= hasKey
		result = appendBytes(result, []byte(msg.Key))
	}
	if msg.Name != "" {
		flags |= hasName
		result = appendBytes(result, []byte(msg.Name))
	}
	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}
	if msg.Match != (statemachine.MatchSeq{}) {
		flags |= hasMatch
		result = append(result, byte(msg.Match.Kind))
		result = binary.BigEndian.AppendUint64(result, msg.Match.Version)
	}
	if msg.Level != 0 {
		flags |= hasLevel
		result = append(result, byte(msg.Level))
	}
	if msg.NodeID != 0 {
		flags |= hasNodeID
		result = binary.BigEndian.AppendUint64(result, msg.NodeID)
	}
	if msg.Address != "" {
		flags |= hasAddress
		result = appendBytes(result, []byte(msg.Address))
	}
	if msg.Version != 0 {
		flags |= hasVersion
		result = binary.BigEndian.AppendUint64(result, msg.Version)
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Payload != nil {
		flags |= hasPayload
		result = appendBytes(result, msg.Payload)
	}
	if errBytes != nil {
		flags |= hasErr
		result = appendBytes(result, errBytes)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := &reader{data: data, pos: headerSize}

	if flags&hasKey != 0 {
		msg.Key = string(r.bytes("key"))
	}
	if flags&hasName != 0 {
		msg.Name = string(r.bytes("name"))
	}
	if flags&hasValue != 0 {
		// an empty (not nil) value stays empty
		msg.Value = append([]byte{}, r.bytes("value")...)
	}
	if flags&hasMatch != 0 {
		kind := r.take(1, "match")
		version := r.take(8, "match version")
		if r.err == nil {
			msg.Match = statemachine.MatchSeq{
				Kind:    statemachine.MatchKind(kind[0]),
				Version: binary.BigEndian.Uint64(version),
			}
		}
	}
	if flags&hasLevel != 0 {
		if level := r.take(1, "level"); r.err == nil {
			msg.Level = statemachine.Consistency(level[0])
		}
	}
	if flags&hasNodeID != 0 {
		msg.NodeID = r.uint64("node id")
	}
	if flags&hasAddress != 0 {
		msg.Address = string(r.bytes("address"))
	}
	if flags&hasVersion != 0 {
		msg.Version = r.uint64("version")
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasPayload != 0 {
		msg.Payload = append([]byte{}, r.bytes("payload")...)
	}
	if flags&hasErr != 0 {
		errBytes := r.bytes("error")
		if r.err == nil {
			msg.Err = &metaerr.MetaError{}
			if err := json.Unmarshal(errBytes, msg.Err); err != nil {
				return fmt.Errorf("failed to decode error: %w", err)
			}
		}
	}

	if r.err != nil {
		return r.err
	}
	if r.pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-r.pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message, errLen int) int {
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Name != "" {
		size += 4 + len(msg.Name)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Match != (statemachine.MatchSeq{}) {
		size += 1 + 8
	}
	if msg.Level != 0 {
		size += 1
	}
	if msg.NodeID != 0 {
		size += 8
	}
	if msg.Address != "" {
		size += 4 + len(msg.Address)
	}
	if msg.Version != 0 {
		size += 8
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}
	if errLen > 0 {
		size += 4 + errLen
	}
	return size
}

// appendBytes appends b with a 4 byte length prefix
func appendBytes(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// reader reads length prefixed fields and remembers the first error
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) uint64(field string) uint64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) bytes(field string) []byte {
	l := r.take(4, field+" length")
	if l == nil {
		return nil
	}
	return r.take(int(binary.BigEndian.Uint32(l)), field)
}
