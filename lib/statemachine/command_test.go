package statemachine

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Upsert with key and value",
			command:  NewUpsert("__db/db1", Exact(4), []byte("testvalue")),
			expected: 1 + 1 + 8 + 4 + 8 + 9, // Type + MatchKind + MatchVersion + KeyLen + Key + Value
		},
		{
			name:     "Delete without value",
			command:  NewDelete("k", Any()),
			expected: 1 + 1 + 8 + 4 + 1,
		},
		{
			name:     "Noop",
			command:  NewNoop(),
			expected: 1 + 1 + 8 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.command.SizeBytes())
			assert.Len(t, tt.command.Serialize(), tt.expected)
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{"Upsert create-if-absent", NewUpsert("__tbl/db1/t1", Absent(), []byte(`{"name":"t1"}`))},
		{"Upsert compare-and-swap", NewUpsert("k", Exact(18446744073709551615), []byte("v"))},
		{"Delete unconditional", NewDelete("k", Any())},
		{"Command with Unicode key", NewUpsert("你好世界", Any(), []byte{0, 1, 2, 254, 255})},
		{"Noop", NewNoop()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded Command
			require.NoError(t, decoded.Deserialize(tt.command.Serialize()))
			assert.Equal(t, tt.command, decoded)
		})
	}
}

// TestDeserializeErrors tests malformed input
func TestDeserializeErrors(t *testing.T) {
	validCmd := NewUpsert("key", Any(), []byte("v"))
	valid := validCmd.Serialize()

	unknownType := append([]byte(nil), valid...)
	unknownType[0] = 42

	unknownMatch := append([]byte(nil), valid...)
	unknownMatch[1] = 9

	badKeyLen := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(badKeyLen[10:14], 1000)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", valid[:5]},
		{"unknown type", unknownType},
		{"unknown match kind", unknownMatch},
		{"key length beyond data", badKeyLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Command
			assert.Error(t, c.Deserialize(tt.data))
		})
	}
}

// TestDeserializeReusesBuffer checks that the value buffer is reused
func TestDeserializeReusesBuffer(t *testing.T) {
	c := Command{Value: make([]byte, 0, 64)}
	buf := c.Value[:1]

	src := NewUpsert("k", Any(), []byte("abc"))
	require.NoError(t, c.Deserialize(src.Serialize()))
	assert.Equal(t, []byte("abc"), c.Value)
	assert.Equal(t, &buf[0], &c.Value[0])
}
