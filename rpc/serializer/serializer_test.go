package serializer

import (
	"errors"
	"syscall"
	"testing"

	"github.com/ValentinKolb/dMeta/lib/errcode"
	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of requests and responses with different fields filled
func testMessages() map[string]common.Message {
	return map[string]common.Message{
		"upsert request": {
			MsgType: common.MsgTKVUpsert,
			Key:     "__db/db1",
			Value:   []byte("value"),
			Match:   statemachine.Exact(12),
		},
		"get request": {
			MsgType: common.MsgTKVGet,
			Key:     "__tbl/db1/",
			Level:   statemachine.Linearizable,
		},
		"add node request": {
			MsgType: common.MsgTAddNode,
			NodeID:  3,
			Address: "10.0.0.3:63001",
		},
		"table update request": {
			MsgType: common.MsgTTableUpdate,
			Key:     "db1",
			Name:    "t1",
			Value:   []byte(`{"schema":"id INT"}`),
			Version: 9,
		},
		"get response": {
			MsgType: common.MsgTKVGet,
			Ok:      true,
			Payload: []byte(`{"key":"k","version":1}`),
		},
		"forward to leader": {
			MsgType: common.MsgTKVUpsert,
			Err:     metaerr.ForwardTo(2),
		},
		"forward without leader": {
			MsgType: common.MsgTKVUpsert,
			Err:     metaerr.ForwardUnknown(),
		},
		"connection error": {
			MsgType: common.MsgTKVGet,
			Err:     metaerr.Connection("send request", syscall.ECONNREFUSED),
		},
		"application error": {
			MsgType: common.MsgTDBDrop,
			Err:     metaerr.FromErrorCode(errcode.DatabaseNotEmpty("database db1 has 2 tables")),
		},
		"read timeout": {
			MsgType: common.MsgTKVList,
			Err:     metaerr.ReadTimeout(17, errors.New("deadline exceeded")),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgName, msg := range testMessages() {
				data, err := serializer.Serialize(msg)
				require.NoError(t, err, msgName)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), msgName)
				assert.Equal(t, msg, result, msgName)
			}
		})
	}
}

// TestErrorKindSurvives checks that the client can still classify a transported error
func TestErrorKindSurvives(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTKVUpsert, Err: metaerr.ForwardTo(5)})
			require.NoError(t, err)

			var result common.Message
			require.NoError(t, serializer.Deserialize(data, &result))
			require.NotNil(t, result.Err)
			assert.ErrorIs(t, result.Err, metaerr.ForwardUnknown())
			require.NotNil(t, result.Err.Forward.Leader)
			assert.Equal(t, uint64(5), *result.Err.Forward.Leader)
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{"Empty message", common.Message{}},
		{"Empty value slice but not nil", common.Message{MsgType: common.MsgTKVUpsert, Key: "test", Value: []byte{}}},
		{"Empty payload slice but not nil", common.Message{MsgType: common.MsgTKVList, Payload: []byte{}}},
		{"Ok without payload", common.Message{MsgType: common.MsgTKVGet, Ok: true}},
		{"Match any with version", common.Message{MsgType: common.MsgTKVDelete, Match: statemachine.MatchSeq{Version: 3}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			require.NoError(t, err)

			var result common.Message
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, tc.msg, result)
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{"Empty data", []byte{}, true},
		{"Too short header", []byte{1, 0}, true},
		{"Valid header only", []byte{1, 0, 0}, false},
		{"Invalid length for key", []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, true},
		{"Invalid length for value", []byte{1, 0, 4, 0, 0, 0, 10}, true},
		{"Truncated node id", []byte{1, 0, 32, 0, 0, 1}, true},
		{"Trailing bytes", []byte{1, 0, 0, 42}, true},
		{"Malformed error", append([]byte{2, 4, 0, 0, 0, 0, 15}, `{"kind":"Nope"}`...), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
