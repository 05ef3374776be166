package common

import (
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/dMeta/lib/errcode"
	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypeNames(t *testing.T) {
	for msgType := MsgTSuccess; msgType <= MsgTNodeList; msgType++ {
		t.Run(msgType.String(), func(t *testing.T) {
			require.NotEqual(t, "unknown", msgType.String())

			data, err := json.Marshal(msgType)
			require.NoError(t, err)
			var parsed MessageType
			require.NoError(t, json.Unmarshal(data, &parsed))
			assert.Equal(t, msgType, parsed)
		})
	}

	var parsed MessageType
	assert.Error(t, json.Unmarshal([]byte(`"acquire"`), &parsed))
}

func TestMessageTypeGroups(t *testing.T) {
	assert.True(t, MsgTDBCreate.IsCatalog())
	assert.True(t, MsgTNodeList.IsCatalog())
	assert.False(t, MsgTKVUpsert.IsCatalog())

	assert.True(t, MsgTKVGet.IsRead())
	assert.True(t, MsgTTableList.IsRead())
	assert.False(t, MsgTTableUpdate.IsRead())
	assert.False(t, MsgTAddNode.IsRead())
}

func TestNewResponse(t *testing.T) {
	t.Run("payload", func(t *testing.T) {
		rec := statemachine.Record{Key: "k", Value: []byte("v"), Version: 3}
		resp := NewResponse(MsgTKVGet, rec, nil)
		require.Nil(t, resp.Err)

		var decoded statemachine.Record
		require.NoError(t, resp.Decode(&decoded))
		assert.Equal(t, rec, decoded)
	})

	t.Run("error", func(t *testing.T) {
		ec := errcode.UnknownTable("unknown table db1.t1")
		resp := NewResponse(MsgTTableGet, nil, ec)
		require.NotNil(t, resp.Err)
		assert.Equal(t, metaerr.KindErrorCode, resp.Err.Kind)
		assert.Equal(t, errcode.CodeUnknownTable, resp.Err.Code.Code)
	})

	t.Run("missing payload", func(t *testing.T) {
		var v statemachine.Record
		err := NewResponse(MsgTKVGet, nil, nil).Decode(&v)
		kind, ok := metaerr.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, metaerr.KindSerdeJSON, kind)
	})
}

func TestServerConfigValidate(t *testing.T) {
	valid := func() ServerConfig {
		return ServerConfig{
			Mode:           ModeReplicated,
			ShardID:        1,
			DataDir:        "data",
			ReplicaID:      2,
			ClusterMembers: map[uint64]string{1: "a:1", 2: "b:1"},
			Transport:      ServerTransportConfig{Endpoint: ":8080"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *ServerConfig)
		wantErr bool
	}{
		{"valid replicated", func(c *ServerConfig) {}, false},
		{"valid local", func(c *ServerConfig) { c.Mode = ModeLocal; c.ClusterMembers = nil }, false},
		{"invalid mode", func(c *ServerConfig) { c.Mode = "cluster" }, true},
		{"missing replica", func(c *ServerConfig) { c.ReplicaID = 0 }, true},
		{"replica not a member", func(c *ServerConfig) { c.ReplicaID = 3 }, true},
		{"missing data dir", func(c *ServerConfig) { c.DataDir = "" }, true},
		{"missing endpoint", func(c *ServerConfig) { c.Transport.Endpoint = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigConversions(t *testing.T) {
	c := ServerConfig{
		Mode:            ModeReplicated,
		ShardID:         7,
		ReplicaID:       2,
		RTTMillisecond:  100,
		SnapshotEntries: 50,
		DataDir:         "/data",
		ClusterMembers:  map[uint64]string{2: "b:63001", 1: "a:63001"},
	}
	rc := c.ToDragonboatConfig()
	assert.Equal(t, uint64(7), rc.ShardID)
	assert.Equal(t, uint64(2), rc.ReplicaID)
	assert.Equal(t, uint64(50), rc.SnapshotEntries)

	nh := c.ToNodeHostConfig()
	assert.Equal(t, "b:63001", nh.RaftAddress)
	assert.Contains(t, c.String(), "Node 1: a:63001")

	cc := ClientConfig{Nodes: map[uint64]string{3: "c", 1: "a", 2: "b"}}
	assert.Equal(t, []uint64{1, 2, 3}, cc.NodeIDs())
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", ""} {
		_, err := ParseLogLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
