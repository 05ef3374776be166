package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/dMeta/lib/catalog"
	"github.com/ValentinKolb/dMeta/lib/errcode"
	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/serializer"
	"github.com/ValentinKolb/dMeta/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShard = 100

func localConfig(t *testing.T) common.ServerConfig {
	return common.ServerConfig{
		Mode:                    common.ModeLocal,
		ShardID:                 testShard,
		ReplicaID:               1,
		DataDir:                 t.TempDir(),
		TimeoutSecond:           5,
		IntegrityErrorThreshold: 1,
		Transport:               common.ServerTransportConfig{Endpoint: freeAddr(t)},
	}
}

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// newTestServer creates an initialized local server without starting the transport
func newTestServer(t *testing.T) *RPCServer {
	t.Helper()
	s := NewRPCServer(localConfig(t), tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
	require.NoError(t, s.init())
	t.Cleanup(s.close)
	return s
}

// call serializes req, passes it to the handler of s and decodes the response
func call(t *testing.T, s *RPCServer, shard uint64, req *common.Message) *common.Message {
	t.Helper()
	data, err := s.serializer.Serialize(*req)
	require.NoError(t, err)

	var resp common.Message
	require.NoError(t, s.serializer.Deserialize(s.handle(context.Background(), shard, data), &resp))
	return &resp
}

func TestMetaStoreRequests(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, testShard, common.NewUpsertRequest("a", statemachine.Absent(), []byte("1")))
	require.Nil(t, resp.Err)
	var out statemachine.ApplyOutcome
	require.NoError(t, resp.Decode(&out))
	assert.True(t, out.Applied)

	resp = call(t, s, testShard, common.NewUpsertRequest("a", statemachine.Absent(), []byte("2")))
	require.Nil(t, resp.Err)
	require.NoError(t, resp.Decode(&out))
	assert.False(t, out.Applied)
	assert.Equal(t, statemachine.ConflictAlreadyExists, out.Conflict)

	resp = call(t, s, testShard, common.NewGetRequest("a", statemachine.Linearizable))
	require.Nil(t, resp.Err)
	require.True(t, resp.Ok)
	var rec statemachine.Record
	require.NoError(t, resp.Decode(&rec))
	assert.Equal(t, []byte("1"), rec.Value)

	resp = call(t, s, testShard, common.NewGetRequest("missing", statemachine.Latest))
	require.Nil(t, resp.Err)
	assert.False(t, resp.Ok)

	resp = call(t, s, testShard, common.NewListRequest("", statemachine.Latest))
	require.Nil(t, resp.Err)
	var recs []statemachine.Record
	require.NoError(t, resp.Decode(&recs))
	assert.Len(t, recs, 1)

	resp = call(t, s, testShard, common.NewMembersRequest())
	require.Nil(t, resp.Err)
	var m store.Membership
	require.NoError(t, resp.Decode(&m))
	assert.Equal(t, uint64(1), m.Leader)
	assert.Contains(t, m.Nodes, uint64(1))

	resp = call(t, s, testShard, common.NewDeleteRequest("a", statemachine.Any()))
	require.Nil(t, resp.Err)
	require.NoError(t, resp.Decode(&out))
	assert.True(t, out.Applied)
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		shard uint64
		req   *common.Message
		kind  metaerr.Kind
	}{
		{"wrong shard", testShard + 1, common.NewMembersRequest(), metaerr.KindInvalidConfig},
		{"invalid key", testShard, common.NewUpsertRequest("", statemachine.Any(), nil), metaerr.KindBadBytes},
		{"unsupported type", testShard, &common.Message{MsgType: common.MsgTSuccess}, metaerr.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, s, tt.shard, tt.req)
			require.NotNil(t, resp.Err)
			assert.Equal(t, tt.kind, resp.Err.Kind)
		})
	}

	t.Run("undecodable request", func(t *testing.T) {
		var resp common.Message
		require.NoError(t, s.serializer.Deserialize(s.handle(context.Background(), testShard, []byte{0xff}), &resp))
		require.NotNil(t, resp.Err)
		assert.Equal(t, metaerr.KindBadBytes, resp.Err.Kind)
		assert.False(t, s.sup.Unsafe())
	})
}

func TestCatalogRequests(t *testing.T) {
	s := newTestServer(t)

	req, err := common.NewCatalogRequest(common.MsgTDBCreate, "db1", "", map[string]string{"owner": "alice"})
	require.NoError(t, err)
	resp := call(t, s, testShard, req)
	require.Nil(t, resp.Err)
	var db catalog.DatabaseInfo
	require.NoError(t, resp.Decode(&db))
	assert.Equal(t, "alice", db.Options["owner"])

	resp = call(t, s, testShard, req)
	require.NotNil(t, resp.Err)
	assert.ErrorIs(t, resp.Err, errcode.DatabaseAlreadyExists(""))

	req, err = common.NewCatalogRequest(common.MsgTTableCreate, "db1", "t1", catalog.TableInfo{Database: "db1", Name: "t1", Schema: "id int"})
	require.NoError(t, err)
	resp = call(t, s, testShard, req)
	require.Nil(t, resp.Err)
	var tbl catalog.TableInfo
	require.NoError(t, resp.Decode(&tbl))

	tbl.Schema = "id bigint"
	req, err = common.NewCatalogRequest(common.MsgTTableUpdate, "db1", "t1", tbl)
	require.NoError(t, err)
	req.Version = tbl.Version + 1
	resp = call(t, s, testShard, req)
	require.NotNil(t, resp.Err)
	assert.ErrorIs(t, resp.Err, errcode.TableVersionMismatched(""))

	req.Version = tbl.Version
	resp = call(t, s, testShard, req)
	require.Nil(t, resp.Err)

	req, err = common.NewCatalogRequest(common.MsgTTableList, "db1", "", nil)
	require.NoError(t, err)
	resp = call(t, s, testShard, req)
	require.Nil(t, resp.Err)
	var tbls []catalog.TableInfo
	require.NoError(t, resp.Decode(&tbls))
	require.Len(t, tbls, 1)
	assert.Equal(t, "id bigint", tbls[0].Schema)

	req, err = common.NewCatalogRequest(common.MsgTDBDrop, "db1", "", nil)
	require.NoError(t, err)
	resp = call(t, s, testShard, req)
	require.NotNil(t, resp.Err)
	assert.ErrorIs(t, resp.Err, errcode.DatabaseNotEmpty(""))

	t.Run("bad body", func(t *testing.T) {
		resp := call(t, s, testShard, &common.Message{MsgType: common.MsgTTableCreate, Value: []byte("{")})
		require.NotNil(t, resp.Err)
		assert.ErrorIs(t, resp.Err, errcode.BadArguments(""))
		assert.False(t, s.sup.Unsafe())
	})
}

func TestDamagedRecordMarksStorageUnsafe(t *testing.T) {
	s := newTestServer(t)

	// a catalog record that is not JSON
	resp := call(t, s, testShard, common.NewUpsertRequest("__db/broken", statemachine.Any(), []byte("not json")))
	require.Nil(t, resp.Err)

	req, err := common.NewCatalogRequest(common.MsgTDBGet, "broken", "", nil)
	require.NoError(t, err)
	resp = call(t, s, testShard, req)
	require.NotNil(t, resp.Err)
	assert.Equal(t, metaerr.KindSerdeJSON, resp.Err.Kind)

	// the threshold of the test config is 1
	assert.True(t, s.sup.Unsafe())
	resp = call(t, s, testShard, common.NewUpsertRequest("x", statemachine.Any(), []byte("1")))
	require.NotNil(t, resp.Err)
	assert.Equal(t, metaerr.KindMetaStoreDamaged, resp.Err.Kind)
}

func TestServeAndStop(t *testing.T) {
	cfg := localConfig(t)
	s := NewRPCServer(cfg, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	// the endpoint accepts connections once the server is up
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", cfg.Transport.Endpoint)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServeInvalidConfig(t *testing.T) {
	cfg := localConfig(t)
	cfg.ReplicaID = 0
	s := NewRPCServer(cfg, tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())

	err := s.Serve()
	require.Error(t, err)
	assert.ErrorIs(t, err, metaerr.InvalidConfig(""))
}
