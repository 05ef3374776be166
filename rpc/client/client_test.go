package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dMeta/lib/catalog"
	"github.com/ValentinKolb/dMeta/lib/errcode"
	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/router"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/serializer"
	"github.com/ValentinKolb/dMeta/rpc/server"
	"github.com/ValentinKolb/dMeta/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Fake transport
// --------------------------------------------------------------------------

type nodeFunc func(req *common.Message) []byte

// fakeTransport answers requests with the node function of the endpoint and
// records the endpoints it was called with.
type fakeTransport struct {
	mu    sync.Mutex
	ser   serializer.IRPCSerializer
	nodes map[string]nodeFunc
	calls []string
}

func newFakeTransport(nodes map[string]nodeFunc) *fakeTransport {
	return &fakeTransport{ser: serializer.NewBinarySerializer(), nodes: nodes}
}

func (f *fakeTransport) Connect(common.ClientConfig) error { return nil }
func (f *fakeTransport) Close() error                      { return nil }

func (f *fakeTransport) Send(_ context.Context, endpoint string, _ uint64, data []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, endpoint)
	node, ok := f.nodes[endpoint]
	f.mu.Unlock()
	if !ok {
		return nil, metaerr.Connection("send request to "+endpoint, errors.New("connection refused"))
	}

	var req common.Message
	if err := f.ser.Deserialize(data, &req); err != nil {
		return nil, err
	}
	return node(&req), nil
}

func (f *fakeTransport) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) reply(msg *common.Message) []byte {
	data, err := f.ser.Serialize(*msg)
	if err != nil {
		panic(err)
	}
	return data
}

func testConfig(nodes map[uint64]string) common.ClientConfig {
	return common.ClientConfig{
		Nodes:   nodes,
		ShardID: 1,
		Retry: router.Config{
			MaxAttempts:         5,
			MaxElapsed:          time.Second,
			BackoffBase:         time.Millisecond,
			BackoffMax:          time.Millisecond,
			SameEndpointRetries: 1,
		},
	}
}

var threeNodes = map[uint64]string{1: "n1", 2: "n2", 3: "n3"}

// --------------------------------------------------------------------------
// Routing
// --------------------------------------------------------------------------

func TestWritesFollowTheLeader(t *testing.T) {
	var ft *fakeTransport
	follower := func(req *common.Message) []byte {
		return ft.reply(common.NewResponse(req.MsgType, nil, metaerr.ForwardTo(2)))
	}
	leader := func(req *common.Message) []byte {
		return ft.reply(common.NewResponse(req.MsgType, statemachine.ApplyOutcome{Index: 7, Applied: true}, nil))
	}
	ft = newFakeTransport(map[string]nodeFunc{"n1": follower, "n2": leader, "n3": follower})

	cache := router.NewLeaderCache()
	s, err := NewRPCStore(testConfig(threeNodes), ft, serializer.NewBinarySerializer(), cache)
	require.NoError(t, err)

	out, err := s.Upsert(context.Background(), "k", statemachine.Any(), []byte("v"))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, uint64(7), out.Index)
	assert.Equal(t, []string{"n1", "n2"}, ft.called())

	leaderID, ok := cache.Get()
	require.True(t, ok)
	assert.Equal(t, uint64(2), leaderID)

	// the cached leader is used directly
	_, err = s.Delete(context.Background(), "k", statemachine.Any())
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2", "n2"}, ft.called())
}

func TestReadsFallThroughUnreachableNodes(t *testing.T) {
	var ft *fakeTransport
	ft = newFakeTransport(map[string]nodeFunc{
		"n2": func(req *common.Message) []byte {
			resp := common.NewResponse(req.MsgType, statemachine.Record{Key: req.Key, Value: []byte("v"), Version: 1}, nil)
			resp.Ok = true
			return ft.reply(resp)
		},
	})

	s, err := NewRPCStore(testConfig(threeNodes), ft, serializer.NewBinarySerializer(), nil)
	require.NoError(t, err)

	rec, found, err := s.Get(context.Background(), "k", statemachine.Linearizable)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), rec.Value)
	assert.Equal(t, []string{"n1", "n2"}, ft.called())
}

func TestResponseErrors(t *testing.T) {
	var ft *fakeTransport
	tests := []struct {
		name  string
		node  nodeFunc
		check func(t *testing.T, err error)
		calls int
	}{
		{
			name: "application error is surfaced",
			node: func(req *common.Message) []byte {
				return ft.reply(common.NewResponse(req.MsgType, nil, metaerr.FromErrorCode(errcode.UnknownDatabase("db"))))
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, errcode.UnknownDatabase(""))
			},
			calls: 1,
		},
		{
			name: "undecodable response",
			node: func(*common.Message) []byte { return []byte{0xff} },
			check: func(t *testing.T, err error) {
				me, ok := metaerr.As(err)
				require.True(t, ok)
				require.Equal(t, metaerr.KindConnection, me.Kind)
				assert.True(t, me.Conn.Source.IsKind(metaerr.CauseProtocol))
			},
			calls: 5,
		},
		{
			name: "unexpected message type",
			node: func(*common.Message) []byte {
				return ft.reply(common.NewResponse(common.MsgTNodeList, []catalog.NodeInfo{}, nil))
			},
			check: func(t *testing.T, err error) {
				me, ok := metaerr.As(err)
				require.True(t, ok)
				require.Equal(t, metaerr.KindConnection, me.Kind)
				assert.Contains(t, me.Error(), "unexpected message type")
			},
			calls: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft = newFakeTransport(map[string]nodeFunc{"n1": tt.node})
			c, err := NewRPCCatalog(testConfig(map[uint64]string{1: "n1"}), ft, serializer.NewBinarySerializer(), nil)
			require.NoError(t, err)

			_, err = c.GetDatabase(context.Background(), "db")
			require.Error(t, err)
			tt.check(t, err)
			assert.Len(t, ft.called(), tt.calls)
		})
	}
}

func TestUnknownLeaderEndpoint(t *testing.T) {
	var ft *fakeTransport
	ft = newFakeTransport(map[string]nodeFunc{
		"n1": func(req *common.Message) []byte {
			return ft.reply(common.NewResponse(req.MsgType, nil, metaerr.ForwardTo(9)))
		},
	})
	s, err := NewRPCStore(testConfig(map[uint64]string{1: "n1"}), ft, serializer.NewBinarySerializer(), nil)
	require.NoError(t, err)

	err = s.AddNode(context.Background(), 4, "n4")
	assert.ErrorIs(t, err, metaerr.InvalidConfig(""))
}

func TestNoNodesConfigured(t *testing.T) {
	_, err := NewRPCStore(common.ClientConfig{}, newFakeTransport(nil), serializer.NewBinarySerializer(), nil)
	assert.ErrorIs(t, err, metaerr.InvalidConfig(""))
}

// --------------------------------------------------------------------------
// Against a server
// --------------------------------------------------------------------------

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestAgainstLocalServer(t *testing.T) {
	addr := freeAddr(t)
	srv := server.NewRPCServer(common.ServerConfig{
		Mode:          common.ModeLocal,
		ShardID:       5,
		ReplicaID:     1,
		DataDir:       t.TempDir(),
		TimeoutSecond: 5,
		Transport:     common.ServerTransportConfig{Endpoint: addr},
	}, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	defer func() {
		srv.Stop()
		assert.NoError(t, <-done)
	}()

	cfg := testConfig(map[uint64]string{1: addr})
	cfg.ShardID = 5
	cfg.TimeoutSecond = 2
	cfg.Retry.MaxElapsed = 5 * time.Second
	cfg.Retry.BackoffBase = 20 * time.Millisecond
	cfg.Retry.BackoffMax = 200 * time.Millisecond
	cfg.Retry.MaxAttempts = 50

	ctx := context.Background()

	s, err := NewRPCStore(cfg, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer(), nil)
	require.NoError(t, err)
	defer s.Close()

	// retried until the server is up
	out, err := s.Upsert(ctx, "cfg/a", statemachine.Absent(), []byte("1"))
	require.NoError(t, err)
	require.True(t, out.Applied)

	out, err = s.Upsert(ctx, "cfg/a", statemachine.Exact(out.Result.Version), []byte("2"))
	require.NoError(t, err)
	require.True(t, out.Applied)

	rec, found, err := s.Get(ctx, "cfg/a", statemachine.Linearizable)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("2"), rec.Value)

	recs, err := s.List(ctx, "cfg/", statemachine.Latest)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	m, err := s.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Leader)

	err = s.AddNode(ctx, 2, "127.0.0.1:1")
	assert.ErrorIs(t, err, metaerr.ChangeMembership(0, "", ""))

	ct := tcp.NewTCPClientTransport()
	defer ct.Close()
	c, err := NewRPCCatalog(cfg, ct, serializer.NewBinarySerializer(), nil)
	require.NoError(t, err)

	_, err = c.CreateDatabase(ctx, "db", nil)
	require.NoError(t, err)
	tbl, err := c.CreateTable(ctx, catalog.TableInfo{Database: "db", Name: "t", Schema: "id int"})
	require.NoError(t, err)

	tbl.Schema = "id int, name text"
	updated, err := c.UpdateTable(ctx, tbl, tbl.Version)
	require.NoError(t, err)
	assert.Greater(t, updated.Version, tbl.Version)

	_, err = c.UpdateTable(ctx, tbl, tbl.Version)
	assert.ErrorIs(t, err, errcode.TableVersionMismatched(""))

	require.NoError(t, c.RegisterNode(ctx, catalog.NodeInfo{ID: 3, Address: "10.0.0.3:7000"}))
	nodes, err := c.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "10.0.0.3:7000", nodes[0].Address)

	require.NoError(t, c.DropTable(ctx, "db", "t"))
	require.NoError(t, c.DropDatabase(ctx, "db"))
	_, err = c.GetDatabase(ctx, "db")
	assert.ErrorIs(t, err, errcode.UnknownDatabase(""))
}
