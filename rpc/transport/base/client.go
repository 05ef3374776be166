package base

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientTransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// wire is one established net connection. When the reader fails, dead is closed
// and every pending request fails with err.
type wire struct {
	conn    net.Conn
	writeMu sync.Mutex
	pending *xsync.MapOf[uint64, chan responseResult]
	dead    chan struct{}
	once    sync.Once
	err     error
}

// clientConnection is a slot of an endpoint pool. It holds the current wire and
// replaces it after a failure on the next request.
type clientConnection struct {
	endpoint string
	parent   *clientTransport
	mu       sync.Mutex
	wire     *wire
}

// endpointPool holds the connections to one endpoint
type endpointPool struct {
	conns []*clientConnection
	next  atomic.Uint64 // round robin
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	pools         *xsync.MapOf[string, *endpointPool]
	nextRequestID atomic.Uint64
	closed        atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		pools:     xsync.NewMapOf[string, *endpointPool](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	t.closeConnections()
	t.config = config
	t.closed.Store(false)

	log.Infof("Using %s transport with %d connection(s) per endpoint for %d node(s)",
		t.connector.GetName(), t.connectionsPerEndpoint(), len(config.Nodes))
	return nil
}

func (t *clientTransport) Send(ctx context.Context, endpoint string, shardId uint64, req []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, metaerr.Connection("send request to "+endpoint, net.ErrClosed)
	}
	if timeout := t.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c := t.pool(endpoint).pick()
	w, err := c.get(ctx)
	if err != nil {
		return nil, metaerr.Connection("connect to "+endpoint, err)
	}

	requestID := t.nextRequestID.Add(1)
	respCh := make(chan responseResult, 1)
	w.pending.Store(requestID, respCh)
	defer w.pending.Delete(requestID)

	w.writeMu.Lock()
	// the wire is shared, a deadline of an earlier request must not stay set
	if deadline, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(deadline)
	} else {
		_ = w.conn.SetWriteDeadline(time.Time{})
	}
	err = writeFrame(w.conn, shardId, requestID, req)
	w.writeMu.Unlock()
	if err != nil {
		w.fail(err)
		return nil, metaerr.Connection("send request to "+endpoint, err)
	}

	select {
	case res := <-respCh:
		if res.err != nil {
			return nil, metaerr.Connection("read response from "+endpoint, res.err)
		}
		return res.data, nil
	case <-w.dead:
		return nil, metaerr.Connection("read response from "+endpoint, w.err)
	case <-ctx.Done():
		return nil, metaerr.Connection("wait for response from "+endpoint, ctx.Err())
	}
}

func (t *clientTransport) Close() error {
	t.closed.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) connectionsPerEndpoint() int {
	return max(1, t.config.Transport.ConnectionsPerEndpoint)
}

// pool returns the pool of the endpoint, creating it on first use
func (t *clientTransport) pool(endpoint string) *endpointPool {
	p, _ := t.pools.LoadOrCompute(endpoint, func() *endpointPool {
		n := t.connectionsPerEndpoint()
		p := &endpointPool{conns: make([]*clientConnection, n)}
		for i := range p.conns {
			p.conns[i] = &clientConnection{endpoint: endpoint, parent: t}
		}
		return p
	})
	return p
}

// closeConnections closes all connections and forgets the pools
func (t *clientTransport) closeConnections() {
	t.pools.Range(func(endpoint string, p *endpointPool) bool {
		for _, c := range p.conns {
			c.close()
		}
		t.pools.Delete(endpoint)
		return true
	})
}

// pick selects the next connection via Round Robin
func (p *endpointPool) pick() *clientConnection {
	if len(p.conns) == 1 {
		return p.conns[0]
	}
	return p.conns[p.next.Add(1)%uint64(len(p.conns))]
}

// get returns the current wire of the connection, dialing a new one if there is
// none or the last one failed.
func (c *clientConnection) get(ctx context.Context) (*wire, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wire != nil && !c.wire.isDead() {
		return c.wire, nil
	}

	conn, err := c.parent.connector.Connect(ctx, c.endpoint)
	if err != nil {
		return nil, err
	}
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config.Transport); err != nil {
		_ = conn.Close()
		return nil, err
	}

	w := &wire{
		conn:    conn,
		pending: xsync.NewMapOf[uint64, chan responseResult](),
		dead:    make(chan struct{}),
	}
	c.wire = w
	go w.readResponses(c.endpoint)

	log.Debugf("Connected to %s using %s", c.endpoint, c.parent.connector.GetName())
	return w, nil
}

func (c *clientConnection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wire != nil {
		c.wire.fail(net.ErrClosed)
		c.wire = nil
	}
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (w *wire) readResponses(endpoint string) {
	for {
		shardID, requestID, data, err := readFrame(w.conn, nil)
		if err != nil {
			if !w.isDead() {
				log.Debugf("Connection to %s failed: %v", endpoint, err)
			}
			w.fail(err)
			return
		}

		respCh, found := w.pending.Load(requestID)
		if !found {
			// the request was abandoned (canceled or timed out)
			log.Debugf("Received response for unknown request ID %d with shard ID %d", requestID, shardID)
			continue
		}
		select {
		case respCh <- responseResult{data: data}:
		default:
		}
	}
}

// fail marks the wire as dead and closes the connection. Only the first error is kept.
func (w *wire) fail(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.dead)
		_ = w.conn.Close()
	})
}

func (w *wire) isDead() bool {
	select {
	case <-w.dead:
		return true
	default:
		return false
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
