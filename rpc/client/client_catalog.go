package client

import (
	"context"

	"github.com/ValentinKolb/dMeta/lib/catalog"
	"github.com/ValentinKolb/dMeta/lib/router"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/serializer"
	"github.com/ValentinKolb/dMeta/rpc/transport"
)

// NewRPCCatalog creates a catalog client. The catalog operations are executed by
// the server, so every operation is a single request. The transport stays owned by
// the caller.
func NewRPCCatalog(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
	cache *router.LeaderCache,
) (catalog.ICatalog, error) {
	adapter, err := newClientAdapter(config, transport, serializer, cache)
	if err != nil {
		return nil, err
	}
	return &rpcCatalog{adapter}, nil
}

type rpcCatalog struct {
	rpcClientAdapter
}

// request builds a catalog request, the body is JSON encoded
func (c *rpcCatalog) request(msgType common.MessageType, database, name string, body interface{}) (*common.Message, error) {
	return common.NewCatalogRequest(msgType, database, name, body)
}

// exec invokes a request without result
func (c *rpcCatalog) exec(ctx context.Context, req *common.Message, err error) error {
	if err != nil {
		return err
	}
	_, err = c.invoke(ctx, req)
	return err
}

// query invokes a request and decodes its result
func query[T any](ctx context.Context, c *rpcCatalog, req *common.Message, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return invokeDecode[T](ctx, &c.rpcClientAdapter, req)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the catalog package in interface.go)
// --------------------------------------------------------------------------

func (c *rpcCatalog) CreateDatabase(ctx context.Context, name string, options map[string]string) (catalog.DatabaseInfo, error) {
	req, err := c.request(common.MsgTDBCreate, name, "", options)
	return query[catalog.DatabaseInfo](ctx, c, req, err)
}

func (c *rpcCatalog) GetDatabase(ctx context.Context, name string) (catalog.DatabaseInfo, error) {
	req, err := c.request(common.MsgTDBGet, name, "", nil)
	return query[catalog.DatabaseInfo](ctx, c, req, err)
}

func (c *rpcCatalog) ListDatabases(ctx context.Context) ([]catalog.DatabaseInfo, error) {
	req, err := c.request(common.MsgTDBList, "", "", nil)
	return query[[]catalog.DatabaseInfo](ctx, c, req, err)
}

func (c *rpcCatalog) DropDatabase(ctx context.Context, name string) error {
	req, err := c.request(common.MsgTDBDrop, name, "", nil)
	return c.exec(ctx, req, err)
}

func (c *rpcCatalog) CreateTable(ctx context.Context, info catalog.TableInfo) (catalog.TableInfo, error) {
	req, err := c.request(common.MsgTTableCreate, info.Database, info.Name, info)
	return query[catalog.TableInfo](ctx, c, req, err)
}

func (c *rpcCatalog) GetTable(ctx context.Context, database, name string) (catalog.TableInfo, error) {
	req, err := c.request(common.MsgTTableGet, database, name, nil)
	return query[catalog.TableInfo](ctx, c, req, err)
}

func (c *rpcCatalog) ListTables(ctx context.Context, database string) ([]catalog.TableInfo, error) {
	req, err := c.request(common.MsgTTableList, database, "", nil)
	return query[[]catalog.TableInfo](ctx, c, req, err)
}

func (c *rpcCatalog) UpdateTable(ctx context.Context, info catalog.TableInfo, expected uint64) (catalog.TableInfo, error) {
	req, err := c.request(common.MsgTTableUpdate, info.Database, info.Name, info)
	if err == nil {
		req.Version = expected
	}
	return query[catalog.TableInfo](ctx, c, req, err)
}

func (c *rpcCatalog) DropTable(ctx context.Context, database, name string) error {
	req, err := c.request(common.MsgTTableDrop, database, name, nil)
	return c.exec(ctx, req, err)
}

func (c *rpcCatalog) RegisterNode(ctx context.Context, info catalog.NodeInfo) error {
	req, err := c.request(common.MsgTNodeRegister, "", "", info)
	if err == nil {
		req.NodeID = info.ID
	}
	return c.exec(ctx, req, err)
}

func (c *rpcCatalog) UnregisterNode(ctx context.Context, id uint64) error {
	req, err := c.request(common.MsgTNodeUnregister, "", "", nil)
	if err == nil {
		req.NodeID = id
	}
	return c.exec(ctx, req, err)
}

func (c *rpcCatalog) ListNodes(ctx context.Context) ([]catalog.NodeInfo, error) {
	req, err := c.request(common.MsgTNodeList, "", "", nil)
	return query[[]catalog.NodeInfo](ctx, c, req, err)
}
