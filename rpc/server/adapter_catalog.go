package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/catalog"
	"github.com/ValentinKolb/dMeta/lib/errcode"
	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/ValentinKolb/dMeta/rpc/common"
)

// NewCatalogServerAdapter creates the adapter for the catalog operations. The
// catalog is created on top of the store of the server.
func NewCatalogServerAdapter() IRPCServerAdapter {
	return &catalogServerAdapterImpl{}
}

type catalogServerAdapterImpl struct{}

func (adapter *catalogServerAdapterImpl) Handle(ctx context.Context, req *common.Message, s store.IMetaStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse(metaerr.Unknown("handler: store is nil"))
	}
	c := catalog.NewCatalog(s)

	switch req.MsgType {
	case common.MsgTDBCreate:
		var options map[string]string
		if err := decodeBody(req, &options, true); err != nil {
			return common.NewResponse(req.MsgType, nil, err)
		}
		db, err := c.CreateDatabase(ctx, req.Key, options)
		return common.NewResponse(req.MsgType, db, err)
	case common.MsgTDBGet:
		db, err := c.GetDatabase(ctx, req.Key)
		return common.NewResponse(req.MsgType, db, err)
	case common.MsgTDBList:
		dbs, err := c.ListDatabases(ctx)
		return common.NewResponse(req.MsgType, dbs, err)
	case common.MsgTDBDrop:
		return common.NewResponse(req.MsgType, nil, c.DropDatabase(ctx, req.Key))

	case common.MsgTTableCreate:
		var info catalog.TableInfo
		if err := decodeBody(req, &info, false); err != nil {
			return common.NewResponse(req.MsgType, nil, err)
		}
		tbl, err := c.CreateTable(ctx, info)
		return common.NewResponse(req.MsgType, tbl, err)
	case common.MsgTTableGet:
		tbl, err := c.GetTable(ctx, req.Key, req.Name)
		return common.NewResponse(req.MsgType, tbl, err)
	case common.MsgTTableList:
		tbls, err := c.ListTables(ctx, req.Key)
		return common.NewResponse(req.MsgType, tbls, err)
	case common.MsgTTableUpdate:
		var info catalog.TableInfo
		if err := decodeBody(req, &info, false); err != nil {
			return common.NewResponse(req.MsgType, nil, err)
		}
		tbl, err := c.UpdateTable(ctx, info, req.Version)
		return common.NewResponse(req.MsgType, tbl, err)
	case common.MsgTTableDrop:
		return common.NewResponse(req.MsgType, nil, c.DropTable(ctx, req.Key, req.Name))

	case common.MsgTNodeRegister:
		var info catalog.NodeInfo
		if err := decodeBody(req, &info, false); err != nil {
			return common.NewResponse(req.MsgType, nil, err)
		}
		return common.NewResponse(req.MsgType, nil, c.RegisterNode(ctx, info))
	case common.MsgTNodeUnregister:
		return common.NewResponse(req.MsgType, nil, c.UnregisterNode(ctx, req.NodeID))
	case common.MsgTNodeList:
		nodes, err := c.ListNodes(ctx)
		return common.NewResponse(req.MsgType, nodes, err)

	default:
		return common.NewErrorResponse(
			metaerr.Unknown(fmt.Sprintf("RPC CatalogAdapter - Unsupported message type: %s", req.MsgType)),
		)
	}
}

// decodeBody decodes the JSON body of a catalog request. A body that can not be
// decoded is a client error (BadArguments), not a damaged record.
func decodeBody(req *common.Message, v interface{}, optional bool) error {
	if len(req.Value) == 0 {
		if optional {
			return nil
		}
		return metaerr.FromErrorCode(errcode.BadArguments(fmt.Sprintf("%s request has no body", req.MsgType)))
	}
	if err := json.Unmarshal(req.Value, v); err != nil {
		return metaerr.FromErrorCode(errcode.BadArguments(fmt.Sprintf("invalid %s request body: %v", req.MsgType, err)))
	}
	return nil
}
