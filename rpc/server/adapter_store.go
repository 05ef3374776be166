package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/ValentinKolb/dMeta/rpc/common"
)

// NewMetaStoreServerAdapter creates the adapter for the key value and membership
// operations of store.IMetaStore.
func NewMetaStoreServerAdapter() IRPCServerAdapter {
	return &metaStoreServerAdapterImpl{}
}

type metaStoreServerAdapterImpl struct{}

func (adapter *metaStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, s store.IMetaStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse(metaerr.Unknown("handler: store is nil"))
	}

	switch req.MsgType {
	case common.MsgTKVGet:
		rec, ok, err := s.Get(ctx, req.Key, req.Level)
		if err != nil || !ok {
			return common.NewResponse(req.MsgType, nil, err)
		}
		resp := common.NewResponse(req.MsgType, rec, nil)
		resp.Ok = true
		return resp
	case common.MsgTKVList:
		recs, err := s.List(ctx, req.Key, req.Level)
		return common.NewResponse(req.MsgType, recs, err)
	case common.MsgTKVUpsert:
		out, err := s.Upsert(ctx, req.Key, req.Match, req.Value)
		return common.NewResponse(req.MsgType, out, err)
	case common.MsgTKVDelete:
		out, err := s.Delete(ctx, req.Key, req.Match)
		return common.NewResponse(req.MsgType, out, err)
	case common.MsgTMembers:
		m, err := s.Members(ctx)
		return common.NewResponse(req.MsgType, m, err)
	case common.MsgTAddNode:
		return common.NewResponse(req.MsgType, nil, s.AddNode(ctx, req.NodeID, req.Address))
	case common.MsgTRemoveNode:
		return common.NewResponse(req.MsgType, nil, s.RemoveNode(ctx, req.NodeID))
	default:
		return common.NewErrorResponse(
			metaerr.Unknown(fmt.Sprintf("RPC MetaStoreAdapter - Unsupported message type: %s", req.MsgType)),
		)
	}
}
