package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dMeta/lib/metaerr"
	"github.com/ValentinKolb/dMeta/lib/router"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/serializer"
	"github.com/ValentinKolb/dMeta/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("rpc")

// rpcClientAdapter is a struct that stores all data needed for an implementation if an RPC client
// Used by the RPCStore and RPCCatalog with composition pattern
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	router     *router.Router
}

// newClientAdapter connects the transport and creates the router over the
// configured nodes. cache may be nil.
func newClientAdapter(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
	cache *router.LeaderCache,
) (rpcClientAdapter, error) {
	if len(config.Nodes) == 0 {
		return rpcClientAdapter{}, metaerr.InvalidConfig("no nodes configured")
	}
	if err := transport.Connect(config); err != nil {
		return rpcClientAdapter{}, err
	}
	log.Debugf("RPC client config: %s", config.String())

	return rpcClientAdapter{
		config:     config,
		transport:  transport,
		serializer: serializer,
		router:     router.New(config.RouterConfig(), cache, config.NodeIDs()),
	}, nil
}

// invoke sends req through the router. Every attempt is addressed to the node
// chosen by the router, the MetaError of a response decides whether (and where)
// the request is retried.
// A response that can not be decoded or has an unexpected type is reported as a
// ConnectionError with a protocol cause.
func (a *rpcClientAdapter) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, metaerr.Unknownf("failed to serialize %s request: %v", req.MsgType, err)
	}

	var resp *common.Message
	err = a.router.Do(ctx, opKind(req.MsgType), func(ctx context.Context, target uint64) error {
		endpoint, ok := a.config.Nodes[target]
		if !ok {
			return metaerr.InvalidConfig(fmt.Sprintf("no endpoint configured for node %d", target))
		}

		respBytes, err := a.transport.Send(ctx, endpoint, a.config.ShardID, reqBytes)
		if err != nil {
			if _, ok := metaerr.As(err); !ok {
				err = metaerr.Connection("send request to "+endpoint, err)
			}
			return err
		}

		m := &common.Message{}
		if err := a.serializer.Deserialize(respBytes, m); err != nil {
			return metaerr.Connection("decode response from "+endpoint,
				metaerr.ProtocolError("undecodable response: %v", err))
		}
		if m.Err != nil {
			return m.Err
		}
		if m.MsgType != req.MsgType {
			return metaerr.Connection("decode response from "+endpoint,
				metaerr.ProtocolError("unexpected message type: %s, expected %s", m.MsgType, req.MsgType))
		}
		resp = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// invokeDecode invokes req and decodes the payload of the response into a T
func invokeDecode[T any](ctx context.Context, a *rpcClientAdapter, req *common.Message) (T, error) {
	var res T
	resp, err := a.invoke(ctx, req)
	if err != nil {
		return res, err
	}
	if err := resp.Decode(&res); err != nil {
		return res, err
	}
	return res, nil
}

// opKind selects the routing of a message type
func opKind(t common.MessageType) router.OpKind {
	switch {
	case t == common.MsgTAddNode || t == common.MsgTRemoveNode:
		return router.OpMembership
	case t.IsRead():
		return router.OpRead
	default:
		return router.OpWrite
	}
}
