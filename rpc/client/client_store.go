package client

import (
	"context"

	"github.com/ValentinKolb/dMeta/lib/router"
	"github.com/ValentinKolb/dMeta/lib/statemachine"
	"github.com/ValentinKolb/dMeta/lib/store"
	"github.com/ValentinKolb/dMeta/rpc/common"
	"github.com/ValentinKolb/dMeta/rpc/serializer"
	"github.com/ValentinKolb/dMeta/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a config, a transport, a serializer and an optional leader
// cache (shared between clients of the same cluster) as parameters.
// It returns a store.IMetaStore and an error. Close closes the transport.
func NewRPCStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
	cache *router.LeaderCache,
) (store.IMetaStore, error) {
	adapter, err := newClientAdapter(config, transport, serializer, cache)
	if err != nil {
		return nil, err
	}
	return &rpcStore{adapter}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Get(ctx context.Context, key string, level statemachine.Consistency) (statemachine.Record, bool, error) {
	resp, err := i.invoke(ctx, common.NewGetRequest(key, level))
	if err != nil || !resp.Ok {
		return statemachine.Record{}, false, err
	}
	var rec statemachine.Record
	if err := resp.Decode(&rec); err != nil {
		return statemachine.Record{}, false, err
	}
	return rec, true, nil
}

func (i *rpcStore) List(ctx context.Context, prefix string, level statemachine.Consistency) ([]statemachine.Record, error) {
	return invokeDecode[[]statemachine.Record](ctx, &i.rpcClientAdapter, common.NewListRequest(prefix, level))
}

func (i *rpcStore) Upsert(ctx context.Context, key string, match statemachine.MatchSeq, value []byte) (statemachine.ApplyOutcome, error) {
	return invokeDecode[statemachine.ApplyOutcome](ctx, &i.rpcClientAdapter, common.NewUpsertRequest(key, match, value))
}

func (i *rpcStore) Delete(ctx context.Context, key string, match statemachine.MatchSeq) (statemachine.ApplyOutcome, error) {
	return invokeDecode[statemachine.ApplyOutcome](ctx, &i.rpcClientAdapter, common.NewDeleteRequest(key, match))
}

func (i *rpcStore) Members(ctx context.Context) (store.Membership, error) {
	return invokeDecode[store.Membership](ctx, &i.rpcClientAdapter, common.NewMembersRequest())
}

func (i *rpcStore) AddNode(ctx context.Context, id uint64, address string) error {
	_, err := i.invoke(ctx, common.NewAddNodeRequest(id, address))
	return err
}

func (i *rpcStore) RemoveNode(ctx context.Context, id uint64) error {
	_, err := i.invoke(ctx, common.NewRemoveNodeRequest(id))
	return err
}

func (i *rpcStore) Close() error {
	return i.transport.Close()
}
