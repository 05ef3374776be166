// Package client implements RPC clients for the metadata service. It provides
// implementations of the store.IMetaStore and catalog.ICatalog interfaces that
// communicate with the replicas of a shard via RPC.
//
// The package focuses on:
//   - Transparent RPC access to the metadata store and the catalog
//   - Integration with the transport and serialization layers
//   - Leader routing and retries through lib/router
//
// Key Components:
//
//   - NewRPCStore: Factory function that creates a client implementing the
//     store.IMetaStore interface. Close closes the transport.
//
//   - NewRPCCatalog: Factory function that creates a client implementing the
//     catalog.ICatalog interface. The catalog runs on the server, every catalog
//     operation is a single request.
//
// Routing:
//
//	Every request runs through a router.Router over the configured nodes. Writes
//	go to the cached leader, a ForwardToLeader answer updates the cache and the
//	request is repeated at the named leader. Reads may be served by any replica
//	and fall through to the next one when a node is not reachable. Errors the
//	router does not retry (application errors, BadBytes, ...) are returned as
//	they were received from the server. A response that can not be decoded is
//	reported as a ConnectionError with a protocol cause.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Nodes:         map[uint64]string{1: "10.0.0.1:8080", 2: "10.0.0.2:8080", 3: "10.0.0.3:8080"},
//	  ShardID:       100,
//	  TimeoutSecond: 5,
//	  Retry:         router.DefaultConfig(),
//	}
//
//	// clients of the same cluster may share the leader cache
//	cache := router.NewLeaderCache()
//
//	store, _ := client.NewRPCStore(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer(), cache)
//	defer store.Close()
//	out, _ := store.Upsert(ctx, "config/a", statemachine.Absent(), []byte("1"))
//
//	cat, _ := client.NewRPCCatalog(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer(), cache)
//	db, _ := cat.CreateDatabase(ctx, "sales", nil)
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
