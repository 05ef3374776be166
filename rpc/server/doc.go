// Package server implements the RPC server of the metadata service. A server runs
// the store of one shard and serves it over a transport.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a
//     store.IMetaStore.
//
//   - NewMetaStoreServerAdapter: Adapter for the key value and membership
//     operations, translating RPC requests to store.IMetaStore method calls.
//
//   - NewCatalogServerAdapter: Adapter for the catalog operations, creating a
//     catalog.ICatalog on top of the store.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Modes:
//
//   - local: a single replica store (lstore) in DataDir/shard-<id>-local.
//
//   - replicated: a Dragonboat replica (dstore). The RAFT configuration
//     (RTTMillisecond, SnapshotEntries, CompactionOverhead, ReplicaID and
//     ClusterMembers) must be set. A replica added with AddNode is started with
//     Join.
//
// Request Handling:
//
//	Every request gets the configured timeout. Requests for another shard are
//	answered with InvalidConfig, requests that can not be decoded with BadBytes.
//	A catalog record that can not be decoded is reported to the shutdown
//	supervisor as integrity error.
//
// Shutdown:
//
//	Serve returns on SIGINT or SIGTERM, on Stop, when the transport fails or when
//	the supervisor marks the storage unsafe. In the last case the ShutdownError
//	is returned, so the process can exit with a failure.
//
// Usage Example:
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
package server
