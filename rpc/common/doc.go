// Package common provides the data structures shared by the RPC server, the
// RPC clients and the transports of the metadata service.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Requests use the
//     typed fields (Key, Match, Level, ...), responses carry the result as JSON
//     Payload and failures as a *metaerr.MetaError, so the error kind survives
//     the trip to the client.
//
//   - MessageType: Enumeration of all operations, grouped into store operations
//     (IMetaStore), catalog operations (ICatalog) and control messages.
//
//   - ServerConfig: Configuration of a server node (local or replicated mode,
//     RAFT parameters, storage settings, transport and logging). Provides the
//     conversions to the Dragonboat configurations.
//
//   - ClientConfig: Configuration of the clients: the node id to endpoint map
//     used to follow ForwardToLeader answers, the per attempt timeout and the
//     retry budget of the router.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
