// Package rpc provides remote procedure calls for the metadata service. It is the
// communication layer between the compute layer and the replicas of a shard.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP). Failures are reported as ConnectionErrors.
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC clients for the metadata store and the catalog. Every request is
//     routed through lib/router, which follows leader forwards and retries
//     connection failures.
//
//   - server: The RPC server running the store of one shard, with adapters for
//     store and catalog operations.
package rpc
