// Package base provides a foundation for transport layers in the metadata service,
// implementing core functionality for RPC communication independent of the specific
// network protocol (TCP, Unix sockets, etc.). It serves as a base layer that can be
// extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Performance optimization through connection pooling and buffer reuse
//   - Frame-based message protocol with shardID and requestID tracking
//   - Response correlation over multiplexed connections
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation. The pool of an endpoint is
//     created on the first request to it and holds ConnectionsPerEndpoint
//     connections used in round robin. A connection is dialed lazily and replaced
//     on the next request after it failed.
//
//   - serverTransport: Core server implementation that accepts connections and
//     hands requests to the registered handler. Close stops the accept loop and
//     closes every open connection.
//
// Frame Format:
//
//	8 bytes  shardID    (big endian)
//	8 bytes  requestID  (big endian)
//	4 bytes  length     (big endian, at most MaxFrameSize)
//	N bytes  payload
//
// Failures:
//
//	The client never retries. A dial error, a write error, a broken connection
//	or an expired deadline fails the request with a metaerr ConnectionError. When
//	a connection breaks, every request waiting on it fails at once.
//
// Performance Optimizations:
//
//   - Connection Pooling: Multiple connections per endpoint improve throughput
//     for high-load scenarios. For small messages (< 1KB), a single connection per
//     endpoint may actually perform better due to reduced overhead.
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse buffers, reducing
//     GC pressure and memory allocations.
//
//   - Asynchronous Processing: The client sends requests and correlates responses
//     asynchronously using unique request IDs. The server processes up to
//     WorkersPerConn requests of a connection concurrently.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
