// Package http implements an HTTP-based transport layer for RPC communication
// in the metadata service. It provides concrete implementations of the transport
// interfaces defined in the parent package, enabling communication between clients
// and servers over HTTP.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Every request is a POST
//     of the serialized message to <endpoint>/<shardId>. Endpoints given as
//     host:port get the http scheme. A status other than 200 is reported as a
//     ConnectionError with a protocol cause.
//
//   - httpServerTransport: Implements IRPCServerTransport on a chi router:
//
//     POST /{shardId}   the RPC endpoint
//     GET  /metrics     Prometheus metrics of the process
//     GET  /healthz     liveness probe
//
//     Panics of a handler are recovered by the chi Recoverer middleware. With the
//     debug log level every request is logged.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use. Connections are pooled by the
//	net/http client, ConnectionsPerEndpoint bounds the idle connections per host.
package http
