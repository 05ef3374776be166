// Package transport defines the interfaces and abstractions for RPC communication
// in the metadata service. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Addressing a request to one endpoint and one shard
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending. The caller names the
//     endpoint of every request, so leader routing stays outside the transport.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Failures:
//
//	Transports do not retry. A request that could not be delivered, or whose
//	response could not be read, fails with a metaerr ConnectionError whose cause
//	tells dial failures, timeouts, resets and protocol violations apart.
package transport
