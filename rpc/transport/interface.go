package transport

import (
	"context"

	"github.com/ValentinKolb/dMeta/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes a shardId and a request as parameters and returns a response
type ServerHandleFunc func(ctx context.Context, shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a ServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and serves incoming requests. It blocks
	// until Close is called (returning nil) or the listener fails.
	Listen(config common.ServerConfig) error
	// Close stops accepting requests and closes open connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport.
//
// A transport never retries. Every failure to deliver a request or to receive its
// response is returned as a metaerr ConnectionError, deciding whether and where
// to retry is left to the router.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration. Connections
	// to the endpoints are established lazily.
	Connect(config common.ClientConfig) error
	// Send sends a request for the shard to the endpoint and returns the response
	Send(ctx context.Context, endpoint string, shardId uint64, req []byte) (resp []byte, err error)
	// Close closes all connections of the transport
	Close() error
}
