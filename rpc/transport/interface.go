package transport

import (
	"context"
	"github.com/ValentinKolb/revd/rpc/common"
	"net"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests.
// It is called by a server transport with the payload of a request frame and
// returns the payload of the reply frame. The request slice is only valid for
// the duration of the call; the handler may modify it in place and return it.
// The reply must have the same length as the request, since the reply frame
// echoes the request's length byte.
type ServerHandleFunc func(req []byte) (resp []byte)

// IRPCServerTransport is the interface for the server side of the transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler called for every request frame
	RegisterHandler(handler ServerHandleFunc)
	// Listen binds the listening socket and prepares the worker pool.
	// A bind failure is returned and must be treated as fatal.
	Listen(config common.ServerConfig) error
	// Addr returns the address the transport is bound to (nil before Listen)
	Addr() net.Addr
	// Serve accepts connections until ctx is cancelled and then shuts down
	// the worker pool. It must be called after Listen.
	Serve(ctx context.Context) error
	// Metrics returns the connection metrics of the transport
	Metrics() *common.ServerMetrics
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the client side of the transport layer
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends one encoded request frame on a fresh connection and returns the
	// raw reply frame. The connection is closed afterwards.
	Send(frame []byte) (resp []byte, err error)
	// Close releases the transport
	Close() error
}
