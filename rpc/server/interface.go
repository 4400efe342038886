package server

// IRPCServerAdapter is the interface for all RPC server adapters.
// It maps the payload of a request frame to the payload of the reply frame.
type IRPCServerAdapter interface {
	// Handle handles a request payload and returns the reply payload.
	// The request slice belongs to the transport and is only valid during the
	// call, the adapter may modify it in place and return it.
	// The reply must have the same length as the request.
	Handle(req []byte) (resp []byte)

	// Name returns a short name of the adapter for logging
	Name() string
}
