package client

import (
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/ValentinKolb/revd/rpc/transport"
)

// NewReverseClient creates a new client for the reverse server.
// The function takes a config and a transport as parameters and connects the transport.
func NewReverseClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
) (*ReverseClient, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	return &ReverseClient{
		config:    config,
		transport: transport,
	}, nil
}

// ReverseClient sends messages to the reverse server, one connection per message
type ReverseClient struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport
}

// SendRaw sends msg and returns the raw reply frame (length byte + reversed payload).
// Messages longer than codec.MaxPayloadLength are rejected with codec.ErrPayloadTooLarge.
func (c *ReverseClient) SendRaw(msg []byte) ([]byte, error) {
	return invokeRPCRequest(msg, c.transport)
}

// Reverse sends msg and returns the reversed message
func (c *ReverseClient) Reverse(msg []byte) ([]byte, error) {
	resp, err := invokeRPCRequest(msg, c.transport)
	if err != nil {
		return nil, err
	}
	return resp[codec.HeaderLength:], nil
}

// Close releases the transport
func (c *ReverseClient) Close() error {
	return c.transport.Close()
}
