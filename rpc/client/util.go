package client

import (
	"fmt"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// invokeRPCRequest encodes the message as a request frame, sends it with the
// transport and returns the raw reply frame (length byte + payload).
// It also checks that the reply is a well formed frame that echoes the request length.
func invokeRPCRequest(msg []byte, transport transport.IRPCClientTransport) ([]byte, error) {
	// Encode the request
	req, err := codec.EncodeFrame(msg)
	if err != nil {
		return nil, err
	}

	// Send the request
	resp, err := transport.Send(req)
	if err != nil {
		return nil, err
	}
	Logger.Debugf("Received %d bytes: %q", len(resp), resp)

	// Validate the reply
	length, _, err := codec.DecodeFrame(resp)
	if err != nil {
		return resp, fmt.Errorf("invalid reply: %w", err)
	}
	if length != req[0] {
		return resp, fmt.Errorf("invalid reply: length %d does not match request length %d", length, req[0])
	}

	return resp, nil
}
