package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/ValentinKolb/revd/rpc/transport"
	"math/rand"
	"net"
	"sync/atomic"
	"time"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g. "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

var ErrTransportClosed = errors.New("transport: client transport is closed")

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality.
// The protocol allows one frame per connection, so every Send dials a new connection.
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	connected atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, ...)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if _, _, err := net.SplitHostPort(config.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", config.Endpoint, err)
	}

	t.config = config
	t.connected.Store(true)
	return nil
}

func (t *clientTransport) Send(frame []byte) ([]byte, error) {
	if !t.connected.Load() {
		return nil, ErrTransportClosed
	}

	// We always try at least once, and up to RetryCount times
	maxRetries := t.config.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		resp, err := t.exchange(frame)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.connected.Store(false)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// exchange dials the endpoint, writes the frame and reads the reply frame
func (t *clientTransport) exchange(frame []byte) ([]byte, error) {
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	conn, err := t.connector.Connect(t.config.Endpoint, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.config.Endpoint, err)
	}
	defer conn.Close()

	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", t.config.Endpoint, err)
	}

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	// the request is sent with a single write
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	length, payload, err := codec.ReadFrame(conn, nil)
	if err != nil {
		if errors.Is(err, codec.ErrEmptyFrame) {
			return nil, fmt.Errorf("server closed the connection without reply: %w", err)
		}
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	resp := make([]byte, 0, codec.HeaderLength+len(payload))
	resp = append(resp, length)
	resp = append(resp, payload...)
	return resp, nil
}
