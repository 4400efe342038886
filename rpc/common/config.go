package common

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Limits and defaults
// --------------------------------------------------------------------------

const (
	// DefaultHost is the address the server binds to (loopback only)
	DefaultHost = "127.0.0.1"
	// DefaultPort is used when no port is given
	DefaultPort uint16 = 8080
	// DefaultMaxWorkers is used when no worker count is given
	DefaultMaxWorkers = 3
	// MaxWorkersCap is the hard upper bound for the worker count, larger values are clamped
	MaxWorkersCap = 6
	// DefaultIdleTimeout is the time a connection may stay silent before it is closed
	DefaultIdleTimeout = 60 * time.Second
	// DefaultBacklog is the listen backlog (no queued but unaccepted connections)
	DefaultBacklog = 0
	// DefaultShutdownGrace is how long a shutdown waits for in-flight connections
	DefaultShutdownGrace = 5 * time.Second
	// DefaultLogLevel is the log level of all loggers
	DefaultLogLevel = "info"
)

// ClampWorkers bounds a worker count to [1, MaxWorkersCap]
func ClampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkersCap {
		return MaxWorkersCap
	}
	return n
}

// --------------------------------------------------------------------------
// Socket options (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf holds socket buffer sizes in bytes (0 keeps the OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific connection options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative keeps the OS default
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of the reverse server.
// It is created once at startup and passed by value afterwards.
type ServerConfig struct {
	// listening socket
	Host    string
	Port    uint16
	Backlog int

	// worker pool
	MaxWorkers int

	// per connection timeouts (0 disables the timeout)
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownGrace bounds the graceful drain before connections are force closed
	ShutdownGrace time.Duration

	// connection tuning
	SocketConf SocketConf
	TCPConf    TCPConf

	// MetricsEndpoint is the address of the metrics http endpoint (empty disables it)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// NewServerConfig returns a configuration with all defaults applied.
// maxWorkers is clamped to [1, MaxWorkersCap].
func NewServerConfig(port uint16, maxWorkers int) ServerConfig {
	return ServerConfig{
		Host:          DefaultHost,
		Port:          port,
		Backlog:       DefaultBacklog,
		MaxWorkers:    ClampWorkers(maxWorkers),
		IdleTimeout:   DefaultIdleTimeout,
		ShutdownGrace: DefaultShutdownGrace,
		TCPConf: TCPConf{
			TCPNoDelay:   true,
			TCPLingerSec: -1,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Endpoint returns the host:port the server listens on
func (c ServerConfig) Endpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// String returns a formatted string representation of the configuration
func (c ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Reverse Server")
	addField("Endpoint", c.Endpoint())
	addField("Backlog", strconv.Itoa(c.Backlog))
	addField("Max Workers", fmt.Sprintf("%d (cap %d)", c.MaxWorkers, MaxWorkersCap))

	addSection("Timeouts")
	addField("Idle Timeout", durationOrNone(c.IdleTimeout))
	addField("Write Timeout", durationOrNone(c.WriteTimeout))
	addField("Shutdown Grace", durationOrNone(c.ShutdownGrace))

	addSection("TCP")
	addField("No Delay", fmt.Sprintf("%t", c.TCPConf.TCPNoDelay))
	addField("Keep Alive", fmt.Sprintf("%d sec", c.TCPConf.TCPKeepAliveSec))
	addField("Linger", fmt.Sprintf("%d sec", c.TCPConf.TCPLingerSec))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.SocketConf.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.SocketConf.WriteBufferSize))

	addSection("Observability")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	} else {
		addField("Metrics Endpoint", "disabled")
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint      string
	TimeoutSecond int
	RetryCount    int
	SocketConf    SocketConf
	TCPConf       TCPConf
}

// String returns a formatted string representation of the client configuration
func (c ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("No Delay", fmt.Sprintf("%t", c.TCPConf.TCPNoDelay))

	return sb.String()
}

func durationOrNone(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
