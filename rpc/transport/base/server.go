package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/revd/lib/pool"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/ValentinKolb/revd/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g. "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality:
// a single acceptor loop that dispatches connections to a bounded worker pool
type serverTransport struct {
	connector  IServerConnector
	handler    transport.ServerHandleFunc
	config     common.ServerConfig
	listener   net.Listener
	pool       *pool.Pool
	metrics    *common.ServerMetrics
	conns      *xsync.MapOf[uint64, net.Conn] // open connections (queued or in progress)
	nextConnID atomic.Uint64
	bufferPool *sync.Pool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, ...)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport for the given connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		metrics:   common.NewServerMetrics(),
		conns:     xsync.NewMapOf[uint64, net.Conn](),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, codec.MaxFrameLength)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	if t.listener != nil {
		return fmt.Errorf("%s transport is already listening on %s", t.connector.GetName(), t.listener.Addr())
	}

	config.MaxWorkers = common.ClampWorkers(config.MaxWorkers)
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener

	// The pool lives as long as the transport serves
	t.pool = pool.New(config.MaxWorkers, pool.WithPanicHandler(func(recovered any) {
		Logger.Errorf("Recovered from panic in connection worker: %v", recovered)
	}))
	t.metrics.RegisterGauges(t.pool.Running, t.pool.Queued, t.conns.Size)

	Logger.Infof("Listening (%s) on %s with %d workers", t.connector.GetName(), listener.Addr(), config.MaxWorkers)
	return nil
}

func (t *serverTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Metrics() *common.ServerMetrics {
	return t.metrics
}

func (t *serverTransport) Serve(ctx context.Context) error {
	if t.listener == nil {
		return fmt.Errorf("transport is not listening, call Listen first")
	}

	// Closing the listener is the only way to unblock Accept
	stop := context.AfterFunc(ctx, func() {
		if err := t.listener.Close(); err != nil {
			Logger.Debugf("Closing listener: %v", err)
		}
	})
	defer stop()

	var acceptErr error
	var backoff time.Duration

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				acceptErr = fmt.Errorf("listener closed unexpectedly: %w", err)
				break
			}

			// e.g. EMFILE: wait before trying again instead of spinning
			backoff = nextBackoff(backoff)
			Logger.Errorf("Accept error: %v; retrying in %s", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		t.dispatch(conn)
	}

	t.shutdown()
	return acceptErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// dispatch registers an accepted connection and submits it to the worker pool.
// Submission never blocks: if all workers are busy the connection waits in the
// pool queue.
func (t *serverTransport) dispatch(conn net.Conn) {
	id := t.nextConnID.Add(1)
	t.metrics.ConnectionAccepted()

	Logger.Infof("Received connection %d from %s", id, conn.RemoteAddr())

	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		Logger.Warningf("Failed to upgrade connection %d: %v", id, err)
	}

	t.conns.Store(id, conn)

	err := t.pool.Submit(func() {
		started := time.Now()
		status := t.handleConnection(conn)
		t.conns.Delete(id)
		t.metrics.ConnectionDone(status, started)
		Logger.Debugf("Connection %d finished with status %s (%d) after %s", id, status, status.Code(), time.Since(started))
	})
	if err != nil {
		Logger.Errorf("Failed to dispatch connection %d: %v", id, err)
		t.conns.Delete(id)
		_ = conn.Close()
	}
}

// shutdown drains the worker pool. If the drain does not finish within the
// grace period, all remaining connections are closed and the pool is stopped.
func (t *serverTransport) shutdown() {
	Logger.Infof("Shutting down, %d connections open, %d queued", t.conns.Size(), t.pool.Queued())

	if t.config.ShutdownGrace > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), t.config.ShutdownGrace)
		err := t.pool.Shutdown(ctx)
		cancel()
		if err == nil {
			Logger.Infof("All connections drained")
			return
		}
		Logger.Warningf("Graceful shutdown did not finish: %v", err)
	}

	closed := t.closeConnections()
	dropped := t.pool.Stop()
	Logger.Warningf("Forced shutdown: closed %d connections, dropped %d queued connections", closed, dropped)
}

// closeConnections closes every registered connection and returns their number
func (t *serverTransport) closeConnections() int {
	count := 0
	t.conns.Range(func(id uint64, conn net.Conn) bool {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			Logger.Debugf("Closing connection %d: %v", id, err)
		}
		t.conns.Delete(id)
		count++
		return true
	})
	return count
}

// nextBackoff doubles the accept retry delay between 5ms and 1s
func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	current *= 2
	if current > time.Second {
		return time.Second
	}
	return current
}
