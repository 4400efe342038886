package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/ValentinKolb/revd/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// NewReverseServer creates a server that answers every request with the reversed payload.
//
// Usage:
//
//	s := server.NewReverseServer(
//		common.NewServerConfig(8080, 3),
//		tcp.NewTCPServerTransport(),
//	)
//
//	if err := s.ListenAndServe(ctx); err != nil {
//		panic(err)
//	}
func NewReverseServer(config common.ServerConfig, transport transport.IRPCServerTransport) *RPCServer {
	return NewRPCServer(config, transport, NewReverseServerAdapter())
}

// NewRPCServer creates a new RPC server that dispatches request payloads to the adapter
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	adapter IRPCServerAdapter,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	config.MaxWorkers = common.ClampWorkers(config.MaxWorkers)

	return &RPCServer{
		config:    config,
		transport: transport,
		adapter:   adapter,
	}
}

// RPCServer connects an adapter with a server transport and optionally
// serves the transport metrics over http
type RPCServer struct {
	config          common.ServerConfig
	transport       transport.IRPCServerTransport
	adapter         IRPCServerAdapter
	metricsListener net.Listener
}

// Config returns the effective configuration of the server
func (s *RPCServer) Config() common.ServerConfig {
	return s.config
}

// Listen initializes the loggers, registers the adapter and binds the
// listening socket (and the metrics endpoint if configured).
// Bind failures are returned and should be treated as fatal.
func (s *RPCServer) Listen() error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server (%s adapter)", s.adapter.Name())
	Logger.Infof(s.config.String())

	s.transport.RegisterHandler(s.adapter.Handle)

	if err := s.transport.Listen(s.config); err != nil {
		return err
	}

	if s.config.MetricsEndpoint != "" {
		l, err := net.Listen("tcp", s.config.MetricsEndpoint)
		if err != nil {
			return fmt.Errorf("failed to bind metrics endpoint %s: %w", s.config.MetricsEndpoint, err)
		}
		s.metricsListener = l
		Logger.Infof("Serving metrics on http://%s/metrics", l.Addr())
	}

	return nil
}

// Serve accepts connections until ctx is cancelled, then shuts the server down.
// Listen must have been called before.
func (s *RPCServer) Serve(ctx context.Context) error {
	if s.metricsListener != nil {
		httpServer := &http.Server{
			Handler:           s.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			if err := httpServer.Serve(s.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("Metrics endpoint failed: %v", err)
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				Logger.Warningf("Failed to stop metrics endpoint: %v", err)
			}
		}()
	}

	err := s.transport.Serve(ctx)
	Logger.Infof("Server stopped (%d connections accepted)", s.transport.Metrics().Accepted())
	return err
}

// ListenAndServe calls Listen and then Serve
func (s *RPCServer) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Addr returns the address of the listening socket (nil before Listen)
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// MetricsAddr returns the address of the metrics endpoint (nil if disabled)
func (s *RPCServer) MetricsAddr() net.Addr {
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

// Metrics returns the connection metrics of the server
func (s *RPCServer) Metrics() *common.ServerMetrics {
	return s.transport.Metrics()
}

// metricsHandler serves the prometheus metrics and the pprof endpoints
func (s *RPCServer) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.transport.Metrics().WritePrometheus(w, true)
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
