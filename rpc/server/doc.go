// Package server implements the reverse server. It connects an adapter, which
// maps a request payload to a reply payload, with a server transport that owns
// the acceptor loop, the worker pool and the wire protocol.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface for the request handling logic. The transport
//     calls Handle with the payload of every request frame.
//
//   - NewReverseServerAdapter: The adapter that reverses the payload in place.
//
//   - NewReverseServer / NewRPCServer: Factory functions creating a configured
//     server for a transport.
//
// Usage Example:
//
//	config := common.NewServerConfig(8080, 3)
//	config.MetricsEndpoint = "127.0.0.1:9100"
//
//	s := server.NewReverseServer(config, tcp.NewTCPServerTransport())
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	if err := s.ListenAndServe(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// When a metrics endpoint is configured, the server exposes the transport
// metrics in the prometheus text format on /metrics, next to the pprof
// handlers under /debug/pprof/.
//
// Thread Safety:
//
//	Listen and Serve must be called once, in this order. Handle may be called
//	concurrently by up to MaxWorkers workers, each with its own request buffer.
package server
