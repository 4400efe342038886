// Package common provides the data structures and utilities shared by the
// server, the client and the command line tools of revd.
//
// The package focuses on:
//   - Configuration structures for client and server components
//   - The Status type reported for every handled connection
//   - Custom logging implementation integrated with Dragonboat's logger facade
//   - Server metrics based on VictoriaMetrics
//
// Key Components:
//
//   - ServerConfig: Immutable server configuration (endpoint, worker count,
//     timeouts, socket options). NewServerConfig applies all defaults and clamps
//     the worker count to MaxWorkersCap. Limits are named constants instead of
//     mutable package state.
//
//   - ClientConfig: Configuration for the client (endpoint, timeout, retries).
//
//   - Status: Result of one connection (ok, empty read, timeout, protocol error,
//     send failure, handler panic). Statuses never propagate past the worker pool.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's logger
//     package, so every package can hold a named logger obtained with
//     logger.GetLogger and still share one output format.
//
//   - ServerMetrics: Per-server metrics set with connection counters per status,
//     a duration histogram and gauges for the worker pool.
package common
