// Package base provides the protocol-independent core of the revd transports.
// Concrete transports (see package tcp) only supply a connector that creates
// listeners and connections; accepting, dispatching and the per-connection
// protocol live here.
//
// Server side:
//
//   - A single acceptor goroutine (Serve) blocks on Accept. Every accepted
//     connection is registered, counted and submitted to a worker pool with
//     config.MaxWorkers workers. Submission never blocks the acceptor, excess
//     connections wait in the pool's unbounded queue.
//
//   - Each connection is handled by exactly one worker (handleConnection):
//     AWAITING_DATA -> PROCESSING -> RESPONDING -> CLOSED, with TIMED_OUT
//     reachable from AWAITING_DATA. The read deadline implements the idle
//     timeout. Read buffers come from a sync.Pool.
//
//   - Per-connection failures become a common.Status, they are logged and
//     counted but never reach the acceptor or other workers.
//
//   - Cancelling the Serve context closes the listener and drains the pool
//     for config.ShutdownGrace. Connections still open afterwards are closed
//     through the connection registry and the pool is stopped.
//
// Client side:
//
//   - Every Send dials a new connection, writes one frame with a single write
//     and reads one reply frame. Failed attempts are retried with exponential
//     backoff and jitter.
package base
