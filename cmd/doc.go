// Package cmd implements the command-line interface of revd. It provides a
// hierarchical command structure for running the reverse server and for
// talking to it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the reverse server (revd serve [port] [max_worker_count])
//   - send: Sends one message and prints the raw response (revd send <port> <message>)
//   - perf: Load test with latency percentiles (revd perf <port>)
//   - util: Shared utilities for argument parsing, exit codes and configuration (internal use)
//
// Exit codes: 0 success, 1 invalid argument, 2 missing arguments,
// 3 server error (e.g. port in use), 4 client error (e.g. server not reachable).
//
// See revd -help for a list of all commands.
package cmd
