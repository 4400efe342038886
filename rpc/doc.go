// Package rpc provides the network layer of revd: a one frame per connection
// request/response protocol with a reversing server and a matching client.
//
// The package is organized into several subpackages:
//
//   - codec: The wire format. A frame is one length byte L followed by exactly
//     L payload bytes (at most 255).
//
//   - common: Configuration structures, the connection Status, logging and
//     server metrics shared by all other packages.
//
//   - transport: Network communication abstractions. The base transport owns
//     the acceptor loop, the worker pool and the connection handler, the tcp
//     package provides the socket specific parts.
//
//   - server: Connects the reverse adapter with a server transport and serves
//     the metrics endpoint.
//
//   - client: The client sending one message per connection.
package rpc
