// Package transport defines the interfaces for the network layer of revd.
// It provides a common contract for transport implementations, so the server
// and the client do not depend on a concrete network protocol.
//
// Key Components:
//
//   - IRPCServerTransport: binds a listening socket, accepts connections and
//     hands every connection to a bounded worker pool. Each connection carries
//     exactly one request frame and one reply frame.
//
//   - IRPCClientTransport: sends one request frame per connection and returns
//     the raw reply frame.
//
//   - ServerHandleFunc: callback that turns a request payload into a reply payload.
package transport
