// Package tcp implements the TCP transport of revd. It provides concrete
// implementations of the base package's connector interfaces; accepting,
// dispatching and the wire protocol are inherited from package base.
//
// Key Components:
//
//   - serverConnector: creates the listening socket. On unix platforms the
//     socket is created through golang.org/x/sys/unix so the configured listen
//     backlog (0 by default) is honoured, the net package would always use the
//     system maximum. Accepted connections get the configured TCP options.
//
//   - clientConnector: dials the server with a timeout and applies the same
//     TCP options to the client side.
package tcp
