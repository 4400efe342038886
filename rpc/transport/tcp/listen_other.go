//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package tcp

import (
	"fmt"
	"github.com/ValentinKolb/revd/rpc/transport/base"
	"net"
	"strconv"
)

// listenTCP falls back to the net package; the backlog can not be set here
func listenTCP(host string, port uint16, backlog int) (net.Listener, error) {
	endpoint := net.JoinHostPort(host, strconv.Itoa(int(port)))

	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}

	base.Logger.Debugf("Listen backlog %d ignored on this platform", backlog)
	return listener, nil
}
