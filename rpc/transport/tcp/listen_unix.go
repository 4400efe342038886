//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package tcp

import (
	"fmt"
	"golang.org/x/sys/unix"
	"net"
	"os"
	"strconv"
)

// listenTCP creates the listening socket by hand, because the net package
// always passes the system maximum as listen backlog. The socket is bound with
// SO_REUSEADDR and listen(2) is called with the configured backlog.
func listenTCP(host string, port uint16, backlog int) (net.Listener, error) {
	endpoint := net.JoinHostPort(host, strconv.Itoa(int(port)))

	sa, domain, err := sockaddr(host, port)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to bind %s: %w", endpoint, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to listen on %s: %w", endpoint, err)
	}

	// net.FileListener duplicates the descriptor, the file is closed afterwards
	f := os.NewFile(uintptr(fd), "tcp:"+endpoint)
	defer f.Close()

	listener, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener for %s: %w", endpoint, err)
	}
	return listener, nil
}

// sockaddr resolves host into a socket address and its address family
func sockaddr(host string, port uint16) (unix.Sockaddr, int, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, 0, fmt.Errorf("failed to resolve host %q: %v", host, err)
		}
		ip = ips[0]
	}

	if ip4 := ip.To4(); ip4 != nil {
		return &unix.SockaddrInet4{Port: int(port), Addr: [4]byte(ip4)}, unix.AF_INET, nil
	}

	sa := &unix.SockaddrInet6{Port: int(port)}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6, nil
}
