package tcp

import (
	"bytes"
	"context"
	"github.com/ValentinKolb/revd/lib/reverse"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/common"
	"github.com/ValentinKolb/revd/rpc/transport"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func reverseHandler(req []byte) []byte {
	reverse.InPlace(req)
	return req
}

func testConfig(workers int) common.ServerConfig {
	config := common.NewServerConfig(0, workers)
	config.IdleTimeout = 5 * time.Second
	config.ShutdownGrace = time.Second
	return config
}

// testServer is a served transport, done is closed when Serve returned
type testServer struct {
	transport.IRPCServerTransport
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// startServer binds a server on a random loopback port and serves until the test ends
func startServer(t *testing.T, config common.ServerConfig, handler transport.ServerHandleFunc) *testServer {
	t.Helper()

	srv := NewTCPServerTransport()
	srv.RegisterHandler(handler)
	if err := srv.Listen(config); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{IRPCServerTransport: srv, cancel: cancel, done: make(chan struct{})}
	go func() {
		ts.err = srv.Serve(ctx)
		close(ts.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
			t.Errorf("server did not shut down")
		}
	})
	return ts
}

// exchange writes raw bytes and reads everything until the server closes the connection
func exchange(t *testing.T, addr net.Addr, req []byte) []byte {
	t.Helper()
	resp, err := tryExchange(addr, req)
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	return resp
}

// tryExchange is exchange for use outside the test goroutine
func tryExchange(addr net.Addr, req []byte) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	if _, err := conn.Write(req); err != nil {
		return nil, err
	}
	return io.ReadAll(conn)
}

// waitFor polls cond until it holds or the timeout expires
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --------------------------------------------------------------------------
// Protocol
// --------------------------------------------------------------------------

func TestReverseCat(t *testing.T) {
	srv := startServer(t, testConfig(3), reverseHandler)

	resp := exchange(t, srv.Addr(), []byte{3, 'c', 'a', 't'})
	if want := []byte{3, 't', 'a', 'c'}; !bytes.Equal(resp, want) {
		t.Fatalf("got %v, want %v", resp, want)
	}

	waitFor(t, time.Second, "status ok", func() bool {
		return srv.Metrics().StatusCount(common.StatusOK) == 1
	})
}

func TestReverseEmptyPayload(t *testing.T) {
	srv := startServer(t, testConfig(3), reverseHandler)

	resp := exchange(t, srv.Addr(), []byte{0})
	if want := []byte{0}; !bytes.Equal(resp, want) {
		t.Fatalf("got %v, want %v", resp, want)
	}
}

func TestReverseMaxPayload(t *testing.T) {
	srv := startServer(t, testConfig(3), reverseHandler)

	payload := bytes.Repeat([]byte("ab"), 128)[:codec.MaxPayloadLength]
	req, err := codec.EncodeFrame(payload)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	resp := exchange(t, srv.Addr(), req)
	if len(resp) != codec.MaxFrameLength {
		t.Fatalf("expected %d bytes, got %d", codec.MaxFrameLength, len(resp))
	}
	if resp[0] != 255 || !bytes.Equal(resp[1:], reverse.Reverse(payload)) {
		t.Fatalf("unexpected reply %q", resp)
	}
}

// TestFragmentedRequest sends the payload in several writes
func TestFragmentedRequest(t *testing.T) {
	srv := startServer(t, testConfig(3), reverseHandler)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	for _, part := range [][]byte{{5}, []byte("he"), []byte("llo")} {
		if _, err := conn.Write(part); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if want := []byte{5, 'o', 'l', 'l', 'e', 'h'}; !bytes.Equal(resp, want) {
		t.Fatalf("got %q, want %q", resp, want)
	}
}

// --------------------------------------------------------------------------
// Connection failures
// --------------------------------------------------------------------------

func TestEmptyConnection(t *testing.T) {
	srv := startServer(t, testConfig(3), reverseHandler)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	_ = conn.Close()

	waitFor(t, 2*time.Second, "empty read status", func() bool {
		return srv.Metrics().StatusCount(common.StatusEmptyRead) == 1
	})

	// the server keeps serving
	resp := exchange(t, srv.Addr(), []byte{3, 'c', 'a', 't'})
	if want := []byte{3, 't', 'a', 'c'}; !bytes.Equal(resp, want) {
		t.Fatalf("got %v, want %v", resp, want)
	}
}

func TestIdleTimeout(t *testing.T) {
	config := testConfig(1)
	config.IdleTimeout = 100 * time.Millisecond
	srv := startServer(t, config, reverseHandler)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	start := time.Now()
	n, err := conn.Read(make([]byte, 1))
	if n != 0 || err == nil {
		t.Fatalf("expected the server to close the connection, got n=%d err=%v", n, err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("idle connection was closed too late (%s)", elapsed)
	}

	waitFor(t, time.Second, "timeout status", func() bool {
		return srv.Metrics().StatusCount(common.StatusTimeout) == 1
	})

	// the single worker slot is free again
	resp := exchange(t, srv.Addr(), []byte{2, 'o', 'k'})
	if want := []byte{2, 'k', 'o'}; !bytes.Equal(resp, want) {
		t.Fatalf("got %q, want %q", resp, want)
	}
}

func TestShortFrameIsProtocolError(t *testing.T) {
	srv := startServer(t, testConfig(3), reverseHandler)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if _, err := conn.Write([]byte{5, 'a'}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_ = conn.(*net.TCPConn).CloseWrite()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, _ := io.ReadAll(conn)
	_ = conn.Close()
	if len(resp) != 0 {
		t.Fatalf("expected no reply, got %v", resp)
	}

	waitFor(t, time.Second, "protocol error status", func() bool {
		return srv.Metrics().StatusCount(common.StatusProtocolError) == 1
	})
}

func TestHandlerPanicIsolated(t *testing.T) {
	handler := func(req []byte) []byte {
		if string(req) == "boom" {
			panic("boom")
		}
		return reverseHandler(req)
	}
	srv := startServer(t, testConfig(1), handler)

	if resp := exchange(t, srv.Addr(), []byte{4, 'b', 'o', 'o', 'm'}); len(resp) != 0 {
		t.Fatalf("expected no reply for panicking handler, got %v", resp)
	}

	resp := exchange(t, srv.Addr(), []byte{2, 'h', 'i'})
	if want := []byte{2, 'i', 'h'}; !bytes.Equal(resp, want) {
		t.Fatalf("got %q, want %q", resp, want)
	}

	waitFor(t, time.Second, "panic status", func() bool {
		return srv.Metrics().StatusCount(common.StatusHandlerPanic) == 1
	})
}

// --------------------------------------------------------------------------
// Concurrency
// --------------------------------------------------------------------------

// TestMoreClientsThanWorkers connects three clients to a server with two workers
func TestMoreClientsThanWorkers(t *testing.T) {
	srv := startServer(t, testConfig(2), reverseHandler)

	messages := []string{"one", "two", "three"}
	var wg sync.WaitGroup
	results := make([][]byte, len(messages))
	for i, msg := range messages {
		wg.Add(1)
		go func(i int, msg string) {
			defer wg.Done()
			req, _ := codec.EncodeFrame([]byte(msg))
			resp, err := tryExchange(srv.Addr(), req)
			if err != nil {
				t.Errorf("client %d: %v", i, err)
			}
			results[i] = resp
		}(i, msg)
	}
	wg.Wait()

	for i, msg := range messages {
		want, _ := codec.EncodeFrame(reverse.Reverse([]byte(msg)))
		if !bytes.Equal(results[i], want) {
			t.Errorf("client %d: got %q, want %q", i, results[i], want)
		}
	}
}

// TestWorkerBound checks that no more than MaxWorkers handlers run at once
// and that excess connections wait in the queue instead of being rejected
func TestWorkerBound(t *testing.T) {
	const workers = 2
	const clients = 5

	var running, peak atomic.Int32
	release := make(chan struct{})
	handler := func(req []byte) []byte {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return reverseHandler(req)
	}

	config := testConfig(workers)
	config.Backlog = clients
	srv := startServer(t, config, handler)

	var wg sync.WaitGroup
	results := make([][]byte, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := tryExchange(srv.Addr(), []byte{1, byte('a' + i)})
			if err != nil {
				t.Errorf("client %d: %v", i, err)
			}
			results[i] = resp
		}(i)
	}

	waitFor(t, 2*time.Second, "all connections accepted", func() bool {
		return srv.Metrics().Accepted() == clients
	})
	waitFor(t, 2*time.Second, "workers busy", func() bool {
		return running.Load() == workers
	})

	// give a third handler the chance to start if the bound were broken
	time.Sleep(50 * time.Millisecond)
	if p := peak.Load(); p != workers {
		t.Fatalf("expected peak concurrency %d, got %d", workers, p)
	}

	close(release)
	wg.Wait()

	for i := 0; i < clients; i++ {
		if want := []byte{1, byte('a' + i)}; !bytes.Equal(results[i], want) {
			t.Errorf("client %d: got %v, want %v", i, results[i], want)
		}
	}
	if p := peak.Load(); p > workers {
		t.Fatalf("peak concurrency %d exceeds %d workers", p, workers)
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func TestBindFailure(t *testing.T) {
	srv := startServer(t, testConfig(1), reverseHandler)
	port := uint16(srv.Addr().(*net.TCPAddr).Port)

	second := NewTCPServerTransport()
	second.RegisterHandler(reverseHandler)
	config := testConfig(1)
	config.Port = port
	if err := second.Listen(config); err == nil {
		t.Fatalf("expected bind failure on port %d", port)
	}
}

func TestListenWithoutHandler(t *testing.T) {
	srv := NewTCPServerTransport()
	if err := srv.Listen(testConfig(1)); err == nil {
		t.Fatalf("expected error without handler")
	}
}

func TestServeWithoutListen(t *testing.T) {
	srv := NewTCPServerTransport()
	srv.RegisterHandler(reverseHandler)
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatalf("expected error when serving before Listen")
	}
	if srv.Addr() != nil {
		t.Fatalf("expected nil address before Listen")
	}
}

func TestListenTwice(t *testing.T) {
	srv := startServer(t, testConfig(1), reverseHandler)
	if err := srv.Listen(testConfig(1)); err == nil {
		t.Fatalf("expected error on second Listen")
	}
}

// TestShutdownClosesIdleConnections checks that a cancelled server stops
// accepting and force closes connections after the grace period
func TestShutdownClosesIdleConnections(t *testing.T) {
	config := testConfig(1)
	config.IdleTimeout = 0
	config.ShutdownGrace = 50 * time.Millisecond
	srv := startServer(t, config, reverseHandler)

	busy, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer busy.Close()
	queued, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer queued.Close()

	waitFor(t, 2*time.Second, "connections accepted", func() bool {
		return srv.Metrics().Accepted() == 2
	})

	srv.cancel()
	select {
	case <-srv.done:
		if srv.err != nil {
			t.Fatalf("Serve returned error: %v", srv.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}

	for _, conn := range []net.Conn{busy, queued} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if n, err := conn.Read(make([]byte, 1)); n != 0 || err == nil {
			t.Fatalf("expected closed connection, got n=%d err=%v", n, err)
		}
	}

	if _, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second); err == nil {
		t.Fatalf("expected dial to fail after shutdown")
	}
}

// TestShutdownDrainsInFlight checks that an in-flight request still gets its reply
func TestShutdownDrainsInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	handler := func(req []byte) []byte {
		close(started)
		<-release
		return reverseHandler(req)
	}

	config := testConfig(1)
	config.ShutdownGrace = 5 * time.Second
	srv := startServer(t, config, handler)

	reply := make(chan []byte, 1)
	go func() {
		resp, _ := tryExchange(srv.Addr(), []byte{2, 'g', 'o'})
		reply <- resp
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not start")
	}

	srv.cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case resp := <-reply:
		if want := []byte{2, 'o', 'g'}; !bytes.Equal(resp, want) {
			t.Fatalf("got %q, want %q", resp, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no reply from draining server")
	}

	select {
	case <-srv.done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not return")
	}
}

// --------------------------------------------------------------------------
// Client transport
// --------------------------------------------------------------------------

func TestClientTransportSend(t *testing.T) {
	srv := startServer(t, testConfig(2), reverseHandler)

	client := NewTCPClientTransport()
	err := client.Connect(common.ClientConfig{
		Endpoint:      srv.Addr().String(),
		TimeoutSecond: 5,
		RetryCount:    1,
		TCPConf:       common.TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	resp, err := client.Send([]byte{3, 'c', 'a', 't'})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if want := []byte{3, 't', 'a', 'c'}; !bytes.Equal(resp, want) {
		t.Fatalf("got %v, want %v", resp, want)
	}
}

func TestClientTransportRetriesFail(t *testing.T) {
	// reserve a port and close it again, nothing listens there afterwards
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	client := NewTCPClientTransport()
	if err := client.Connect(common.ClientConfig{Endpoint: addr, TimeoutSecond: 1, RetryCount: 2, TCPConf: common.TCPConf{TCPLingerSec: -1}}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if _, err := client.Send([]byte{1, 'a'}); err == nil {
		t.Fatalf("expected send to fail")
	}
}

func TestClientTransportInvalidEndpoint(t *testing.T) {
	client := NewTCPClientTransport()
	if err := client.Connect(common.ClientConfig{Endpoint: "no-port"}); err == nil {
		t.Fatalf("expected error for endpoint without port")
	}
	if err := client.Connect(common.ClientConfig{}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
