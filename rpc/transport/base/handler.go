package base

import (
	"errors"
	"github.com/ValentinKolb/revd/rpc/codec"
	"github.com/ValentinKolb/revd/rpc/common"
	"net"
	"os"
	"time"
)

// connState is the state of a connection inside handleConnection
type connState uint8

const (
	stateAwaitingData connState = iota
	stateProcessing
	stateResponding
	stateClosed
	stateTimedOut
)

// String returns the string representation of the state
func (s connState) String() string {
	switch s {
	case stateAwaitingData:
		return "AWAITING_DATA"
	case stateProcessing:
		return "PROCESSING"
	case stateResponding:
		return "RESPONDING"
	case stateClosed:
		return "CLOSED"
	case stateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// handleConnection runs the protocol for one connection: read one frame,
// transform the payload, write one frame, close. The connection is closed on
// every path and no error leaves this function, failures are reported as Status.
func (t *serverTransport) handleConnection(conn net.Conn) (status common.Status) {
	remote := conn.RemoteAddr()
	state := stateAwaitingData

	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Handler panic for %s in state %s: %v", remote, state, r)
			status = common.StatusHandlerPanic
		}

		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			Logger.Debugf("Closing connection from %s: %v", remote, err)
		}

		if status == common.StatusTimeout {
			state = stateTimedOut
		} else {
			state = stateClosed
		}
		Logger.Debugf("Connection from %s is %s (status %s)", remote, state, status)
	}()

	// AWAITING_DATA: one frame within the idle timeout
	if t.config.IdleTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(t.config.IdleTimeout)); err != nil {
			Logger.Errorf("Failed to set read deadline for %s: %v", remote, err)
			return common.StatusProtocolError
		}
	}

	buf := t.bufferPool.Get().([]byte)
	defer t.bufferPool.Put(buf)

	length, payload, err := codec.ReadFrame(conn, buf)
	if err != nil {
		return classifyReadError(remote, err)
	}
	Logger.Debugf("Received message from %s (%d bytes): %q", remote, length, payload)

	// PROCESSING
	state = stateProcessing
	resp := t.handler(payload)

	// RESPONDING: single write, failures are reported and not retried
	state = stateResponding
	if t.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout)); err != nil {
			Logger.Errorf("Failed to set write deadline for %s: %v", remote, err)
			return common.StatusSendFailed
		}
	}

	if err := codec.WriteFrame(conn, length, resp); err != nil {
		if errors.Is(err, codec.ErrLengthMismatch) {
			Logger.Errorf("Invalid reply for %s: %v", remote, err)
			return common.StatusProtocolError
		}
		Logger.Warningf("Failed to send reply to %s: %v", remote, err)
		return common.StatusSendFailed
	}
	Logger.Debugf("Sent reply to %s (%d bytes): %q", remote, length, resp)

	return common.StatusOK
}

// classifyReadError maps a read failure to the connection status
func classifyReadError(remote net.Addr, err error) common.Status {
	switch {
	case errors.Is(err, codec.ErrEmptyFrame):
		Logger.Infof("Connection from %s closed before sending data", remote)
		return common.StatusEmptyRead
	case isTimeout(err):
		Logger.Warningf("Connection from %s timed out: %v", remote, err)
		return common.StatusTimeout
	default:
		Logger.Warningf("Failed to read frame from %s: %v", remote, err)
		return common.StatusProtocolError
	}
}

// isTimeout reports whether err is a deadline / timeout error
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
