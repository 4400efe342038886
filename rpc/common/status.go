package common

// Status is the result of handling one connection. Every status is terminal
// for its connection and none of them is fatal for the server.
type Status uint8

const (
	// StatusOK means a reply frame was sent
	StatusOK Status = iota
	// StatusEmptyRead means the peer closed the connection before sending anything
	StatusEmptyRead
	// StatusTimeout means no complete frame arrived within the idle timeout
	StatusTimeout
	// StatusProtocolError means the request could not be decoded or the reply not encoded
	StatusProtocolError
	// StatusSendFailed means writing the reply failed
	StatusSendFailed
	// StatusHandlerPanic means the request handler panicked
	StatusHandlerPanic
)

// AllStatuses lists every status, e.g. to pre-register metrics
var AllStatuses = []Status{
	StatusOK,
	StatusEmptyRead,
	StatusTimeout,
	StatusProtocolError,
	StatusSendFailed,
	StatusHandlerPanic,
}

// Code returns the integer status code (0 = success, 1 = empty read, ...)
func (s Status) Code() int {
	return int(s)
}

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmptyRead:
		return "empty"
	case StatusTimeout:
		return "timeout"
	case StatusProtocolError:
		return "protocol_error"
	case StatusSendFailed:
		return "send_failed"
	case StatusHandlerPanic:
		return "handler_panic"
	default:
		return "unknown"
	}
}
