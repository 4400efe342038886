package codec

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderLength is the size of the length prefix
	HeaderLength = 1
	// MaxPayloadLength is the largest payload a single length byte can describe
	MaxPayloadLength = 255
	// MaxFrameLength is the size of the largest possible frame (length byte + payload)
	MaxFrameLength = HeaderLength + MaxPayloadLength
)

var (
	ErrEmptyFrame      = errors.New("codec: no data received")
	ErrShortFrame      = errors.New("codec: payload shorter than length byte")
	ErrFrameOverrun    = errors.New("codec: payload longer than length byte")
	ErrFrameTooLarge   = errors.New("codec: frame exceeds maximum frame length")
	ErrPayloadTooLarge = errors.New("codec: payload exceeds maximum payload length")
	ErrLengthMismatch  = errors.New("codec: payload length differs from length byte")
)

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// DecodeFrame splits raw into the length byte and the payload.
// The returned payload aliases raw.
func DecodeFrame(raw []byte) (byte, []byte, error) {
	if len(raw) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	if len(raw) > MaxFrameLength {
		return 0, nil, ErrFrameTooLarge
	}

	length := raw[0]
	payload := raw[HeaderLength:]

	switch {
	case len(payload) < int(length):
		return length, nil, fmt.Errorf("%w: want %d bytes, got %d", ErrShortFrame, length, len(payload))
	case len(payload) > int(length):
		return length, nil, fmt.Errorf("%w: want %d bytes, got %d", ErrFrameOverrun, length, len(payload))
	}

	return length, payload, nil
}

// ReadFrame reads one frame from r.
//
// buf is used as scratch space and must hold at least MaxFrameLength bytes,
// otherwise a new buffer is allocated. The returned payload aliases buf.
//
// If r reports EOF before the length byte arrived, ErrEmptyFrame is returned.
// If the stream ends before L payload bytes were read, the error wraps
// ErrShortFrame. Any other read error (e.g. a deadline) is returned as is.
func ReadFrame(r io.Reader, buf []byte) (byte, []byte, error) {
	if len(buf) < MaxFrameLength {
		buf = make([]byte, MaxFrameLength)
	}

	// read the length byte
	if _, err := io.ReadFull(r, buf[:HeaderLength]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, ErrEmptyFrame
		}
		return 0, nil, err
	}

	length := buf[0]
	payload := buf[HeaderLength : HeaderLength+int(length)]

	// read exactly length bytes, looping over short reads
	if n, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return length, nil, fmt.Errorf("%w: want %d bytes, got %d", ErrShortFrame, length, n)
		}
		return length, nil, err
	}

	return length, payload, nil
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// EncodeFrame builds a frame whose length byte is len(payload)
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, ErrPayloadTooLarge
	}
	return EncodeFrameWithLength(byte(len(payload)), payload)
}

// EncodeFrameWithLength builds a frame that carries the given length byte.
// The reply of the server echoes the request's length byte this way.
func EncodeFrameWithLength(length byte, payload []byte) ([]byte, error) {
	if len(payload) != int(length) {
		return nil, fmt.Errorf("%w: length byte %d, payload %d bytes", ErrLengthMismatch, length, len(payload))
	}

	frame := make([]byte, HeaderLength+len(payload))
	frame[0] = length
	copy(frame[HeaderLength:], payload)
	return frame, nil
}

// WriteFrame encodes the frame and writes it with a single Write call.
// Short writes are reported as io.ErrShortWrite and are not retried.
func WriteFrame(w io.Writer, length byte, payload []byte) error {
	frame, err := EncodeFrameWithLength(length, payload)
	if err != nil {
		return err
	}

	n, err := w.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}
