// Package codec implements the wire format of the reverse service.
//
// Every message exchanged over a connection is a single frame:
//
//	+--------+-----------------------+
//	| L (1B) | payload (L bytes)     |
//	+--------+-----------------------+
//
// L is an unsigned byte, so a payload holds at most MaxPayloadLength (255)
// bytes and a frame at most MaxFrameLength (256) bytes. A frame is well-formed
// only if exactly L payload bytes follow the length byte.
//
// The reply to a request reuses the request's length byte unchanged. The
// server transformation preserves length, so EncodeFrameWithLength rejects
// payloads whose size differs from the echoed length.
//
// Two decoding entry points exist:
//
//   - DecodeFrame works on bytes that were already received (for example the
//     raw response collected by the client).
//
//   - ReadFrame reads a frame from a stream. It reads the length byte first and
//     then loops until exactly L payload bytes have arrived, so frames split
//     across several TCP segments are assembled correctly.
package codec
