// Package reverse implements the message transformation applied by the server:
// a byte-order reversal of the payload. The transformation is pure and length
// preserving, so a reply frame can reuse the length byte of the request frame.
package reverse

// Reverse returns a new slice holding the bytes of p in reverse order.
// The input is not modified. Reverse(nil) returns an empty, non-nil slice.
func Reverse(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[len(p)-1-i] = b
	}
	return out
}

// InPlace reverses p in place. It is used on pooled buffers where allocating
// a second slice per request is not needed.
func InPlace(p []byte) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}
