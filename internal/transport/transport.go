// Package transport defines the byte-stream endpoint the offload protocol
// talks through and the guard that serializes access to it.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTimeout = errors.New("read deadline exceeded")
	ErrClosed  = errors.New("port closed")
)

// TimeoutError reports how far a bounded read got before its deadline.
type TimeoutError struct {
	Received int
	Expected int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("read_exact timeout: got %d/%d bytes", e.Received, e.Expected)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Port is a half-duplex byte-stream endpoint.
//
// ReadExact blocks until n bytes are available or ctx is done. On
// deadline it returns the bytes it consumed together with a
// *TimeoutError; those bytes are gone from the stream.
// Reset discards any unread input buffered by the endpoint.
type Port interface {
	Write(p []byte) (int, error)
	ReadExact(ctx context.Context, n int) ([]byte, error)
	Reset() error
	Close() error
}

// WriteAll writes p in full, looping over short writes.
func WriteAll(p Port, b []byte) error {
	for len(b) > 0 {
		n, err := p.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("transport: short write with %d bytes left", len(b))
		}
		b = b[n:]
	}
	return nil
}
