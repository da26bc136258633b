// Package serial opens a UART as a transport.Port: raw 8N1, no flow
// control, reads bounded by the caller's deadline.
package serial

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultBaud   = 115200
	DefaultSettle = 2 * time.Second
)

var ErrUnsupported = errors.New("serial ports are not supported on this platform")

// Config describes how to open a port.
type Config struct {
	Path string
	Baud int
	// Settle is how long to wait after opening before flushing the
	// buffers. Boards that reset when the port opens need this.
	Settle time.Duration
}

func (c Config) baud() int {
	if c.Baud == 0 {
		return DefaultBaud
	}
	return c.Baud
}

func (c Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("serial: no port path")
	}
	if c.Baud < 0 {
		return fmt.Errorf("serial: invalid baud rate %d", c.Baud)
	}
	return nil
}
