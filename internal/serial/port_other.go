//go:build !linux

package serial

import (
	"context"

	"github.com/samcharles93/smxoffload/internal/transport"
)

// Port is unavailable on this platform; Open always fails.
type Port struct{}

var _ transport.Port = (*Port)(nil)

func Open(cfg Config) (*Port, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

func (p *Port) Write([]byte) (int, error) { return 0, ErrUnsupported }
func (p *Port) ReadExact(context.Context, int) ([]byte, error) { return nil, ErrUnsupported }
func (p *Port) Reset() error { return ErrUnsupported }
func (p *Port) Close() error { return nil }
func (p *Port) Path() string { return "" }
