package transport

import (
	"context"
	"errors"
	"sync"
)

// Responder is the far end of a Loopback. Feed receives every host write
// and returns whatever the far end sends back in reply (possibly nothing).
type Responder interface {
	Feed(p []byte) []byte
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(p []byte) []byte

func (f ResponderFunc) Feed(p []byte) []byte { return f(p) }

// Echo returns every written byte unchanged.
var Echo = ResponderFunc(func(p []byte) []byte { return p })

// Silent never answers.
var Silent = ResponderFunc(func([]byte) []byte { return nil })

// Loopback is an in-memory Port wired to a Responder.
type Loopback struct {
	mu      sync.Mutex
	dev     Responder
	rx      []byte
	ready   chan struct{}
	closed  bool
	written int
}

func NewLoopback(dev Responder) *Loopback {
	return &Loopback{
		dev:   dev,
		ready: make(chan struct{}),
	}
}

func (l *Loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	l.written += len(p)
	if resp := l.dev.Feed(append([]byte(nil), p...)); len(resp) > 0 {
		l.pushLocked(resp)
	}
	return len(p), nil
}

// Inject queues bytes as if the far end had sent them unprompted.
func (l *Loopback) Inject(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushLocked(b)
}

func (l *Loopback) pushLocked(b []byte) {
	l.rx = append(l.rx, b...)
	close(l.ready)
	l.ready = make(chan struct{})
}

func (l *Loopback) ReadExact(ctx context.Context, n int) ([]byte, error) {
	for {
		l.mu.Lock()
		if len(l.rx) >= n {
			out := append([]byte(nil), l.rx[:n]...)
			l.rx = l.rx[n:]
			l.mu.Unlock()
			return out, nil
		}
		if l.closed {
			got := l.drainLocked()
			l.mu.Unlock()
			return got, ErrClosed
		}
		ready := l.ready
		l.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			l.mu.Lock()
			got := l.drainLocked()
			l.mu.Unlock()
			if errors.Is(ctx.Err(), context.Canceled) {
				return got, ctx.Err()
			}
			return got, &TimeoutError{Received: len(got), Expected: n}
		}
	}
}

func (l *Loopback) drainLocked() []byte {
	got := l.rx
	l.rx = nil
	return got
}

func (l *Loopback) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rx = nil
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ready)
		l.ready = make(chan struct{})
	}
	return nil
}

// Written is the total number of bytes the host has written.
func (l *Loopback) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}
