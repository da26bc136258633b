package transport

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Guard owns a Port and hands it out to one caller at a time.
type Guard struct {
	port Port
	sem  *semaphore.Weighted
}

func NewGuard(p Port) *Guard {
	return &Guard{
		port: p,
		sem:  semaphore.NewWeighted(1),
	}
}

// Lease is exclusive access to the guarded port until Release.
type Lease struct {
	port Port
	once sync.Once
	sem  *semaphore.Weighted
}

// Port returns the leased endpoint.
func (l *Lease) Port() Port {
	return l.port
}

// Release returns the port to the guard. Extra calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() { l.sem.Release(1) })
}

// Acquire waits for exclusive access or for ctx to end.
func (g *Guard) Acquire(ctx context.Context) (*Lease, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &Lease{port: g.port, sem: g.sem}, nil
}

// WithPort runs fn with exclusive access to the port and always releases
// it, including when fn panics.
func (g *Guard) WithPort(ctx context.Context, fn func(Port) error) error {
	lease, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()
	return fn(lease.Port())
}

// Close waits for the current holder and closes the port.
func (g *Guard) Close(ctx context.Context) error {
	return g.WithPort(ctx, func(p Port) error {
		return p.Close()
	})
}
