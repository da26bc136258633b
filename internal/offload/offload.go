// Package offload is the caller-facing softmax offload operation: plan a
// batch into rows, exchange them with the accelerator and reassemble one
// probability vector per input sequence.
package offload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/plan"
	"github.com/samcharles93/smxoffload/internal/schedule"
	"github.com/samcharles93/smxoffload/internal/transport"
	"github.com/samcharles93/smxoffload/pkg/frame"
	"github.com/samcharles93/smxoffload/pkg/q610"
)

const DefaultPadValue = -32.0

// Options configure an offload Client. Zero values select defaults.
type Options struct {
	// PadValue fills unused lanes. It should drive their probability to
	// zero, so the default is the most negative Q6.10 value.
	PadValue *float64
	// Timeout bounds the read of each transmission.
	Timeout time.Duration
	// MaxRows caps rows per transmission (1..128).
	MaxRows int
	// Strict rejects scores outside the Q6.10 range instead of clamping.
	Strict bool
}

// Pad returns a PadValue option.
func Pad(v float64) *float64 {
	return &v
}

func (o Options) pad() float64 {
	if o.PadValue == nil {
		return DefaultPadValue
	}
	return *o.PadValue
}

// IsCallerError reports whether err comes from the batch itself (bad
// shape, length or range) rather than the link. Such a batch fails the
// same way on any backend, so callers must not retry it elsewhere.
func IsCallerError(err error) bool {
	return errors.Is(err, plan.ErrPlanning) ||
		errors.Is(err, q610.ErrOutOfRange) ||
		errors.Is(err, frame.ErrShape)
}

// Result is the output of one offload call.
type Result struct {
	Probabilities [][]float64
	Mode          frame.Mode
	Rows          int
	Depths        []int
	Elapsed       time.Duration
}

// Client runs offload calls over one port. A Client does not lock the
// port: concurrent callers must share it through a transport.Guard.
type Client struct {
	port transport.Port
	opts Options
	log  logger.Logger
}

func New(port transport.Port, opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		port: port,
		opts: opts,
		log:  log.With("component", "offload"),
	}
}

// Softmax returns one probability vector per sequence, in order. All
// sequences must have the same length.
func (c *Client) Softmax(ctx context.Context, seqs [][]float64) ([][]float64, error) {
	res, err := c.Run(ctx, seqs)
	if err != nil {
		return nil, err
	}
	return res.Probabilities, nil
}

// Run is Softmax with a report of how the batch went over the wire.
func (c *Client) Run(ctx context.Context, seqs [][]float64) (*Result, error) {
	start := time.Now()
	if len(seqs) == 0 {
		return &Result{Probabilities: [][]float64{}}, nil
	}

	p, err := plan.Build(seqs, c.opts.pad())
	if err != nil {
		return nil, err
	}
	rows, err := p.Encode(c.opts.Strict)
	if err != nil {
		return nil, err
	}

	res := &Result{Mode: p.Mode, Rows: len(rows)}
	sched := &schedule.Scheduler{
		Port:    c.port,
		Timeout: c.opts.Timeout,
		MaxRows: c.opts.MaxRows,
		Logger:  c.log,
		OnTransmission: func(tx schedule.Transmission) {
			res.Depths = append(res.Depths, tx.Depth)
		},
	}
	decoded, err := sched.Exchange(ctx, p.Mode, rows)
	if err != nil {
		c.log.Warn("offload failed", "sequences", len(seqs), "length", p.SeqLen, "mode", int(p.Mode), "error", err)
		return nil, err
	}

	probs, err := p.Reassemble(decoded)
	if err != nil {
		return nil, fmt.Errorf("offload: %w", err)
	}
	res.Probabilities = probs
	res.Elapsed = time.Since(start)
	c.log.Debug("offload complete",
		"sequences", len(seqs),
		"length", p.SeqLen,
		"mode", p.Mode.String(),
		"rows", res.Rows,
		"transmissions", len(res.Depths),
		"elapsed", res.Elapsed,
	)
	return res, nil
}
