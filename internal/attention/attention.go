// Package attention is the caller side of the offload protocol. Model
// code asks a ProbabilityComputer for softmax rows and never sees which
// strategy produced them.
package attention

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samcharles93/smxoffload/internal/golden"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/offload"
	"github.com/samcharles93/smxoffload/internal/transport"
)

// ProbabilityComputer turns rows of scores into rows of probabilities.
type ProbabilityComputer interface {
	ComputeProbabilities(ctx context.Context, scores [][]float64) ([][]float64, error)
}

// Software computes softmax on the host.
type Software struct{}

func (Software) ComputeProbabilities(ctx context.Context, scores [][]float64) ([][]float64, error) {
	out := make([][]float64, len(scores))
	for i, s := range scores {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = golden.Softmax(nil, s)
	}
	return out, nil
}

// Hardware offloads softmax to the accelerator behind guard. Each call
// holds the port for the whole batch.
type Hardware struct {
	Guard   *transport.Guard
	Options offload.Options
	Logger  logger.Logger
}

func (h *Hardware) ComputeProbabilities(ctx context.Context, scores [][]float64) ([][]float64, error) {
	var out [][]float64
	err := h.Guard.WithPort(ctx, func(p transport.Port) error {
		var err error
		out, err = offload.New(p, h.Options, h.Logger).Softmax(ctx, scores)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Fallback tries Primary and, when it fails, Secondary. The primary
// error is kept alongside the secondary one if both fail. Errors caused by
// the scores themselves (see offload.IsCallerError) are returned as-is.
type Fallback struct {
	Primary   ProbabilityComputer
	Secondary ProbabilityComputer
	Logger    logger.Logger
}

func (f *Fallback) ComputeProbabilities(ctx context.Context, scores [][]float64) ([][]float64, error) {
	out, err := f.Primary.ComputeProbabilities(ctx, scores)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil || offload.IsCallerError(err) {
		return nil, err
	}
	log := f.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log.Warn("primary softmax failed, using fallback", "rows", len(scores), "error", err)

	out, err2 := f.Secondary.ComputeProbabilities(ctx, scores)
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	return out, nil
}

// Attend computes scaled dot-product attention for one head:
// softmax(Q K^T / sqrt(d)) V. q and k are [n][d], v is [n][dv].
func Attend(ctx context.Context, q, k, v [][]float64, pc ProbabilityComputer) ([][]float64, error) {
	if len(q) == 0 {
		return [][]float64{}, nil
	}
	if len(k) != len(v) {
		return nil, fmt.Errorf("attention: %d keys but %d values", len(k), len(v))
	}
	d := len(q[0])
	for i, row := range q {
		if len(row) != d {
			return nil, fmt.Errorf("attention: query %d has width %d, want %d", i, len(row), d)
		}
	}
	for i, row := range k {
		if len(row) != d {
			return nil, fmt.Errorf("attention: key %d has width %d, want %d", i, len(row), d)
		}
	}
	dv := 0
	if len(v) > 0 {
		dv = len(v[0])
	}
	for i, row := range v {
		if len(row) != dv {
			return nil, fmt.Errorf("attention: value %d has width %d, want %d", i, len(row), dv)
		}
	}

	scale := 1 / math.Sqrt(float64(d))
	scores := make([][]float64, len(q))
	for i, qi := range q {
		s := make([]float64, len(k))
		for j, kj := range k {
			var dot float64
			for c := range qi {
				dot += qi[c] * kj[c]
			}
			s[j] = dot * scale
		}
		scores[i] = s
	}

	probs, err := pc.ComputeProbabilities(ctx, scores)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(q) {
		return nil, fmt.Errorf("attention: got %d probability rows, want %d", len(probs), len(q))
	}

	out := make([][]float64, len(q))
	for i, p := range probs {
		if len(p) != len(v) {
			return nil, fmt.Errorf("attention: probability row %d has %d entries, want %d", i, len(p), len(v))
		}
		row := make([]float64, dv)
		for j, w := range p {
			for c := range row {
				row[c] += w * v[j][c]
			}
		}
		out[i] = row
	}
	return out, nil
}
