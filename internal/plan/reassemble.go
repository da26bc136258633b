package plan

import (
	"fmt"

	"github.com/samcharles93/smxoffload/pkg/frame"
)

// Reassemble turns decoded accelerator rows back into one vector of
// length SeqLen per input sequence, in input order. It relies only on
// the per-row metadata recorded by Build.
func (p *Plan) Reassemble(rows [][]float64) ([][]float64, error) {
	if len(rows) != len(p.Meta) {
		return nil, fmt.Errorf("%w: got %d rows, plan has %d", ErrReassembly, len(rows), len(p.Meta))
	}
	out := make([][]float64, p.Count)
	for r, meta := range p.Meta {
		lanes := rows[r]
		if len(lanes) != frame.Lanes {
			return nil, fmt.Errorf("%w: row %d has %d lanes", ErrReassembly, r, len(lanes))
		}
		if p.Mode.Packed() {
			if err := p.unpackRow(out, lanes, meta); err != nil {
				return nil, fmt.Errorf("row %d: %w", r, err)
			}
			continue
		}
		if err := p.appendFragment(out, lanes, meta); err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
	}

	for i, v := range out {
		if len(v) != p.SeqLen {
			return nil, fmt.Errorf("%w: sequence %d has %d values, want %d", ErrReassembly, i, len(v), p.SeqLen)
		}
	}
	return out, nil
}

func (p *Plan) unpackRow(out [][]float64, lanes []float64, meta RowMeta) error {
	if meta.Count < 1 || meta.Count > p.Pack || meta.First < 0 || meta.First+meta.Count > len(out) {
		return fmt.Errorf("%w: slots %d..%d outside batch of %d", ErrReassembly, meta.First, meta.First+meta.Count, len(out))
	}
	for g := range meta.Count {
		idx := meta.First + g
		if out[idx] != nil {
			return fmt.Errorf("%w: sequence %d emitted twice", ErrReassembly, idx)
		}
		start := g * p.Block
		out[idx] = append([]float64(nil), lanes[start:start+p.SeqLen]...)
	}
	return nil
}

func (p *Plan) appendFragment(out [][]float64, lanes []float64, meta RowMeta) error {
	if meta.First < 0 || meta.First >= len(out) {
		return fmt.Errorf("%w: sequence %d outside batch of %d", ErrReassembly, meta.First, len(out))
	}
	cur := out[meta.First]
	if len(cur) != meta.Offset {
		return fmt.Errorf("%w: sequence %d fragment at %d, have %d values", ErrReassembly, meta.First, meta.Offset, len(cur))
	}
	n := min(frame.Lanes, p.SeqLen-meta.Offset)
	if n <= 0 {
		return fmt.Errorf("%w: sequence %d fragment at %d past length %d", ErrReassembly, meta.First, meta.Offset, p.SeqLen)
	}
	if cur == nil {
		cur = make([]float64, 0, p.SeqLen)
	}
	out[meta.First] = append(cur, lanes[:n]...)
	return nil
}
