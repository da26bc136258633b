// Package plan maps a batch of equal-length score vectors onto 64-lane
// accelerator rows and maps the returned rows back to one result per
// input sequence.
package plan

import (
	"errors"
	"fmt"

	"github.com/samcharles93/smxoffload/pkg/frame"
	"github.com/samcharles93/smxoffload/pkg/q610"
)

var (
	ErrPlanning   = errors.New("planning error")
	ErrReassembly = errors.New("reassembly error")
)

// RowMeta records which sequences a row carries. In packed modes Count is
// the number of real slots starting at sequence First. In split modes
// Count is 1 and Offset is the lane offset of this fragment within
// sequence First.
type RowMeta struct {
	First  int
	Count  int
	Offset int
}

// Plan is the ordered row layout of one batch.
type Plan struct {
	Mode   frame.Mode
	SeqLen int
	Count  int
	Pad    float64

	// Block and Pack describe packed rows; split plans use Block=64, Pack=1.
	Block int
	Pack  int

	Rows [][]float64
	Meta []RowMeta

	seqs [][]float64
}

// Build lays out seqs into rows. Unused lanes are filled with pad.
// An empty batch yields a plan with no rows.
func Build(seqs [][]float64, pad float64) (*Plan, error) {
	if len(seqs) == 0 {
		return &Plan{}, nil
	}
	n := len(seqs[0])
	for i, s := range seqs {
		if len(s) != n {
			return nil, fmt.Errorf("%w: sequence %d has length %d, want %d", ErrPlanning, i, len(s), n)
		}
	}
	mode, err := frame.ModeFor(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}

	p := &Plan{
		Mode:   mode,
		SeqLen: n,
		Count:  len(seqs),
		Pad:    pad,
		seqs:   seqs,
	}
	if mode.Packed() {
		p.Block, p.Pack, err = frame.PackParams(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
		}
		p.buildPacked()
	} else {
		p.Block, p.Pack = frame.Lanes, 1
		p.buildSplit()
	}
	return p, nil
}

func (p *Plan) buildPacked() {
	rows := (p.Count + p.Pack - 1) / p.Pack
	p.Rows = make([][]float64, 0, rows)
	p.Meta = make([]RowMeta, 0, rows)
	for off := 0; off < p.Count; off += p.Pack {
		g := min(p.Pack, p.Count-off)
		row := padded(p.Pad)
		for j := range g {
			copy(row[j*p.Block:], p.seqs[off+j])
		}
		p.Rows = append(p.Rows, row)
		p.Meta = append(p.Meta, RowMeta{First: off, Count: g})
	}
}

func (p *Plan) buildSplit() {
	per := frame.RowsPerSequence(p.SeqLen)
	p.Rows = make([][]float64, 0, p.Count*per)
	p.Meta = make([]RowMeta, 0, p.Count*per)
	for i, s := range p.seqs {
		for start := 0; start < p.SeqLen; start += frame.Lanes {
			row := padded(p.Pad)
			copy(row, s[start:min(start+frame.Lanes, p.SeqLen)])
			p.Rows = append(p.Rows, row)
			p.Meta = append(p.Meta, RowMeta{First: i, Count: 1, Offset: start})
		}
	}
}

func padded(pad float64) []float64 {
	row := make([]float64, frame.Lanes)
	for i := range row {
		row[i] = pad
	}
	return row
}

// RowsPerSequence is 1 for packed plans and ceil(L/64) for split plans.
func (p *Plan) RowsPerSequence() int {
	if p.Mode.Packed() {
		return 1
	}
	return frame.RowsPerSequence(p.SeqLen)
}

// GroupRows is the number of consecutive rows that must travel in the
// same transmission.
func (p *Plan) GroupRows() int {
	return GroupRows(p.Mode)
}

// GroupRows returns the transmission granularity for mode.
func GroupRows(mode frame.Mode) int {
	if mode.Packed() {
		return 1
	}
	return int(mode) - 1
}

// Encode serializes every row with the plan's mode header. With strict
// set, caller values outside the Q6.10 range fail the whole batch.
func (p *Plan) Encode(strict bool) ([][]byte, error) {
	if strict {
		for i, s := range p.seqs {
			if err := q610.CheckRange(s); err != nil {
				return nil, fmt.Errorf("sequence %d: %w", i, err)
			}
		}
	}
	out := make([][]byte, len(p.Rows))
	for i, lanes := range p.Rows {
		row, err := frame.EncodeRow(lanes, p.Mode)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}
