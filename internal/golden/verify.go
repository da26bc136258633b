package golden

import (
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"

	"github.com/samcharles93/smxoffload/pkg/frame"
)

// DefaultTolerance allows a few Q6.10 steps of error per probability.
const DefaultTolerance = 4.0 / 1024

// RowReport compares one accelerator output row with the reference.
type RowReport struct {
	Row       int     `json:"row"`
	Mode      int     `json:"mode"`
	Span      int     `json:"span"`
	MaxAbsErr float64 `json:"max_abs_err"`
	ArgMax    int     `json:"argmax"`
	WantMax   int     `json:"argmax_expected"`
	Pass      bool    `json:"pass"`
}

// Report summarizes a verification run.
type Report struct {
	Rows      []RowReport `json:"rows"`
	MaxAbsErr float64     `json:"max_abs_err"`
	Tolerance float64     `json:"tolerance"`
	Failed    int         `json:"failed"`
	Pass      bool        `json:"pass"`
}

// Expected returns the reference output lanes for an input row, using the
// mode in its header.
func Expected(row []byte) ([]float64, error) {
	mode, err := frame.Header(row)
	if err != nil {
		return nil, err
	}
	lanes, err := frame.DecodeRow(row)
	if err != nil {
		return nil, err
	}
	return GroupedSoftmax(lanes, mode.Span()), nil
}

// Verify checks every output row against the reference computed from the
// matching input row.
func Verify(in, out [][]byte, tol float64) (*Report, error) {
	if len(in) != len(out) {
		return nil, fmt.Errorf("row count mismatch: %d inputs, %d outputs", len(in), len(out))
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	rep := &Report{Tolerance: tol, Rows: make([]RowReport, 0, len(in))}
	for i := range in {
		want, err := Expected(in[i])
		if err != nil {
			return nil, fmt.Errorf("input row %d: %w", i, err)
		}
		got, err := frame.DecodeRow(out[i])
		if err != nil {
			return nil, fmt.Errorf("output row %d: %w", i, err)
		}
		mode, _ := frame.Header(in[i])

		rr := RowReport{
			Row:     i,
			Mode:    int(mode),
			Span:    mode.Span(),
			ArgMax:  argmax(got),
			WantMax: argmax(want),
		}
		for j := range want {
			rr.MaxAbsErr = math.Max(rr.MaxAbsErr, math.Abs(got[j]-want[j]))
		}
		rr.Pass = rr.MaxAbsErr <= tol
		if !rr.Pass {
			rep.Failed++
		}
		rep.MaxAbsErr = math.Max(rep.MaxAbsErr, rr.MaxAbsErr)
		rep.Rows = append(rep.Rows, rr)
	}
	rep.Pass = rep.Failed == 0
	return rep, nil
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}
