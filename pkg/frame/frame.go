// Package frame implements the 129-byte accelerator row: one mode header
// byte followed by 64 big-endian Q6.10 lanes.
package frame

import (
	"errors"
	"fmt"

	"github.com/samcharles93/smxoffload/pkg/q610"
)

const (
	Lanes       = 64
	PayloadSize = Lanes * q610.LaneSize
	RowSize     = 1 + PayloadSize

	// MaxSeqLen is the longest sequence the accelerator accepts.
	MaxSeqLen = 768
	// MaxRowsPerTransmission is the accelerator buffer depth.
	MaxRowsPerTransmission = 128
	// MaxDepth is the largest depth byte (rows - 1).
	MaxDepth = MaxRowsPerTransmission - 1
)

var ErrShape = errors.New("frame shape mismatch")

// ShapeError reports a lane vector or byte buffer of the wrong size.
type ShapeError struct {
	What string
	Got  int
	Want string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: got %d, want %s", e.What, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error {
	return ErrShape
}

// EncodeRow builds a row from exactly Lanes values, saturating out of
// range values.
func EncodeRow(lanes []float64, mode Mode) ([]byte, error) {
	return encodeRow(lanes, mode, false)
}

// EncodeRowStrict is EncodeRow failing with q610.ErrOutOfRange instead of
// saturating.
func EncodeRowStrict(lanes []float64, mode Mode) ([]byte, error) {
	return encodeRow(lanes, mode, true)
}

func encodeRow(lanes []float64, mode Mode, strict bool) ([]byte, error) {
	if len(lanes) != Lanes {
		return nil, &ShapeError{What: "row lanes", Got: len(lanes), Want: "64"}
	}
	row := make([]byte, RowSize)
	row[0] = byte(mode) & 0x0F
	if err := q610.EncodeSlice(row[1:], lanes, strict); err != nil {
		return nil, err
	}
	return row, nil
}

// DecodeRow returns the 64 lane values of a row. A 128-byte buffer is
// taken as a bare payload without the header byte.
func DecodeRow(b []byte) ([]float64, error) {
	var payload []byte
	switch len(b) {
	case RowSize:
		payload = b[1:]
	case PayloadSize:
		payload = b
	default:
		return nil, &ShapeError{What: "row bytes", Got: len(b), Want: "128 or 129"}
	}
	out := make([]float64, Lanes)
	q610.DecodeSlice(out, payload)
	return out, nil
}

// Header returns the mode tag of a full row.
func Header(b []byte) (Mode, error) {
	if len(b) != RowSize {
		return 0, &ShapeError{What: "row bytes", Got: len(b), Want: "129"}
	}
	return Mode(b[0] & 0x0F), nil
}
