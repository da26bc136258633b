// Package q610 converts between float64 and the signed 16-bit Q6.10
// fixed-point lanes used on the accelerator wire.
package q610

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// FracBits is the number of fractional bits.
	FracBits = 10
	// Scale is 2^FracBits.
	Scale = 1 << FracBits
	// LaneSize is the size of one encoded lane in bytes.
	LaneSize = 2

	// Min and Max bound the representable range.
	Min = -32.0
	Max = 32.0 - 1.0/Scale
	// Step is the quantization step.
	Step = 1.0 / Scale
)

var ErrOutOfRange = errors.New("q6.10 range exceeded")

// RangeError reports the first value outside [Min, Max] seen by a strict
// encode.
type RangeError struct {
	Index int
	Value float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("q6.10 range exceeded (index=%d, value=%.6f)", e.Index, e.Value)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

// Encode quantizes v, saturating at the int16 limits. NaN encodes as 0.
func Encode(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	scaled := v * Scale
	if scaled < math.MinInt16 {
		scaled = math.MinInt16
	} else if scaled > math.MaxInt16 {
		scaled = math.MaxInt16
	}
	return int16(math.RoundToEven(scaled))
}

// InRange reports whether v encodes without saturation. NaN is in range
// since it encodes as 0.
func InRange(v float64) bool {
	return math.IsNaN(v) || (v >= Min && v <= Max)
}

// EncodeStrict is Encode without saturation: values outside [Min, Max]
// return an error wrapping ErrOutOfRange. Slice encoders report the
// offending index with a *RangeError instead.
func EncodeStrict(v float64) (int16, error) {
	if !InRange(v) {
		return 0, fmt.Errorf("%w (value=%.6f)", ErrOutOfRange, v)
	}
	return Encode(v), nil
}

// Decode converts a lane back to float64.
func Decode(q int16) float64 {
	return float64(q) / Scale
}

// Quantize returns v as it reads back after a saturating round trip.
func Quantize(v float64) float64 {
	return Decode(Encode(v))
}

// PutLane writes q big-endian into b[0:2].
func PutLane(b []byte, q int16) {
	binary.BigEndian.PutUint16(b, uint16(q))
}

// Lane reads a big-endian lane from b[0:2].
func Lane(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}

// EncodeSlice encodes src into dst, which must hold len(src)*LaneSize
// bytes. With strict set, the first out-of-range element aborts the
// encode with a *RangeError carrying its index.
func EncodeSlice(dst []byte, src []float64, strict bool) error {
	if len(dst) < len(src)*LaneSize {
		return fmt.Errorf("q610: dst holds %d bytes, need %d", len(dst), len(src)*LaneSize)
	}
	for i, v := range src {
		if strict && !InRange(v) {
			return &RangeError{Index: i, Value: v}
		}
		PutLane(dst[i*LaneSize:], Encode(v))
	}
	return nil
}

// CheckRange returns a *RangeError for the first element of src outside
// [Min, Max], or nil.
func CheckRange(src []float64) error {
	for i, v := range src {
		if !InRange(v) {
			return &RangeError{Index: i, Value: v}
		}
	}
	return nil
}

// DecodeSlice decodes len(dst) lanes from src.
func DecodeSlice(dst []float64, src []byte) {
	for i := range dst {
		dst[i] = Decode(Lane(src[i*LaneSize:]))
	}
}
