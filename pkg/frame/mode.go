package frame

import "fmt"

// Mode is the length class of a batch, carried in the low nibble of
// every row header. Modes 0-2 pack several sequences into one row;
// higher modes split one sequence across several rows.
type Mode uint8

// MaxMode is the length class of the longest sequences.
const MaxMode Mode = 13

// modeLimits[m] is the largest sequence length in mode m.
var modeLimits = [...]int{16, 32, 64, 128, 192, 256, 320, 384, 448, 512, 576, 640, 704, MaxSeqLen}

// ModeFor returns the length class for sequences of length n.
func ModeFor(n int) (Mode, error) {
	if n < 1 || n > MaxSeqLen {
		return 0, fmt.Errorf("sequence length %d out of range 1..%d", n, MaxSeqLen)
	}
	for m, limit := range modeLimits {
		if n <= limit {
			return Mode(m), nil
		}
	}
	return MaxMode, nil
}

// Packed reports whether the mode packs multiple sequences per row.
func (m Mode) Packed() bool {
	return m <= 2
}

// Valid reports whether m is a mode the accelerator understands.
func (m Mode) Valid() bool {
	return m <= MaxMode
}

// Span is the number of lanes the accelerator normalizes together in
// this mode: the block size for packed modes, or the lanes of all rows
// of one sequence for split modes.
func (m Mode) Span() int {
	switch m {
	case 0:
		return 16
	case 1:
		return 32
	case 2:
		return 64
	default:
		return Lanes * (int(m) - 1)
	}
}

func (m Mode) String() string {
	if m.Packed() {
		return fmt.Sprintf("pack/%d", m.Span())
	}
	return fmt.Sprintf("split/%d", m.Span())
}

// PackParams returns the block size and pack factor for a sequence of
// length n <= 64.
func PackParams(n int) (block, pack int, err error) {
	switch {
	case n < 1 || n > Lanes:
		return 0, 0, fmt.Errorf("pack length %d out of range 1..%d", n, Lanes)
	case n <= 16:
		return 16, 4, nil
	case n <= 32:
		return 32, 2, nil
	default:
		return 64, 1, nil
	}
}

// RowsPerSequence is the number of 64-lane rows a split sequence of
// length n occupies.
func RowsPerSequence(n int) int {
	return (n + Lanes - 1) / Lanes
}
