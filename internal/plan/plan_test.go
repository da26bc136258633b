package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/smxoffload/pkg/frame"
	"github.com/samcharles93/smxoffload/pkg/q610"
)

func batch(n, length int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		s := make([]float64, length)
		for j := range s {
			s[j] = float64((i*7+j*3)%41-20) / 8
		}
		out[i] = s
	}
	return out
}

// echoRows decodes each encoded row as the accelerator would see it.
func echoRows(t *testing.T, p *Plan) [][]float64 {
	t.Helper()
	encoded, err := p.Encode(false)
	require.NoError(t, err)
	rows := make([][]float64, len(encoded))
	for i, b := range encoded {
		require.Len(t, b, frame.RowSize)
		rows[i], err = frame.DecodeRow(b)
		require.NoError(t, err)
	}
	return rows
}

func quantized(seqs [][]float64) [][]float64 {
	out := make([][]float64, len(seqs))
	for i, s := range seqs {
		out[i] = make([]float64, len(s))
		for j, v := range s {
			out[i][j] = q610.Quantize(v)
		}
	}
	return out
}

func TestBuildPackedSixteen(t *testing.T) {
	t.Parallel()

	seqs := batch(9, 16)
	p, err := Build(seqs, -32)
	require.NoError(t, err)
	require.Equal(t, frame.Mode(0), p.Mode)
	require.Equal(t, 16, p.Block)
	require.Equal(t, 4, p.Pack)
	require.Len(t, p.Rows, 3)
	require.Equal(t, []RowMeta{{First: 0, Count: 4}, {First: 4, Count: 4}, {First: 8, Count: 1}}, p.Meta)

	// The last row holds one real slot; everything after it is pad.
	for i := 16; i < frame.Lanes; i++ {
		require.Equal(t, -32.0, p.Rows[2][i])
	}

	got, err := p.Reassemble(echoRows(t, p))
	require.NoError(t, err)
	require.Equal(t, quantized(seqs), got)
}

func TestBuildPackedShortSequencesArePadded(t *testing.T) {
	t.Parallel()

	seqs := [][]float64{{0.1, 0.2, -0.3, 0.05}}
	p, err := Build(seqs, -32)
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	row := p.Rows[0]
	require.Equal(t, []float64{0.1, 0.2, -0.3, 0.05}, row[:4])
	for i := 4; i < frame.Lanes; i++ {
		require.Equal(t, -32.0, row[i], "lane %d", i)
	}

	got, err := p.Reassemble(echoRows(t, p))
	require.NoError(t, err)
	require.Equal(t, quantized(seqs), got)
}

func TestBuildPackedThirtyTwo(t *testing.T) {
	t.Parallel()

	seqs := batch(5, 20)
	p, err := Build(seqs, 0)
	require.NoError(t, err)
	require.Equal(t, frame.Mode(1), p.Mode)
	require.Len(t, p.Rows, 3)
	require.Equal(t, 1, p.Meta[2].Count)
	// The second slot starts at lane 32 regardless of the 20-lane length.
	require.Equal(t, seqs[1][0], p.Rows[0][32])

	got, err := p.Reassemble(echoRows(t, p))
	require.NoError(t, err)
	require.Equal(t, quantized(seqs), got)
}

func TestBuildSplit(t *testing.T) {
	t.Parallel()

	seqs := batch(3, 100)
	p, err := Build(seqs, -32)
	require.NoError(t, err)
	require.Equal(t, frame.Mode(3), p.Mode)
	require.Equal(t, 2, p.RowsPerSequence())
	require.Equal(t, 2, p.GroupRows())
	require.Len(t, p.Rows, 6)
	require.Equal(t, RowMeta{First: 1, Count: 1, Offset: 64}, p.Meta[3])
	require.Equal(t, seqs[1][64], p.Rows[3][0])
	require.Equal(t, -32.0, p.Rows[3][36])

	got, err := p.Reassemble(echoRows(t, p))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, v := range got {
		require.Len(t, v, 100)
	}
	require.Equal(t, quantized(seqs), got)
}

func TestBuildSplitLongest(t *testing.T) {
	t.Parallel()

	seqs := batch(2, frame.MaxSeqLen)
	p, err := Build(seqs, -32)
	require.NoError(t, err)
	require.Equal(t, frame.MaxMode, p.Mode)
	require.Len(t, p.Rows, 24)
	require.Equal(t, 12, p.GroupRows())
	require.Zero(t, len(p.Rows)%p.GroupRows())

	got, err := p.Reassemble(echoRows(t, p))
	require.NoError(t, err)
	require.Equal(t, quantized(seqs), got)
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	p, err := Build(nil, -32)
	require.NoError(t, err)
	require.Empty(t, p.Rows)
	got, err := p.Reassemble(nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBuildRejectsBadBatches(t *testing.T) {
	t.Parallel()

	_, err := Build([][]float64{make([]float64, 4), make([]float64, 5)}, 0)
	require.ErrorIs(t, err, ErrPlanning)

	_, err = Build([][]float64{make([]float64, frame.MaxSeqLen+1)}, 0)
	require.ErrorIs(t, err, ErrPlanning)

	_, err = Build([][]float64{{}}, 0)
	require.ErrorIs(t, err, ErrPlanning)
}

func TestEncodeStrictIgnoresPad(t *testing.T) {
	t.Parallel()

	seqs := [][]float64{{1, 2, 3}, {4, 99, 6}}
	p, err := Build(seqs, -32)
	require.NoError(t, err)

	_, err = p.Encode(true)
	require.ErrorIs(t, err, q610.ErrOutOfRange)
	var rerr *q610.RangeError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, 1, rerr.Index)
	require.Contains(t, err.Error(), "sequence 1")

	rows, err := p.Encode(false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, byte(0), rows[0][0])
}

func TestReassembleRejectsMismatches(t *testing.T) {
	t.Parallel()

	p, err := Build(batch(3, 100), 0)
	require.NoError(t, err)
	rows := echoRows(t, p)

	_, err = p.Reassemble(rows[:5])
	require.ErrorIs(t, err, ErrReassembly)

	short := append([][]float64(nil), rows...)
	short[2] = short[2][:10]
	_, err = p.Reassemble(short)
	require.ErrorIs(t, err, ErrReassembly)

	// Metadata that skips a fragment must be caught, not padded over.
	p.Meta[1].Offset = 0
	_, err = p.Reassemble(rows)
	require.ErrorIs(t, err, ErrReassembly)
}

func TestReassembleRejectsOverlappingSlots(t *testing.T) {
	t.Parallel()

	p, err := Build(batch(8, 10), 0)
	require.NoError(t, err)
	rows := echoRows(t, p)
	p.Meta[1].First = 2
	_, err = p.Reassemble(rows)
	require.ErrorIs(t, err, ErrReassembly)
}
