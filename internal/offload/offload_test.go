package offload

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/smxoffload/internal/device"
	"github.com/samcharles93/smxoffload/internal/golden"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/plan"
	"github.com/samcharles93/smxoffload/internal/transport"
	"github.com/samcharles93/smxoffload/pkg/frame"
	"github.com/samcharles93/smxoffload/pkg/q610"
)

func quiet() logger.Logger {
	return logger.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func scores(n, length int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, length)
		for j := range out[i] {
			out[i][j] = math.Sin(float64(i*length+j)) * 3
		}
	}
	return out
}

func quantizedAll(seqs [][]float64) [][]float64 {
	out := make([][]float64, len(seqs))
	for i, s := range seqs {
		out[i] = make([]float64, len(s))
		for j, v := range s {
			out[i][j] = q610.Quantize(v)
		}
	}
	return out
}

func echoClient(opts Options) (*Client, *device.Accelerator) {
	acc := device.New(device.Echo, device.Options{})
	return New(transport.NewLoopback(acc), opts, quiet()), acc
}

func TestEchoRoundTripSingleShortSequence(t *testing.T) {
	t.Parallel()

	c, acc := echoClient(Options{})
	seqs := [][]float64{{0.1, 0.2, -0.3, 0.05}}
	res, err := c.Run(context.Background(), seqs)
	require.NoError(t, err)
	require.Equal(t, frame.Mode(0), res.Mode)
	require.Equal(t, 1, res.Rows)
	require.Equal(t, []int{0}, res.Depths)
	require.Equal(t, []int{0}, acc.Depths())
	require.Equal(t, quantizedAll(seqs), res.Probabilities)
}

func TestEchoRoundTripPacked(t *testing.T) {
	t.Parallel()

	c, _ := echoClient(Options{})
	seqs := scores(9, 16)
	res, err := c.Run(context.Background(), seqs)
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
	require.Len(t, res.Probabilities, 9)
	require.Equal(t, quantizedAll(seqs), res.Probabilities)
}

func TestEchoRoundTripSplit(t *testing.T) {
	t.Parallel()

	c, _ := echoClient(Options{})
	seqs := scores(3, 100)
	res, err := c.Run(context.Background(), seqs)
	require.NoError(t, err)
	require.Equal(t, frame.Mode(3), res.Mode)
	require.Equal(t, 6, res.Rows)
	require.Equal(t, quantizedAll(seqs), res.Probabilities)
}

func TestEchoManyTransmissions(t *testing.T) {
	t.Parallel()

	c, acc := echoClient(Options{})
	seqs := scores(200, 64)
	got, err := c.Softmax(context.Background(), seqs)
	require.NoError(t, err)
	require.Equal(t, quantizedAll(seqs), got)
	require.Equal(t, []int{127, 71}, acc.Depths())
}

func TestSoftmaxMatchesReference(t *testing.T) {
	t.Parallel()

	for _, length := range []int{4, 16, 20, 50, 64, 100, 300, 768} {
		acc := device.New(device.Softmax, device.Options{})
		c := New(transport.NewLoopback(acc), Options{}, quiet())
		seqs := scores(5, length)
		got, err := c.Softmax(context.Background(), seqs)
		require.NoError(t, err, "length %d", length)
		require.Len(t, got, 5)
		for i, probs := range got {
			require.Len(t, probs, length)
			want := golden.Softmax(nil, quantizedAll(seqs)[i])
			for j := range want {
				require.InDelta(t, want[j], probs[j], 2.0/1024, "length %d seq %d lane %d", length, i, j)
			}
		}
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	l := transport.NewLoopback(transport.Silent)
	c := New(l, Options{Timeout: 60 * time.Millisecond}, quiet())

	start := time.Now()
	_, err := c.Softmax(context.Background(), scores(2, 8))
	elapsed := time.Since(start)

	var terr *transport.TimeoutError
	require.True(t, errors.As(err, &terr))
	require.Zero(t, terr.Received)
	require.Equal(t, frame.RowSize, terr.Expected)
	require.Less(t, elapsed, time.Second)
	require.Equal(t, 1+frame.RowSize, l.Written())
}

func TestPartialResponseTimeout(t *testing.T) {
	t.Parallel()

	acc := device.New(device.Echo, device.Options{Withhold: 29})
	c := New(transport.NewLoopback(acc), Options{Timeout: 30 * time.Millisecond}, quiet())
	_, err := c.Softmax(context.Background(), scores(1, 100))
	var terr *transport.TimeoutError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, 2*frame.RowSize-29, terr.Received)
}

func TestRejectsUnequalLengths(t *testing.T) {
	t.Parallel()

	c, acc := echoClient(Options{})
	_, err := c.Softmax(context.Background(), [][]float64{{1, 2}, {1, 2, 3}})
	require.ErrorIs(t, err, plan.ErrPlanning)
	require.Empty(t, acc.Depths())
}

func TestStrictMode(t *testing.T) {
	t.Parallel()

	seqs := [][]float64{{0, 1}, {0, 100}}

	c, acc := echoClient(Options{Strict: true})
	_, err := c.Softmax(context.Background(), seqs)
	require.ErrorIs(t, err, q610.ErrOutOfRange)
	require.Empty(t, acc.Depths())

	lax, _ := echoClient(Options{})
	got, err := lax.Softmax(context.Background(), seqs)
	require.NoError(t, err)
	require.Equal(t, q610.Max, got[1][1])
}

func TestPadValue(t *testing.T) {
	t.Parallel()

	var captured []byte
	l := transport.NewLoopback(transport.ResponderFunc(func(p []byte) []byte {
		captured = append(captured, p...)
		return nil
	}))
	c := New(l, Options{PadValue: Pad(0), Timeout: 10 * time.Millisecond}, quiet())
	_, _ = c.Softmax(context.Background(), [][]float64{{1}})
	require.Len(t, captured, 1+frame.RowSize)
	lanes, err := frame.DecodeRow(captured[1:])
	require.NoError(t, err)
	require.Equal(t, 1.0, lanes[0])
	for _, v := range lanes[1:] {
		require.Zero(t, v)
	}
}

func TestEmptyBatch(t *testing.T) {
	t.Parallel()

	c, acc := echoClient(Options{})
	got, err := c.Softmax(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, acc.Depths())
}

func TestLogsTransmissions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.JSON(&buf, slog.LevelDebug)
	acc := device.New(device.Echo, device.Options{})
	c := New(transport.NewLoopback(acc), Options{}, log)
	_, err := c.Softmax(context.Background(), scores(2, 8))
	require.NoError(t, err)
	out := buf.String()
	require.True(t, strings.Contains(out, "transmission complete"), out)
	require.True(t, strings.Contains(out, `"component":"offload"`), out)
}
