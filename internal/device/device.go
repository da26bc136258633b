// Package device is a software model of the softmax accelerator. It
// speaks the wire protocol (depth byte, then depth+1 rows of 129 bytes)
// and answers with the same number of rows, so it can stand behind a
// transport.Loopback in tests, demos and the HTTP server.
package device

import (
	"sync"

	"github.com/samcharles93/smxoffload/internal/golden"
	"github.com/samcharles93/smxoffload/pkg/frame"
	"github.com/samcharles93/smxoffload/pkg/q610"
)

// Personality selects what the model computes.
type Personality int

const (
	// Softmax normalizes each block (packed modes) or each group of
	// mode-1 rows (split modes).
	Softmax Personality = iota
	// Echo returns every row unchanged.
	Echo
)

func (p Personality) String() string {
	switch p {
	case Echo:
		return "echo"
	default:
		return "softmax"
	}
}

// ParsePersonality maps "echo" and "softmax" to a Personality.
func ParsePersonality(s string) (Personality, bool) {
	switch s {
	case "echo":
		return Echo, true
	case "softmax", "":
		return Softmax, true
	default:
		return Softmax, false
	}
}

// Options tune failure behaviour for tests.
type Options struct {
	// StallAfter stops answering after this many transmissions (0: never).
	StallAfter int
	// Withhold drops this many bytes from the end of every answer.
	Withhold int
}

// Accelerator is safe for use from one writer at a time, like the
// hardware it models.
type Accelerator struct {
	mu          sync.Mutex
	personality Personality
	opts        Options

	haveDepth bool
	depth     int
	pending   []byte

	depths []int
}

func New(p Personality, opts Options) *Accelerator {
	return &Accelerator{personality: p, opts: opts}
}

// Feed consumes host bytes and returns the reply for every transmission
// completed by them.
func (a *Accelerator) Feed(p []byte) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	var reply []byte
	for len(p) > 0 {
		if !a.haveDepth {
			a.depth = int(p[0])
			a.haveDepth = true
			a.pending = a.pending[:0]
			p = p[1:]
			continue
		}
		want := (a.depth+1)*frame.RowSize - len(a.pending)
		take := min(want, len(p))
		a.pending = append(a.pending, p[:take]...)
		p = p[take:]
		if take < want {
			break
		}

		a.haveDepth = false
		a.depths = append(a.depths, a.depth)
		if a.opts.StallAfter > 0 && len(a.depths) > a.opts.StallAfter {
			continue
		}
		out := a.respond(a.pending)
		if a.opts.Withhold > 0 {
			out = out[:max(0, len(out)-a.opts.Withhold)]
		}
		reply = append(reply, out...)
	}
	return reply
}

// Depths returns the depth byte of every transmission received so far.
func (a *Accelerator) Depths() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.depths...)
}

func (a *Accelerator) respond(buf []byte) []byte {
	if a.personality == Echo {
		return append([]byte(nil), buf...)
	}

	n := len(buf) / frame.RowSize
	rows := make([][]float64, n)
	modes := make([]frame.Mode, n)
	for i := range n {
		row := buf[i*frame.RowSize : (i+1)*frame.RowSize]
		modes[i], _ = frame.Header(row)
		rows[i], _ = frame.DecodeRow(row)
	}

	out := make([]byte, 0, len(buf))
	for i := 0; i < n; {
		mode := modes[i]
		group := 1
		if !mode.Packed() {
			group = min(int(mode)-1, n-i)
		}
		for _, lanes := range normalize(rows[i:i+group], mode) {
			r := make([]byte, frame.RowSize)
			r[0] = byte(mode) & 0x0F
			_ = q610.EncodeSlice(r[1:], lanes, false)
			out = append(out, r...)
		}
		i += group
	}
	return out
}

// normalize computes the softmax the hardware applies to one row group.
func normalize(rows [][]float64, mode frame.Mode) [][]float64 {
	if mode.Packed() {
		return [][]float64{golden.GroupedSoftmax(rows[0], mode.Span())}
	}
	flat := make([]float64, 0, len(rows)*frame.Lanes)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	golden.Softmax(flat, flat)
	out := make([][]float64, len(rows))
	for i := range rows {
		out[i] = flat[i*frame.Lanes : (i+1)*frame.Lanes]
	}
	return out
}
