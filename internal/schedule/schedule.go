// Package schedule splits encoded rows into transmissions that fit the
// accelerator buffer and runs the request/response exchange for each.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/plan"
	"github.com/samcharles93/smxoffload/internal/transport"
	"github.com/samcharles93/smxoffload/pkg/frame"
)

const DefaultTimeout = 10 * time.Second

// Depths returns the depth byte of every transmission needed to send
// totalRows rows of the given mode, at most maxRows rows each. A
// transmission never splits a row group.
func Depths(totalRows int, mode frame.Mode, maxRows int) ([]int, error) {
	if totalRows <= 0 {
		return nil, nil
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: mode %d out of range", plan.ErrPlanning, mode)
	}
	if maxRows < 1 || maxRows > frame.MaxRowsPerTransmission {
		return nil, fmt.Errorf("%w: max rows per transmission %d out of range 1..%d", plan.ErrPlanning, maxRows, frame.MaxRowsPerTransmission)
	}
	group := plan.GroupRows(mode)
	if group > maxRows {
		return nil, fmt.Errorf("%w: group of %d rows exceeds %d rows per transmission", plan.ErrPlanning, group, maxRows)
	}
	if totalRows%group != 0 {
		return nil, fmt.Errorf("%w: %d rows is not a multiple of group %d for mode %d", plan.ErrPlanning, totalRows, group, mode)
	}

	perTx := (maxRows / group) * group
	depths := make([]int, 0, (totalRows+perTx-1)/perTx)
	for rem := totalRows; rem > 0; {
		rows := min(rem, perTx)
		depths = append(depths, rows-1)
		rem -= rows
	}
	return depths, nil
}

// Transmission describes one completed exchange.
type Transmission struct {
	Index   int
	Depth   int
	Rows    int
	Elapsed time.Duration
}

// Scheduler drives transmissions over a single port. It does no locking;
// callers hold the port exclusively for the duration of Exchange.
type Scheduler struct {
	Port    transport.Port
	Timeout time.Duration
	MaxRows int
	Logger  logger.Logger

	// OnTransmission, if set, is called after every completed exchange.
	OnTransmission func(Transmission)
}

// Exchange sends rows in as many transmissions as needed and returns the
// decoded lanes of every returned row, in order.
func (s *Scheduler) Exchange(ctx context.Context, mode frame.Mode, rows [][]byte) ([][]float64, error) {
	raw, err := s.ExchangeRaw(ctx, mode, rows)
	if err != nil {
		return nil, err
	}
	decoded := make([][]float64, len(raw))
	for i, r := range raw {
		lanes, err := frame.DecodeRow(r)
		if err != nil {
			return nil, fmt.Errorf("decode row %d: %w", i, err)
		}
		decoded[i] = lanes
	}
	return decoded, nil
}

// ExchangeRaw is Exchange without decoding: it returns the 129-byte rows
// exactly as the accelerator sent them.
func (s *Scheduler) ExchangeRaw(ctx context.Context, mode frame.Mode, rows [][]byte) ([][]byte, error) {
	maxRows := s.MaxRows
	if maxRows == 0 {
		maxRows = frame.MaxRowsPerTransmission
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := s.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}

	depths, err := Depths(len(rows), mode, maxRows)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(rows))
	cursor := 0
	for i, depth := range depths {
		n := depth + 1
		start := time.Now()
		rx, err := s.transmit(ctx, log, depth, rows[cursor:cursor+n], timeout)
		if err != nil {
			return nil, fmt.Errorf("transmission %d/%d (depth %d): %w", i+1, len(depths), depth, err)
		}
		cursor += n
		for r := range n {
			out = append(out, rx[r*frame.RowSize:(r+1)*frame.RowSize])
		}

		tx := Transmission{Index: i, Depth: depth, Rows: n, Elapsed: time.Since(start)}
		log.Debug("transmission complete", "index", i, "depth", depth, "rows", n, "mode", int(mode), "elapsed", tx.Elapsed)
		if s.OnTransmission != nil {
			s.OnTransmission(tx)
		}
	}
	return out, nil
}

func (s *Scheduler) transmit(ctx context.Context, log logger.Logger, depth int, rows [][]byte, timeout time.Duration) ([]byte, error) {
	if depth < 0 || depth > frame.MaxDepth {
		return nil, fmt.Errorf("%w: depth %d out of range 0..%d", plan.ErrPlanning, depth, frame.MaxDepth)
	}
	buf := make([]byte, 0, 1+len(rows)*frame.RowSize)
	buf = append(buf, byte(depth))
	for i, r := range rows {
		if len(r) != frame.RowSize {
			return nil, fmt.Errorf("row %d: %w", i, &frame.ShapeError{What: "row bytes", Got: len(r), Want: "129"})
		}
		buf = append(buf, r...)
	}

	log.Debug("sending", "bytes", len(buf), logger.Hex("head", buf, 16))
	if err := s.Port.Reset(); err != nil {
		return nil, fmt.Errorf("reset port: %w", err)
	}
	if err := transport.WriteAll(s.Port, buf); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Port.ReadExact(readCtx, len(rows)*frame.RowSize)
}
