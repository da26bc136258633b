package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/smxoffload/internal/golden"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/schedule"
	"github.com/samcharles93/smxoffload/internal/transport"
	"github.com/samcharles93/smxoffload/pkg/frame"
)

func sendCmd() *cli.Command {
	var (
		input  string
		output string
	)

	return &cli.Command{
		Name:  "send",
		Usage: "Send pre-encoded hex rows to the accelerator and save the reply as hex rows",
		Description: `Each input line is one 129-byte row in hex (mode header + 64 big-endian Q6.10 lanes);
shorter lines are left-padded with zeros. All rows must share the same mode.`,
		Flags: append(portFlags(),
			&cli.Int64Flag{
				Name:        "max-rows",
				Usage:       "rows per transmission (1..128)",
				Value:       frame.MaxRowsPerTransmission,
				Destination: &maxRows,
			},
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "hex rows to send (- for stdin)",
				Value:       "-",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "where to write the received hex rows (- for stdout)",
				Value:       "-",
				Destination: &output,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyPortConfig(cmd, loadedConfig)
			if loadedConfig.MaxRows != nil && !cmd.IsSet("max-rows") {
				maxRows = *loadedConfig.MaxRows
			}

			rows, err := readHexRows(input)
			if err != nil {
				return err
			}
			port, _, err := openPort(log)
			if err != nil {
				return err
			}
			defer func() { _ = port.Close() }()

			received, err := sendRows(ctx, port, rows, log)
			if err != nil {
				return err
			}
			log.Info("received rows", "rows", len(received))

			w, err := createOutput(output, os.Stdout)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
			return golden.WriteHexRows(w, received)
		},
	}
}

func readHexRows(path string) ([][]byte, error) {
	in, err := openInput(path, os.Stdin)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()
	rows, err := golden.ParseHexRows(in)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read %s: no rows", path)
	}
	return rows, nil
}

// rowsMode returns the mode shared by every row header.
func rowsMode(rows [][]byte) (frame.Mode, error) {
	mode, err := frame.Header(rows[0])
	if err != nil {
		return 0, fmt.Errorf("row 0: %w", err)
	}
	for i, r := range rows[1:] {
		m, err := frame.Header(r)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		if m != mode {
			return 0, fmt.Errorf("row %d has mode %d, row 0 has mode %d", i+1, m, mode)
		}
	}
	return mode, nil
}

func sendRows(ctx context.Context, port transport.Port, rows [][]byte, log logger.Logger) ([][]byte, error) {
	mode, err := rowsMode(rows)
	if err != nil {
		return nil, err
	}
	sched := &schedule.Scheduler{
		Port:    port,
		Timeout: timeout,
		MaxRows: int(maxRows),
		Logger:  log,
	}
	return sched.ExchangeRaw(ctx, mode, rows)
}
