package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/smxoffload/internal/golden"
	"github.com/samcharles93/smxoffload/pkg/frame"
)

func goldenCmd() *cli.Command {
	var (
		input  string
		output string
	)

	return &cli.Command{
		Name:  "golden",
		Usage: "Compute the reference output rows for a file of hex input rows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "hex input rows (- for stdin)",
				Value:       "-",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "where to write the expected hex rows (- for stdout)",
				Value:       "-",
				Destination: &output,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rows, err := readHexRows(input)
			if err != nil {
				return err
			}
			expected, err := goldenRows(rows)
			if err != nil {
				return err
			}
			w, err := createOutput(output, os.Stdout)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
			return golden.WriteHexRows(w, expected)
		},
	}
}

// goldenRows encodes the reference output of every input row, keeping
// its mode header.
func goldenRows(rows [][]byte) ([][]byte, error) {
	out := make([][]byte, len(rows))
	for i, r := range rows {
		mode, err := frame.Header(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		want, err := golden.Expected(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		enc, err := frame.EncodeRow(want, mode)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = enc
	}
	return out, nil
}
