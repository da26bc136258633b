package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/smxoffload/internal/golden"
	"github.com/samcharles93/smxoffload/internal/logger"
)

func verifyCmd() *cli.Command {
	var (
		input     string
		received  string
		report    string
		tolerance float64
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check accelerator output rows against the reference softmax",
		Description: `Without --received the input rows are sent to the accelerator first.
With --received the comparison runs offline against a saved reply.`,
		Flags: append(portFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "hex input rows",
				Required:    true,
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "received",
				Aliases:     []string{"r"},
				Usage:       "hex rows previously received from the accelerator",
				Destination: &received,
			},
			&cli.StringFlag{
				Name:        "report",
				Usage:       "JSON report file (- for stdout)",
				Value:       "-",
				Destination: &report,
			},
			&cli.Float64Flag{
				Name:        "tolerance",
				Usage:       "max absolute error per probability",
				Value:       golden.DefaultTolerance,
				Destination: &tolerance,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyPortConfig(cmd, loadedConfig)

			in, err := readHexRows(input)
			if err != nil {
				return err
			}

			var out [][]byte
			if received != "" {
				if out, err = readHexRows(received); err != nil {
					return err
				}
			} else {
				port, _, err := openPort(log)
				if err != nil {
					return err
				}
				out, err = sendRows(ctx, port, in, log)
				_ = port.Close()
				if err != nil {
					return err
				}
			}

			rep, err := golden.Verify(in, out, tolerance)
			if err != nil {
				return err
			}
			w, err := createOutput(report, os.Stdout)
			if err != nil {
				return err
			}
			if err := rep.WriteJSON(w); err != nil {
				_ = w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}

			log.Info("verification finished", "rows", len(rep.Rows), "failed", rep.Failed, "max_abs_err", rep.MaxAbsErr)
			if !rep.Pass {
				return fmt.Errorf("verify: %d of %d rows exceed tolerance %g", rep.Failed, len(rep.Rows), rep.Tolerance)
			}
			return nil
		},
	}
}
