package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/smxoffload/internal/api"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/transport"
)

type softmaxOutput struct {
	Backend       string      `json:"backend"`
	Mode          int         `json:"mode"`
	Rows          int         `json:"rows"`
	Depths        []int       `json:"depths,omitempty"`
	ElapsedMS     float64     `json:"elapsed_ms"`
	FallbackError string      `json:"fallback_error,omitempty"`
	Probabilities [][]float64 `json:"probabilities"`
}

func softmaxCmd() *cli.Command {
	var (
		input   string
		output  string
		compact bool
	)

	return &cli.Command{
		Name:  "softmax",
		Usage: "Compute softmax for a JSON batch of score rows on the accelerator",
		Description: `Input is either a JSON array of equal-length score rows, e.g. [[1,2,3],[0,0,0]],
or an object {"sequences": [[...], ...]}. Output is one probability row per input row.`,
		Flags: append(offloadFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "input JSON file (- for stdin)",
				Value:       "-",
				Destination: &input,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output JSON file (- for stdout)",
				Value:       "-",
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "compact",
				Usage:       "write compact JSON",
				Destination: &compact,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyOffloadConfig(cmd, loadedConfig)

			in, err := openInput(input, os.Stdin)
			if err != nil {
				return err
			}
			data, err := io.ReadAll(in)
			_ = in.Close()
			if err != nil {
				return err
			}
			seqs, err := parseSequences(data)
			if err != nil {
				return err
			}

			port, name, err := openPort(log)
			if err != nil {
				return err
			}
			guard := transport.NewGuard(port)
			defer func() { _ = guard.Close(context.Background()) }()

			service := api.NewSoftmaxService(guard, api.ServiceConfig{
				Options:  offloadOptions(),
				Fallback: fallback,
				PortName: name,
			}, log)
			out, err := service.Softmax(ctx, api.SoftmaxRequest{Sequences: seqs})
			if err != nil {
				return err
			}

			res := softmaxOutput{
				Backend:       out.Backend,
				Mode:          int(out.Result.Mode),
				Rows:          out.Result.Rows,
				Depths:        out.Result.Depths,
				ElapsedMS:     float64(out.Result.Elapsed.Microseconds()) / 1000,
				Probabilities: out.Result.Probabilities,
			}
			if out.FallbackError != nil {
				res.Mode = -1
				res.FallbackError = out.FallbackError.Error()
			}

			w, err := createOutput(output, os.Stdout)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
			return writeJSON(w, res, !compact)
		},
	}
}

// parseSequences accepts a bare array of rows or {"sequences": rows}.
func parseSequences(data []byte) ([][]float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	if data[0] == '[' {
		var seqs [][]float64
		if err := json.Unmarshal(data, &seqs); err != nil {
			return nil, fmt.Errorf("parse rows: %w", err)
		}
		return seqs, nil
	}
	var req api.SoftmaxRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	if req.Sequences == nil {
		return nil, fmt.Errorf(`input object has no "sequences"`)
	}
	return req.Sequences, nil
}

func writeJSON(w io.Writer, v any, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
