package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/smxoffload/pkg/frame"
)

// throughputReport estimates the speedup of packing short sequences.
// A mode 0 row carries four sequences, mode 1 two and mode 2 one, so the
// normalized throughput relative to one sequence per row is
// 4*p16 + 2*p32 + p64.
type throughputReport struct {
	Count      int         `json:"count"`
	MeanLength float64     `json:"mean_length"`
	P16        float64     `json:"p16"`
	P32        float64     `json:"p32"`
	P64        float64     `json:"p64"`
	Normalized float64     `json:"normalized_throughput"`
	Modes      map[int]int `json:"modes"`
	Skipped    int         `json:"skipped"`
}

func readLengths(r io.Reader) ([]int, error) {
	var out []int
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, n)
	}
	return out, sc.Err()
}

func estimateThroughput(lengths []int) throughputReport {
	rep := throughputReport{Modes: make(map[int]int)}
	if len(lengths) == 0 {
		return rep
	}
	var sum, n16, n32, n64 int
	for _, l := range lengths {
		sum += l
		switch {
		case l >= 1 && l <= 16:
			n16++
		case l >= 17 && l <= 32:
			n32++
		case l >= 33 && l <= 64:
			n64++
		}
		mode, err := frame.ModeFor(l)
		if err != nil {
			rep.Skipped++
			continue
		}
		rep.Modes[int(mode)]++
	}
	n := float64(len(lengths))
	rep.Count = len(lengths)
	rep.MeanLength = float64(sum) / n
	rep.P16 = float64(n16) / n
	rep.P32 = float64(n32) / n
	rep.P64 = float64(n64) / n
	rep.Normalized = 4*rep.P16 + 2*rep.P32 + rep.P64
	return rep
}

func throughputCmd() *cli.Command {
	var (
		input  string
		asJSON bool
	)

	return &cli.Command{
		Name:  "throughput",
		Usage: "Estimate packing throughput from a file of sequence lengths (one per line)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "lengths",
				Aliases:     []string{"i"},
				Usage:       "file of token lengths (- for stdin)",
				Value:       "-",
				Destination: &input,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the report as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			in, err := openInput(input, os.Stdin)
			if err != nil {
				return err
			}
			lengths, err := readLengths(in)
			_ = in.Close()
			if err != nil {
				return err
			}
			if len(lengths) == 0 {
				return fmt.Errorf("no lengths in %s", input)
			}
			rep := estimateThroughput(lengths)
			if asJSON {
				return writeJSON(os.Stdout, rep, true)
			}
			fmt.Printf("sequences:  %d\n", rep.Count)
			fmt.Printf("mean:       %.2f\n", rep.MeanLength)
			fmt.Printf("p16=%.4f, p32=%.4f, p64=%.4f\n", rep.P16, rep.P32, rep.P64)
			fmt.Printf("normalized throughput: %.4fx baseline\n", rep.Normalized)
			if rep.Skipped > 0 {
				fmt.Printf("unsupported lengths: %d (must be 1..%d)\n", rep.Skipped, frame.MaxSeqLen)
			}
			return nil
		},
	}
}
