package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/smxoffload/internal/offload"
	"github.com/samcharles93/smxoffload/internal/schedule"
	"github.com/samcharles93/smxoffload/internal/serial"
	"github.com/samcharles93/smxoffload/pkg/frame"
)

const envPort = "SMXOFFLOAD_PORT"

var (
	configFile string
	portPath   string
	baud       int64
	timeout    time.Duration
	settle     time.Duration
	padValue   float64
	maxRows    int64
	strict     bool
	emulate    string
	fallback   bool
	logLevel   string
	logFormat  string
	debug      bool
)

func portFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "port",
			Aliases:     []string{"p"},
			Usage:       "serial device path (e.g. /dev/ttyUSB0)",
			Sources:     cli.EnvVars(envPort),
			Destination: &portPath,
		},
		&cli.Int64Flag{
			Name:        "baud",
			Aliases:     []string{"b"},
			Usage:       "baud rate",
			Value:       serial.DefaultBaud,
			Destination: &baud,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "read timeout per transmission",
			Value:       schedule.DefaultTimeout,
			Destination: &timeout,
		},
		&cli.DurationFlag{
			Name:        "settle",
			Usage:       "wait after opening the port before flushing it",
			Value:       serial.DefaultSettle,
			Destination: &settle,
		},
		&cli.StringFlag{
			Name:        "emulate",
			Usage:       "use the in-process accelerator model instead of a port (softmax, echo)",
			Destination: &emulate,
		},
	}
}

func offloadFlags() []cli.Flag {
	return append(portFlags(),
		&cli.Float64Flag{
			Name:        "pad",
			Usage:       "score written to unused lanes",
			Value:       offload.DefaultPadValue,
			Destination: &padValue,
		},
		&cli.Int64Flag{
			Name:        "max-rows",
			Usage:       "rows per transmission (1..128)",
			Value:       frame.MaxRowsPerTransmission,
			Destination: &maxRows,
		},
		&cli.BoolFlag{
			Name:        "strict",
			Usage:       "reject scores outside the Q6.10 range instead of clamping",
			Destination: &strict,
		},
		&cli.BoolFlag{
			Name:        "fallback",
			Usage:       "compute on the host when the accelerator fails",
			Destination: &fallback,
		},
	)
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (default: ~/.config/smxoffload/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func offloadOptions() offload.Options {
	return offload.Options{
		PadValue: offload.Pad(padValue),
		Timeout:  timeout,
		MaxRows:  int(maxRows),
		Strict:   strict,
	}
}
