package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/samcharles93/smxoffload/internal/api"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/transport"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rps         float64
		burst       int64
		storeSize   int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the softmax offload REST API",
		Flags: append(offloadFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "rate",
				Usage:       "max accepted requests per second (0: unlimited)",
				Value:       20,
				Destination: &rps,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "request burst size for --rate",
				Value:       10,
				Destination: &burst,
			},
			&cli.Int64Flag{
				Name:        "store",
				Usage:       "number of recent results kept for GET /v1/softmax/:id",
				Value:       256,
				Destination: &storeSize,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, loadedConfig, &addr)

			port, name, err := openPort(log)
			if err != nil {
				return err
			}
			guard := transport.NewGuard(port)
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if err := guard.Close(closeCtx); err != nil {
					log.Warn("closing port", "error", err)
				}
			}()

			var limiter *rate.Limiter
			if rps > 0 {
				limiter = rate.NewLimiter(rate.Limit(rps), int(max(burst, 1)))
			}
			service := api.NewSoftmaxService(guard, api.ServiceConfig{
				Options:  offloadOptions(),
				Fallback: fallback,
				PortName: name,
			}, log)
			server := api.NewServer(api.NewResultStore(int(storeSize)), service, limiter)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "port", name)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
