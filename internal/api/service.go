package api

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/smxoffload/internal/attention"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/offload"
	"github.com/samcharles93/smxoffload/internal/transport"
)

const (
	BackendAccelerator = "accelerator"
	BackendSoftware    = "software"
)

// SoftmaxService runs offload calls against the shared accelerator port.
type SoftmaxService struct {
	guard    *transport.Guard
	opts     offload.Options
	fallback bool
	portName string
	log      logger.Logger
}

type ServiceConfig struct {
	Options offload.Options
	// Fallback computes on the host when the accelerator fails for a
	// reason other than a bad request.
	Fallback bool
	PortName string
}

func NewSoftmaxService(guard *transport.Guard, cfg ServiceConfig, log logger.Logger) *SoftmaxService {
	if log == nil {
		log = logger.Default()
	}
	return &SoftmaxService{
		guard:    guard,
		opts:     cfg.Options,
		fallback: cfg.Fallback,
		portName: cfg.PortName,
		log:      log.With("component", "api"),
	}
}

// Outcome is the result of one service call.
type Outcome struct {
	Result        *offload.Result
	Backend       string
	FallbackError error
}

func (s *SoftmaxService) options(req SoftmaxRequest) offload.Options {
	opts := s.opts
	if req.PadValue != nil {
		opts.PadValue = offload.Pad(*req.PadValue)
	}
	if req.Strict != nil {
		opts.Strict = *req.Strict
	}
	if req.TimeoutMS != nil && *req.TimeoutMS > 0 {
		opts.Timeout = time.Duration(*req.TimeoutMS) * time.Millisecond
	}
	return opts
}

func (s *SoftmaxService) useFallback(override *bool) bool {
	if override != nil {
		return *override
	}
	return s.fallback
}

func (s *SoftmaxService) Softmax(ctx context.Context, req SoftmaxRequest) (*Outcome, error) {
	if len(req.Sequences) == 0 {
		return nil, newInvalidRequest("sequences must not be empty")
	}
	opts := s.options(req)

	var res *offload.Result
	err := s.guard.WithPort(ctx, func(p transport.Port) error {
		var err error
		res, err = offload.New(p, opts, s.log).Run(ctx, req.Sequences)
		return err
	})
	if err == nil {
		return &Outcome{Result: res, Backend: BackendAccelerator}, nil
	}
	if isCallerError(err) || ctx.Err() != nil || !s.useFallback(req.Fallback) {
		return nil, err
	}

	s.log.Warn("accelerator softmax failed, using fallback", "sequences", len(req.Sequences), "error", err)
	start := time.Now()
	probs, swErr := attention.Software{}.ComputeProbabilities(ctx, req.Sequences)
	if swErr != nil {
		return nil, swErr
	}
	return &Outcome{
		Result: &offload.Result{
			Probabilities: probs,
			Elapsed:       time.Since(start),
		},
		Backend:       BackendSoftware,
		FallbackError: err,
	}, nil
}

func (s *SoftmaxService) Attention(ctx context.Context, req AttentionRequest) ([][]float64, error) {
	if len(req.Q) == 0 {
		return nil, newInvalidRequest("q must not be empty")
	}
	if len(req.K) != len(req.V) {
		return nil, newInvalidRequest("k and v must have the same number of rows")
	}
	if err := checkWidths("q", req.Q, len(req.Q[0])); err != nil {
		return nil, err
	}
	if err := checkWidths("k", req.K, len(req.Q[0])); err != nil {
		return nil, err
	}
	if len(req.V) > 0 {
		if err := checkWidths("v", req.V, len(req.V[0])); err != nil {
			return nil, err
		}
	}
	var pc attention.ProbabilityComputer = &attention.Hardware{
		Guard:   s.guard,
		Options: s.opts,
		Logger:  s.log,
	}
	if s.useFallback(req.Fallback) {
		pc = &attention.Fallback{Primary: pc, Secondary: attention.Software{}, Logger: s.log}
	}
	return attention.Attend(ctx, req.Q, req.K, req.V, pc)
}

func checkWidths(name string, rows [][]float64, want int) error {
	for i, row := range rows {
		if len(row) != want {
			return newInvalidRequest(fmt.Sprintf("%s[%d] has %d columns, want %d", name, i, len(row), want))
		}
	}
	return nil
}

func (s *SoftmaxService) PortName() string {
	return s.portName
}
