package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"
)

type Server struct {
	store   *ResultStore
	service *SoftmaxService
	limiter *rate.Limiter
	clock   func() time.Time
}

// NewServer builds a Server. A nil limiter disables rate limiting.
func NewServer(store *ResultStore, service *SoftmaxService, limiter *rate.Limiter) *Server {
	if store == nil {
		store = NewResultStore(0)
	}
	return &Server{
		store:   store,
		service: service,
		limiter: limiter,
		clock:   time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/health", s.handleHealth)

	v1 := e.Group("/v1", s.rateLimit)
	v1.POST("/softmax", s.handleSoftmax)
	v1.GET("/softmax/:id", s.handleGetSoftmax)
	v1.DELETE("/softmax/:id", s.handleDeleteSoftmax)
	v1.POST("/attention", s.handleAttention)
}

// rateLimit sheds load before requests queue on the single serial port.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many requests", "", "rate_limited")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	port := ""
	if s.service != nil {
		port = s.service.PortName()
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Port: port})
}

func (s *Server) handleSoftmax(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "softmax service not configured", "", "")
	}
	req, err := decodeJSON[SoftmaxRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	out, err := s.service.Softmax(c.Request().Context(), req)
	if err != nil {
		return writeServiceError(c, err)
	}

	res := out.Result
	resp := &SoftmaxResponse{
		ID:            newSoftmaxID(),
		Object:        "softmax",
		CreatedAt:     s.clock().Unix(),
		Backend:       out.Backend,
		SeqLen:        len(req.Sequences[0]),
		Rows:          res.Rows,
		Depths:        res.Depths,
		ElapsedMS:     float64(res.Elapsed.Microseconds()) / 1000,
		Probabilities: res.Probabilities,
	}
	if out.Backend == BackendAccelerator {
		resp.Mode = int(res.Mode)
	} else {
		resp.Mode = -1
	}
	if out.FallbackError != nil {
		resp.FallbackError = out.FallbackError.Error()
	}
	if req.Store == nil || *req.Store {
		s.store.Put(resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetSoftmax(c *echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return writeNotFound(c, "result not found")
	}
	resp, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, "result not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteSoftmax(c *echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || !s.store.Delete(id) {
		return writeNotFound(c, "result not found")
	}
	return c.JSON(http.StatusOK, DeleteResponse{
		ID:      id,
		Object:  "softmax",
		Deleted: true,
	})
}

func (s *Server) handleAttention(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "softmax service not configured", "", "")
	}
	req, err := decodeJSON[AttentionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	out, err := s.service.Attention(c.Request().Context(), req)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, AttentionResponse{
		ID:     newSoftmaxID(),
		Object: "attention",
		Output: out,
	})
}
