package api

import (
	"bytes"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/smxoffload/internal/device"
	"github.com/samcharles93/smxoffload/internal/logger"
	"github.com/samcharles93/smxoffload/internal/offload"
	"github.com/samcharles93/smxoffload/internal/transport"
)

func newTestEcho(t *testing.T, r transport.Responder, cfg ServiceConfig, limiter *rate.Limiter) *echo.Echo {
	t.Helper()
	guard := transport.NewGuard(transport.NewLoopback(r))
	log := logger.JSON(&bytes.Buffer{}, slog.LevelDebug)
	service := NewSoftmaxService(guard, cfg, log)
	server := NewServer(NewResultStore(4), service, limiter)
	e := echo.New()
	server.Register(e)
	return e
}

func newDeviceEcho(t *testing.T) *echo.Echo {
	return newTestEcho(t, device.New(device.Softmax, device.Options{}), ServiceConfig{PortName: "loopback"}, nil)
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorEnvelope struct {
	Error ResponseError `json:"error"`
}

func TestSoftmaxGetDeleteLifecycle(t *testing.T) {
	t.Parallel()

	e := newDeviceEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/softmax", `{"sequences":[[0,0,0,0],[1,1,1,1]]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status: got %d body=%s", rec.Code, rec.Body.String())
	}
	created := decodeBody[SoftmaxResponse](t, rec)
	if !strings.HasPrefix(created.ID, "smx_") {
		t.Fatalf("unexpected id %q", created.ID)
	}
	if created.Backend != BackendAccelerator {
		t.Fatalf("backend: got %q", created.Backend)
	}
	if created.Mode != 0 || created.SeqLen != 4 || created.Rows != 1 {
		t.Fatalf("unexpected plan report: mode=%d len=%d rows=%d", created.Mode, created.SeqLen, created.Rows)
	}
	if len(created.Probabilities) != 2 {
		t.Fatalf("expected 2 probability rows, got %d", len(created.Probabilities))
	}
	for _, row := range created.Probabilities {
		for _, p := range row {
			if math.Abs(p-0.25) > 2.0/1024 {
				t.Fatalf("expected uniform probabilities, got %v", row)
			}
		}
	}

	getRec := doJSON(t, e, http.MethodGet, "/v1/softmax/"+created.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d", getRec.Code)
	}
	if got := decodeBody[SoftmaxResponse](t, getRec); got.ID != created.ID {
		t.Fatalf("get id: got %q want %q", got.ID, created.ID)
	}

	delRec := doJSON(t, e, http.MethodDelete, "/v1/softmax/"+created.ID, "")
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status: got %d", delRec.Code)
	}
	if !decodeBody[DeleteResponse](t, delRec).Deleted {
		t.Fatalf("expected deleted=true")
	}

	missing := doJSON(t, e, http.MethodGet, "/v1/softmax/"+created.ID, "")
	if missing.Code != http.StatusNotFound {
		t.Fatalf("get after delete: got %d", missing.Code)
	}
}

func TestSoftmaxStoreFalseSkipsStore(t *testing.T) {
	t.Parallel()

	e := newDeviceEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/softmax", `{"sequences":[[1,2]],"store":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	created := decodeBody[SoftmaxResponse](t, rec)
	if got := doJSON(t, e, http.MethodGet, "/v1/softmax/"+created.ID, ""); got.Code != http.StatusNotFound {
		t.Fatalf("expected unstored result to be missing, got %d", got.Code)
	}
}

func TestSoftmaxErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		body      string
		status    int
		errType   string
		responder transport.Responder
	}{
		{"malformed", `{"sequences":`, http.StatusBadRequest, "invalid_request_error", nil},
		{"empty", `{"sequences":[]}`, http.StatusBadRequest, "invalid_request_error", nil},
		{"unequal", `{"sequences":[[1,2],[1]]}`, http.StatusBadRequest, "invalid_request_error", nil},
		{"too long", `{"sequences":[[` + strings.Repeat("0,", 768) + `0]]}`, http.StatusBadRequest, "invalid_request_error", nil},
		{"strict range", `{"sequences":[[40,0]],"strict":true}`, http.StatusBadRequest, "invalid_request_error", nil},
		{"timeout", `{"sequences":[[1,2]],"timeout_ms":20}`, http.StatusGatewayTimeout, "timeout_error", transport.Silent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := tc.responder
			if r == nil {
				r = device.New(device.Softmax, device.Options{})
			}
			e := newTestEcho(t, r, ServiceConfig{}, nil)
			rec := doJSON(t, e, http.MethodPost, "/v1/softmax", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if got := decodeBody[errorEnvelope](t, rec).Error.Type; got != tc.errType {
				t.Fatalf("error type: got %q want %q", got, tc.errType)
			}
		})
	}
}

func TestSoftmaxFallbackOnTimeout(t *testing.T) {
	t.Parallel()

	cfg := ServiceConfig{
		Options:  offload.Options{Timeout: 20 * time.Millisecond},
		Fallback: true,
	}
	e := newTestEcho(t, transport.Silent, cfg, nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/softmax", `{"sequences":[[0,0]]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[SoftmaxResponse](t, rec)
	if resp.Backend != BackendSoftware {
		t.Fatalf("backend: got %q", resp.Backend)
	}
	if resp.FallbackError == "" {
		t.Fatalf("expected fallback_error to be set")
	}
	if resp.Probabilities[0][0] != 0.5 || resp.Probabilities[0][1] != 0.5 {
		t.Fatalf("unexpected probabilities %v", resp.Probabilities[0])
	}

	// Bad requests never fall back.
	bad := doJSON(t, e, http.MethodPost, "/v1/softmax", `{"sequences":[[1],[1,2]]}`)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("bad request with fallback: got %d", bad.Code)
	}
}

func TestAttentionEndpoint(t *testing.T) {
	t.Parallel()

	e := newDeviceEcho(t)
	body := `{"q":[[1,0],[0,1]],"k":[[0,0],[0,0],[0,0]],"v":[[3,0],[0,3],[3,3]]}`
	rec := doJSON(t, e, http.MethodPost, "/v1/attention", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[AttentionResponse](t, rec)
	if len(resp.Output) != 2 {
		t.Fatalf("expected 2 output rows, got %d", len(resp.Output))
	}
	for _, row := range resp.Output {
		for _, v := range row {
			if math.Abs(v-2) > 0.05 {
				t.Fatalf("expected mean of values, got %v", row)
			}
		}
	}

	bad := doJSON(t, e, http.MethodPost, "/v1/attention", `{"q":[[1,2]],"k":[[1]],"v":[[1]]}`)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("width mismatch: got %d", bad.Code)
	}
}

func TestAttentionStrictRangeErrorSkipsFallback(t *testing.T) {
	t.Parallel()

	cfg := ServiceConfig{Options: offload.Options{Strict: true}, Fallback: true}
	e := newTestEcho(t, device.New(device.Softmax, device.Options{}), cfg, nil)
	// q.k = 100 is outside the Q6.10 range.
	rec := doJSON(t, e, http.MethodPost, "/v1/attention", `{"q":[[10]],"k":[[10],[0]],"v":[[1],[2]]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[errorEnvelope](t, rec).Error.Type; got != "invalid_request_error" {
		t.Fatalf("error type: got %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	e := newTestEcho(t, device.New(device.Softmax, device.Options{}), ServiceConfig{}, limiter)
	if rec := doJSON(t, e, http.MethodPost, "/v1/softmax", `{"sequences":[[1,2]]}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d", rec.Code)
	}
	rec := doJSON(t, e, http.MethodPost, "/v1/softmax", `{"sequences":[[1,2]]}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", rec.Code)
	}
	if got := decodeBody[errorEnvelope](t, rec).Error.Code; got != "rate_limited" {
		t.Fatalf("error code: got %q", got)
	}

	// Health is outside the limited group.
	if health := doJSON(t, e, http.MethodGet, "/v1/health", ""); health.Code != http.StatusOK {
		t.Fatalf("health: got %d", health.Code)
	}
}

func TestResultStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewResultStore(2)
	s.Put(&SoftmaxResponse{ID: "a"})
	s.Put(&SoftmaxResponse{ID: "b"})
	s.Put(&SoftmaxResponse{ID: "c"})
	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if s.Len() != 2 {
		t.Fatalf("len: got %d", s.Len())
	}
	if !s.Delete("b") || s.Delete("b") {
		t.Fatalf("delete should succeed once")
	}
}
