package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/smxoffload/internal/offload"
	"github.com/samcharles93/smxoffload/internal/plan"
	"github.com/samcharles93/smxoffload/internal/transport"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// isCallerError reports whether err is the caller's fault and would fail
// the same way in software.
func isCallerError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || offload.IsCallerError(err)
}

// classify maps an error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case isCallerError(err):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, transport.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout_error"
	case errors.Is(err, plan.ErrReassembly):
		return http.StatusInternalServerError, "server_error"
	default:
		return http.StatusBadGateway, "device_error"
	}
}
