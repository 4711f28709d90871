package middleware

import (
	"errors"
	"net/http"

	"github.com/emicklei/go-restful/v3"
)

var (
	ErrEmptyQuery           = errors.New("query cannot be empty")
	ErrQueryTooLong         = errors.New("query exceeds the maximum length")
	ErrInvalidSessionID     = errors.New("invalid session id")
	ErrResultNotFound       = errors.New("no saved result for this session")
	ErrStreamingUnsupported = errors.New("streaming not supported")
)

type ErrorResponse struct {
	Error   string `json:"error" description:"Error message"`
	Code    int    `json:"code" description:"HTTP status code"`
	Details string `json:"details" description:"Additional error details"`
}

func HandleError(resp *restful.Response, err error, code int) {
	resp.WriteHeaderAndEntity(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Details: err.Error(),
	})
}

// StatusFor maps the package sentinel errors to an HTTP status.
func StatusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, ErrEmptyQuery),
		errors.Is(err, ErrQueryTooLong),
		errors.Is(err, ErrInvalidSessionID):
		return http.StatusBadRequest
	case errors.Is(err, ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStreamingUnsupported):
		return http.StatusInternalServerError
	default:
		return fallback
	}
}
