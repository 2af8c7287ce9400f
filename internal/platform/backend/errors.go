package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is returned for any non-2xx backend response.
type APIError struct {
	Endpoint   Endpoint
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error %d: %s", e.StatusCode, e.Body)
}

// User-facing copy for well-known failures.
const (
	MsgUnavailable  = "Service temporarily unavailable. Please try again later."
	MsgInvalidInput = "Invalid request. Please check your input and try again."
	MsgServerError  = "Server error. Please try again later."
	MsgUnexpected   = "An unexpected error occurred."
)

// FormatAPIError maps backend failures to user-facing copy. Unknown failures pass
// their message through.
func FormatAPIError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusServiceUnavailable:
			return MsgUnavailable
		case http.StatusBadRequest:
			return MsgInvalidInput
		case http.StatusInternalServerError:
			return MsgServerError
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "503"):
		return MsgUnavailable
	case strings.Contains(msg, "400"):
		return MsgInvalidInput
	case strings.Contains(msg, "500"):
		return MsgServerError
	case msg == "":
		return MsgUnexpected
	}
	return msg
}
