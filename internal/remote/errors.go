package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the remote API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("remote returned %d: %s", e.StatusCode, e.Message)
}

func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.Message = payload.Message
		if e.Message == "" {
			e.Message = payload.Error
		}
	}
	return e
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsClientError reports a 4xx response; such requests are never retried.
func IsClientError(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500
}

// IsCanceled reports a caller-side cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTransient reports failures worth retrying later: transport errors,
// timeouts and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || IsCanceled(err) || IsClientError(err) {
		return false
	}
	return true
}
