package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable indicates the voxclone server is not reachable.
var ErrUnavailable = errors.New("server unavailable")

// ErrTimeout indicates the server took too long to respond.
var ErrTimeout = errors.New("server timeout")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Detail)
}

// IsAPIError checks if an error is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// newAPIError extracts the detail message of an error body, falling back to
// the raw body when it is not the {"detail": ...} shape.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return &APIError{StatusCode: status, Detail: payload.Detail}
	}
	return &APIError{StatusCode: status, Detail: strings.TrimSpace(string(body))}
}
