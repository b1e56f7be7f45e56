package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents an error response from the API. Problem responses
// (RFC 7807) fill Title and Detail; enveloped responses fill Detail only.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	title := e.Title
	if title == "" {
		title = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", title, e.Detail)
	}
	return title
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsValidationError returns true if the server rejected the request body.
func (e *APIError) IsValidationError() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
}

// IsUnavailable returns true if the server reported it is not ready.
func (e *APIError) IsUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

func decodeError(status int, body []byte) error {
	var problem APIError
	if json.Unmarshal(body, &problem) == nil && (problem.Title != "" || problem.Detail != "") {
		problem.StatusCode = status
		return &problem
	}

	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return &APIError{StatusCode: status, Detail: env.Error}
	}

	return &APIError{
		StatusCode: status,
		Detail:     strings.TrimSpace(string(body)),
	}
}
