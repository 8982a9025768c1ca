package strapi

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a response whose status is outside 2xx. Message carries the
// backend's own error text when it sent one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("strapi: status %d", e.Status)
	}
	return fmt.Sprintf("strapi: status %d: %s", e.Status, e.Message)
}

// NetworkError means the request never completed: DNS, connect, timeout,
// cancellation or an unreadable body.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("strapi: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsUnauthorized reports whether the backend rejected the token.
func IsUnauthorized(err error) bool {
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}

// StatusOf returns the HTTP status carried by an *APIError, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// errorBody is the backend's error envelope:
// {"data":null,"error":{"status":400,"name":"ValidationError","message":"..."}}
type errorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}
