package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/services"
	"lifedesk/internal/strapi"
)

var errUnauthenticated = errors.New("sign in required")

// validationErrors are the input problems answered with 422.
var validationErrors = []error{
	core.ErrEmptyContent,
	core.ErrEmptyUser,
	core.ErrInvalidEmoji,
	core.ErrInvalidLevel,
	core.ErrInvalidTransactionType,
	core.ErrInvalidAmount,
	core.ErrEmptyCategory,
	core.ErrInvalidDate,
	core.ErrMissingDate,
	services.ErrInvalidView,
}

// statusFor maps an error from a store or the backend to a response status
// and the message shown to the caller.
func statusFor(err error) (int, string) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, err.Error()
		}
	}

	var apiErr *strapi.APIError
	var netErr *strapi.NetworkError
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrNoWords):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &apiErr):
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Status)
		}
		return apiErr.Status, msg
	case errors.As(err, &netErr):
		return http.StatusBadGateway, "the content server could not be reached"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError logs err and answers with its mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err, "status", status)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldError, err, "status", status)
	}
	ErrorResponse(status, msg).Write(w)
}

// pathID reads a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
