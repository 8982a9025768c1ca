package auth

import (
	"errors"
	"net/http"
	"time"

	"lifedesk/internal/log"

	"github.com/bytedance/sonic"
)

const (
	ActionSet    = "set"
	ActionDelete = "delete"

	maxMirrorBody = 16 << 10
)

// CookieRequest is the body of the token mirror endpoint.
type CookieRequest struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Action string `json:"action"`
}

var (
	ErrCookieName   = errors.New("only the access token cookie can be mirrored")
	ErrCookieAction = errors.New("action must be set or delete")
	ErrCookieValue  = errors.New("value is required to set the cookie")
)

// Validate checks the mirror request.
func (c CookieRequest) Validate() error {
	if c.Name != CookieName {
		return ErrCookieName
	}
	switch c.Action {
	case ActionSet:
		if c.Value == "" {
			return ErrCookieValue
		}
	case ActionDelete:
	default:
		return ErrCookieAction
	}
	return nil
}

// CookieOptions shape the access token cookie.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

// SetTokenCookie stores token in an HTTP-only cookie readable by the guard.
func SetTokenCookie(w http.ResponseWriter, token string, opts CookieOptions) {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTokenCookie expires the access token cookie.
func ClearTokenCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// MirrorHandler serves POST requests that copy a token the client already
// holds into the cookie, or remove it.
func MirrorHandler(opts CookieOptions, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentAuth)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		var req CookieRequest
		if err := sonic.ConfigDefault.NewDecoder(http.MaxBytesReader(w, r.Body, maxMirrorBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if err := req.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if req.Action == ActionSet {
			SetTokenCookie(w, req.Value, opts)
		} else {
			ClearTokenCookie(w, opts)
		}
		logger.InfoContext(r.Context(), "Token cookie mirrored", "action", req.Action)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(v)
}
