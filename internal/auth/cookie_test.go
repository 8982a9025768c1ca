package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  CookieRequest
		err  error
	}{
		{"set", CookieRequest{Name: CookieName, Value: "jwt", Action: ActionSet}, nil},
		{"delete", CookieRequest{Name: CookieName, Action: ActionDelete}, nil},
		{"other cookie", CookieRequest{Name: "session", Value: "x", Action: ActionSet}, ErrCookieName},
		{"unknown action", CookieRequest{Name: CookieName, Value: "x", Action: "rotate"}, ErrCookieAction},
		{"set without value", CookieRequest{Name: CookieName, Action: ActionSet}, ErrCookieValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatalf("cookie %s not set", CookieName)
	return nil
}

func TestMirrorHandler(t *testing.T) {
	h := MirrorHandler(CookieOptions{Secure: true}, nil)

	t.Run("set", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/set-cookie",
			strings.NewReader(`{"name":"accessToken","value":"jwt-1","action":"set"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		c := findCookie(t, rec)
		assert.Equal(t, "jwt-1", c.Value)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, "/", c.Path)
		assert.Greater(t, c.MaxAge, 0)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/set-cookie",
			strings.NewReader(`{"name":"accessToken","action":"delete"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		c := findCookie(t, rec)
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	})

	t.Run("rejects other cookies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/set-cookie",
			strings.NewReader(`{"name":"theme","value":"dark","action":"set"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/set-cookie", strings.NewReader(`{`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/set-cookie", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	})
}
