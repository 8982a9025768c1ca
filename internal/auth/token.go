package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie the guard reads the access token from.
const CookieName = "accessToken"

var ErrNoToken = errors.New("no access token")

// TokenFromRequest returns the bearer token of an API call, falling back to
// the access token cookie set for page navigation.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Authenticated is true when a token is present and, if it is a JWT carrying
// an expiry, that expiry has not passed. Opaque tokens count as present.
func Authenticated(r *http.Request) bool {
	token := TokenFromRequest(r)
	if token == "" {
		return false
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return true
	}
	return !claims.Expired(time.Now())
}

// Claims is what the BFF reads from an access token. Signatures are checked
// by the backend on every call, not here.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carried an expiry before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// ParseClaims decodes a JWT without verifying it. The user id comes from the
// "id" claim, falling back to "sub".
func ParseClaims(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrNoToken
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	var out Claims
	switch id := mc["id"].(type) {
	case float64:
		out.UserID = strconv.FormatInt(int64(id), 10)
	case string:
		out.UserID = id
	}
	if out.UserID == "" {
		if sub, err := mc.GetSubject(); err == nil {
			out.UserID = sub
		}
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	return out, nil
}
