// Package auth decides which pages need a signed-in user and carries the
// access token between the browser cookie and the backend.
package auth

import (
	"net/http"
	"strings"
)

// MatchMode selects how a pathname is compared with a protected route.
type MatchMode int

const (
	// MatchStartsWith protects a route and everything below it.
	MatchStartsWith MatchMode = iota
	// MatchExact protects only the route itself.
	MatchExact
)

// IsProtectedRoute reports whether pathname falls under one of routes. The
// root route "/" only ever matches itself, otherwise it would cover every path.
// Prefix matching is literal: "/profile" also covers "/profiles".
func IsProtectedRoute(pathname string, routes []string, match MatchMode) bool {
	for _, route := range routes {
		if route == "/" {
			if pathname == "/" {
				return true
			}
			continue
		}
		if match == MatchExact {
			if pathname == route {
				return true
			}
			continue
		}
		if strings.HasPrefix(pathname, route) {
			return true
		}
	}
	return false
}

// Action is the outcome of a guard decision.
type Action int

const (
	Pass Action = iota
	RedirectToLogin
	RedirectToHome
)

// Decision says what to do with a page request and where to send it.
type Decision struct {
	Action   Action
	Location string
}

// Guard holds the static route lists.
type Guard struct {
	Protected  []string
	AuthRoutes []string
	LoginPath  string
	HomePath   string
	Match      MatchMode
}

// Decide sends unauthenticated users away from protected pages and
// authenticated users away from the login and sign-up pages.
func (g Guard) Decide(pathname string, authenticated bool) Decision {
	if !authenticated && IsProtectedRoute(pathname, g.Protected, g.Match) {
		return Decision{Action: RedirectToLogin, Location: g.loginPath()}
	}
	if authenticated && IsProtectedRoute(pathname, g.AuthRoutes, MatchExact) {
		return Decision{Action: RedirectToHome, Location: g.homePath()}
	}
	return Decision{Action: Pass}
}

func (g Guard) loginPath() string {
	if g.LoginPath == "" {
		return "/login"
	}
	return g.LoginPath
}

func (g Guard) homePath() string {
	if g.HomePath == "" {
		return "/"
	}
	return g.HomePath
}

// Middleware applies Decide to every request, reading authentication from
// the access token cookie. Redirects keep the method (307).
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r.URL.Path, Authenticated(r))
		if d.Action != Pass {
			http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}
