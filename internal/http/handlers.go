package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lifedesk/internal/app"
	"lifedesk/internal/auth"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["dependencies"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["dependencies"] = "ok"
		}
	}
	checks["sessions"] = map[string]any{
		"entries": s.sessions.Size(),
		"status":  "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().Status(httpStatus).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides server and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	loginLimitMetrics := s.loginLimiter.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP sessions Current cached sessions\n")
	fmt.Fprintf(w, "# TYPE sessions gauge\n")
	fmt.Fprintf(w, "sessions %d\n\n", s.sessions.Size())

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total{bucket=\"api\"} %d\n", rateLimitMetrics.TotalHits)
	fmt.Fprintf(w, "rate_limit_hits_total{bucket=\"login\"} %d\n\n", loginLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", time.Since(s.started).Seconds())
}

type pageResponse struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// handlePage answers for guarded page paths with the page title only.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Header("Allow", "GET, HEAD").Write(w)
		return
	}
	NewResponse().Data(pageResponse{Path: r.URL.Path, Title: core.PageTitle(r.URL.Path)}).Write(w)
}

type loginResponse struct {
	JWT  string    `json:"jwt"`
	User core.User `json:"user"`
}

// handleLogin exchanges credentials for a token, stores it in the cookie and
// starts the session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	identifier := p.Get("identifier")
	password := p.Get("password")
	if identifier == "" || password == "" {
		UnprocessableEntityError("identifier and password are required").Write(w)
		return
	}

	res, err := s.deps.Provider.Login(r.Context(), identifier, password)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Login failed",
			log.FieldOperation, log.OpLogin,
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldError, err)
		writeError(w, r, err)
		return
	}

	s.sessions.Set(res.JWT, app.NewSession(r.Context(), s.deps, res.JWT, res.User))
	auth.SetTokenCookie(w, res.JWT, s.cookieOpts)
	s.logger.InfoContext(r.Context(), "User logged in",
		log.FieldOperation, log.OpLogin,
		log.FieldUserID, res.User.UserID())
	NewResponse().Data(loginResponse{JWT: res.JWT, User: res.User}).Write(w)
}

// handleLogout forgets the session of the presented token and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if sess, ok := s.sessions.Get(token); ok {
			sess.Close(r.Context())
		}
		s.sessions.Delete(token)
	}
	auth.ClearTokenCookie(w, s.cookieOpts)
	NewResponse().Data(map[string]bool{"success": true}).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	NewResponse().Data(sess.User).Write(w)
}

// handleOverview refreshes every store for the home screen.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	ov, err := sess.Refresh(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(ov).Write(w)
}
