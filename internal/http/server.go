package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"lifedesk/internal/app"
	"lifedesk/internal/auth"
	"lifedesk/internal/cache"
	"lifedesk/internal/calendar"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/middleware/ratelimit"
	"lifedesk/internal/middleware/security"
	"lifedesk/internal/middleware/trace"
)

// Options configure NewServer.
type Options struct {
	Addr string
	Deps app.Deps

	Guard         auth.Guard
	SecureCookies bool

	SessionCacheSize int
	SessionTTL       time.Duration

	RateLimit  ratelimit.Config
	LoginLimit ratelimit.Config

	// Ready reports whether dependencies are usable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server is the backend-for-frontend: it keeps one app.Session per access
// token and exposes the stores as JSON endpoints.
type Server struct {
	http.Server

	deps       app.Deps
	guard      auth.Guard
	cookieOpts auth.CookieOptions
	ready      func(ctx context.Context) error
	logger     *log.Logger
	started    time.Time

	sessions *cache.LRUCache[*app.Session]
	caches   *cache.Manager

	limiter      *ratelimit.Limiter
	loginLimiter *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Deps.Logger
	if logger == nil {
		logger = log.Nop()
	}
	if opts.Deps.Calendar == nil {
		opts.Deps.Calendar = calendar.BusinessDay(calendar.DefaultOffsetHours)
	}
	if opts.Deps.Clock == nil {
		opts.Deps.Clock = time.Now
	}
	if opts.SessionCacheSize <= 0 {
		opts.SessionCacheSize = 500
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.RateLimit.Requests <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	if opts.LoginLimit.Requests <= 0 {
		opts.LoginLimit = ratelimit.LoginConfig()
	}

	httpLogger := logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		deps:         opts.Deps,
		guard:        opts.Guard,
		cookieOpts:   auth.CookieOptions{Secure: opts.SecureCookies},
		ready:        opts.Ready,
		logger:       httpLogger,
		started:      time.Now(),
		caches:       cache.NewManager(logger),
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		loginLimiter: ratelimit.NewLimiter(opts.LoginLimit),
		detector:     security.NewDetector(logger),
	}
	s.sessions = cache.NewLRUCache[*app.Session](opts.SessionCacheSize, opts.SessionTTL,
		cache.WithSlidingExpiry[*app.Session](),
		cache.WithEvictHook(func(_ string, sess *app.Session) {
			httpLogger.Debug("Session evicted", log.FieldUserID, sess.UserID())
		}))
	s.caches.Register(s.sessions)
	s.caches.StartCleanup(10 * time.Minute)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	s.routes(mux)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = mux
	handler = headers.Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = trace.LoggerMiddleware(httpLogger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, security.NoStore(s.limit(s.limiter, h)))
	}
	authed := func(pattern string, h sessionHandler) {
		api(pattern, s.withSession(h))
	}

	mux.Handle("POST /api/login", security.NoStore(s.limit(s.loginLimiter, http.HandlerFunc(s.handleLogin))))
	mux.Handle("POST /api/set-cookie", security.NoStore(s.limit(s.limiter, auth.MirrorHandler(s.cookieOpts, s.logger))))
	api("POST /api/logout", s.handleLogout)
	authed("GET /api/me", s.handleMe)
	authed("GET /api/overview", s.handleOverview)

	authed("GET /api/todos", s.handleListTodos)
	authed("POST /api/todos", s.handleAddTodo)
	authed("PATCH /api/todos/{id}", s.handleUpdateTodo)
	authed("DELETE /api/todos/{id}", s.handleDeleteTodo)

	authed("GET /api/moods", s.handleListMoods)
	authed("GET /api/moods/today", s.handleTodayMood)
	authed("GET /api/moods/stats", s.handleMoodStats)
	authed("GET /api/moods/{date}", s.handleMoodByDate)
	authed("PUT /api/moods/{date}", s.handleUpsertMood)

	authed("GET /api/words", s.handleListWords)
	authed("GET /api/words/today", s.handleWordOfDay)
	authed("PUT /api/words/level", s.handleSetLevel)
	authed("GET /api/words/favorites", s.handleFavorites)
	authed("POST /api/words/{id}/favorite", s.handleToggleFavorite)

	authed("GET /api/dashboard", s.handleDashboard)
	authed("GET /api/statistics", s.handleStatistics)
	authed("GET /api/transactions", s.handleListTransactions)
	authed("POST /api/transactions", s.handleCreateTransaction)
	authed("GET /api/transactions/{id}", s.handleTransactionDetail)
	authed("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	authed("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.Handle("/api/", security.NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no such endpoint").Write(w)
	})))
	mux.Handle("/", s.guard.Middleware(http.HandlerFunc(s.handlePage)))
}

func (s *Server) limit(l *ratelimit.Limiter, next http.Handler) http.Handler {
	return l.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		TooManyRequestsError("Rate limit exceeded. Please try again later.").Write(w)
	})(next)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *app.Session)

// withSession resolves the caller's session from the bearer token or cookie.
// A token the backend rejects drops any cached session for it.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), log.LoggerContextKey,
			log.FromContext(r.Context()).With(log.FieldUserID, sess.UserID()))
		h(w, r.WithContext(ctx), sess)
	}
}

func (s *Server) session(r *http.Request) (*app.Session, error) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		return nil, errUnauthenticated
	}
	if sess, ok := s.sessions.Get(token); ok {
		return sess, nil
	}

	user, err := s.deps.Provider.CurrentUser(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return s.sessions.GetOrCreate(token, func() (*app.Session, error) {
		s.logger.InfoContext(r.Context(), "Session started", log.FieldUserID, user.UserID())
		return app.NewSession(r.Context(), s.deps, token, user), nil
	})
}

func (s *Server) today() core.Date {
	return s.deps.Calendar.Today(s.deps.Clock())
}

// Sessions reports how many sessions are cached.
func (s *Server) Sessions() int {
	return s.sessions.Size()
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		s.loginLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
