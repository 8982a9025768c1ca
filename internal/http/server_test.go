package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedesk/internal/amqp"
	"lifedesk/internal/app"
	"lifedesk/internal/auth"
	"lifedesk/internal/backend"
	"lifedesk/internal/backend/memory"
	"lifedesk/internal/core"
	"lifedesk/internal/storage"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.TransactionChangedMessage
}

func (p *recordingPublisher) PublishTransactionChanged(_ context.Context, msg *amqp.TransactionChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) actions() []amqp.ChangeAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.ChangeAction, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Action)
	}
	return out
}

type testEnv struct {
	srv   *Server
	store *memory.Store
	local *storage.Memory
	pub   *recordingPublisher
	user  core.User
	token string
}

// 03:00 UTC is still 2025-04-10 on the +9h business calendar.
var fixedNow = time.Date(2025, 4, 10, 3, 0, 0, 0, time.UTC)

func newTestEnv(t testing.TB, mutate ...func(*Options)) *testEnv {
	t.Helper()
	store := memory.New([]core.WordAttributes{{Word: "bright", Level: core.Easy}})
	user := store.AddUser("ana", "ana@example.com", "secret")
	env := &testEnv{
		store: store,
		local: storage.NewMemory(),
		pub:   &recordingPublisher{},
		user:  user,
		token: store.IssueToken(user.ID),
	}
	opts := Options{
		Addr: ":0",
		Deps: app.Deps{
			Provider:  backend.NewMemoryProvider(store),
			Local:     env.local,
			Clock:     func() time.Time { return fixedNow },
			Publisher: env.pub,
		},
		Guard: auth.Guard{
			Protected:  []string{"/", "/dashboard", "/transactions"},
			AuthRoutes: []string{"/login", "/register"},
			LoginPath:  "/login",
			HomePath:   "/",
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	env.srv = NewServer(opts)
	t.Cleanup(func() {
		_ = env.srv.Shutdown(context.Background())
	})
	return env
}

func (e *testEnv) do(t testing.TB, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, sonic.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])

	rr = env.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	down := newTestEnv(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("content api unreachable") }
	})
	rr = down.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", "", "")

	rr := env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestResponsesCarrySecurityAndTraceHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/me", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestPagesFollowRouteGuard(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		path     string
		token    string
		status   int
		location string
		title    string
	}{
		{name: "protected without token", path: "/dashboard", status: http.StatusTemporaryRedirect, location: "/login"},
		{name: "protected nested path", path: "/transactions/new", status: http.StatusTemporaryRedirect, location: "/login"},
		{name: "home without token", path: "/", status: http.StatusTemporaryRedirect, location: "/login"},
		{name: "protected with token", path: "/dashboard", token: env.token, status: http.StatusOK, title: "Dashboard"},
		{name: "login while signed in", path: "/login", token: env.token, status: http.StatusTemporaryRedirect, location: "/"},
		{name: "login while signed out", path: "/login", status: http.StatusOK, title: "Log In"},
		{name: "public page", path: "/about", status: http.StatusOK, title: "Page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.path, "", tt.token)
			assert.Equal(t, tt.status, rr.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rr.Header().Get("Location"))
			}
			if tt.title != "" {
				assert.Equal(t, tt.title, decode[pageResponse](t, rr).Title)
			}
		})
	}
}

func TestPageRejectsWrites(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/about", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/login", `{"identifier":"ana@example.com","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[loginResponse](t, rr)
	assert.NotEmpty(t, res.JWT)
	assert.Equal(t, env.user.ID, res.User.ID)
	assert.Equal(t, 1, env.srv.Sessions())

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, res.JWT, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	// The cookie alone authenticates API calls.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "ana", decode[core.User](t, me).Username)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/login", `{"identifier":"ana","password":"wrong"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid identifier or password", decode[ErrorBody](t, rr).Error)

	rr = env.do(t, http.MethodPost, "/api/login", `{"identifier":"ana"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/login", `{"identifier":`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, env.srv.Sessions())
}

func TestAPIRequiresValidToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/todos", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/todos", "", "mem-unknown")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 0, env.srv.Sessions())
}

func TestSessionsAreReusedPerToken(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/me", "", env.token)
	env.do(t, http.MethodGet, "/api/todos", "", env.token)
	assert.Equal(t, 1, env.srv.Sessions())

	other := env.store.IssueToken(env.user.ID)
	env.do(t, http.MethodGet, "/api/me", "", other)
	assert.Equal(t, 2, env.srv.Sessions())
}

func TestLogoutDropsSession(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/todos", `{"content":"call mom"}`, env.token)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, 1, env.srv.Sessions())

	rr = env.do(t, http.MethodPost, "/api/logout", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, env.srv.Sessions())

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)

	keys, err := env.local.Keys(context.Background(), "user/")
	require.NoError(t, err)
	for _, k := range keys {
		assert.NotContains(t, k, "todo-storage")
	}
}

func TestSetCookieMirror(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/set-cookie", `{"name":"accessToken","value":"abc","action":"set"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode[map[string]bool](t, rr)["success"])

	rr = env.do(t, http.MethodPost, "/api/set-cookie", `{"name":"other","value":"abc","action":"set"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTodoEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/todos", `{"content":"buy milk"}`, env.token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	todo := decode[core.Todo](t, rr)
	assert.Equal(t, "buy milk", todo.Attributes.Content)
	assert.Equal(t, env.user.UserID(), todo.Attributes.UserID)

	rr = env.do(t, http.MethodPost, "/api/todos", `{"content":"   "}`, env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/todos", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Todo](t, rr), 1)

	path := "/api/todos/" + core.RefOf(todo.ID).String()
	rr = env.do(t, http.MethodPatch, path, `{"isCompleted":true}`, env.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[core.Todo](t, rr)
	assert.True(t, updated.Attributes.IsCompleted)
	assert.Equal(t, "buy milk", updated.Attributes.Content)

	rr = env.do(t, http.MethodPatch, path, `{}`, env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPatch, path, `{"isCompleted":"maybe"}`, env.token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodDelete, path, "", env.token)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = env.do(t, http.MethodDelete, path, "", env.token)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/todos", "", env.token)
	assert.Empty(t, decode[[]core.Todo](t, rr))
}

func TestMoodEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPut, "/api/moods/2025-04-10", `{"emoji":"smile","memo":"ok"}`, env.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Good", decode[moodDayResponse](t, rr).Label)

	rr = env.do(t, http.MethodPut, "/api/moods/2025-04-10", `{"emoji":"laugh","memo":"better"}`, env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, env.store.MoodCount(env.user.UserID(), mustDate("2025-04-10")))

	rr = env.do(t, http.MethodGet, "/api/moods/today", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	today := decode[moodDayResponse](t, rr)
	assert.Equal(t, "2025-04-10", today.Date.String())
	require.NotNil(t, today.Mood)
	assert.Equal(t, core.Laugh, today.Mood.Attributes.Emoji)

	rr = env.do(t, http.MethodGet, "/api/moods/2025-04-09", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, decode[moodDayResponse](t, rr).Mood)

	rr = env.do(t, http.MethodPut, "/api/moods/2025-04-10", `{"emoji":"sparkles"}`, env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/moods/2025-13-40", "", env.token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/moods/stats", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[core.MoodStats](t, rr)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, core.Laugh, stats.MostFrequent)
}

func TestWordEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/words/today", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	wod := decode[wordOfDayResponse](t, rr)
	require.NotNil(t, wod.Word)
	assert.Equal(t, "bright", wod.Word.Attributes.Word)
	assert.Equal(t, core.Easy, wod.Level)

	path := "/api/words/" + core.RefOf(wod.Word.ID).String() + "/favorite"
	rr = env.do(t, http.MethodPost, path, "", env.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[favoriteResponse](t, rr).Favorite)

	rr = env.do(t, http.MethodGet, "/api/words/favorites", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int64{wod.Word.ID}, decode[map[string][]int64](t, rr)["favorites"])

	rr = env.do(t, http.MethodPost, path, "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[favoriteResponse](t, rr).Favorite)

	rr = env.do(t, http.MethodPut, "/api/words/level", `{"level":"hard"}`, env.token)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/words/today", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode[wordOfDayResponse](t, rr)
	assert.True(t, empty.NoData)
	assert.Equal(t, core.Hard, empty.Level)

	rr = env.do(t, http.MethodPut, "/api/words/level", `{"level":"expert"}`, env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/words?level=easy", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Word](t, rr), 1)
}

func TestTransactionEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/transactions",
		`{"type":"EXPENSE","amount":"12,000","category":"food","memo":"lunch","date":"2025-04-10"}`, env.token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	tx := decode[core.Transaction](t, rr)
	assert.Equal(t, core.Money(12000), tx.Attributes.Amount)
	assert.Equal(t, core.Expense, tx.Attributes.Type)

	rr = env.do(t, http.MethodPost, "/api/transactions", `{"type":"income","amount":"3000","category":"gift"}`, env.token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "2025-04-10", decode[core.Transaction](t, rr).Attributes.Date.String())

	assert.Equal(t, []amqp.ChangeAction{amqp.ActionCreated, amqp.ActionCreated}, env.pub.actions())

	rr = env.do(t, http.MethodPost, "/api/transactions", `{"type":"expense","amount":"abc","category":"food"}`, env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/transactions", `{"type":"gift","amount":"10","category":"food"}`, env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/transactions?view=monthly&date=2025-04", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Transaction](t, rr), 2)

	rr = env.do(t, http.MethodGet, "/api/transactions?view=monthly&date=2025-04&type=income", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Transaction](t, rr), 1)

	rr = env.do(t, http.MethodGet, "/api/transactions?view=daily", "", env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/transactions?view=weekly", "", env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/dashboard", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	dash := decode[core.DashboardData](t, rr)
	assert.Equal(t, core.Money(3000), dash.TodaySummary.TotalIncome)
	assert.Equal(t, core.Money(12000), dash.TodaySummary.TotalExpense)
	assert.Equal(t, core.Money(-9000), dash.TodaySummary.Balance)

	rr = env.do(t, http.MethodGet, "/api/statistics?month=2025-04", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2025-04", decode[core.MonthlyStatistics](t, rr).YearMonth)

	rr = env.do(t, http.MethodGet, "/api/statistics?month=2025-4x", "", env.token)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	path := "/api/transactions/" + core.RefOf(tx.ID).String()
	rr = env.do(t, http.MethodGet, path, "", env.token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, tx.ID, decode[core.Transaction](t, rr).ID)

	rr = env.do(t, http.MethodGet, "/api/transactions/999", "", env.token)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPut, path,
		`{"type":"expense","amount":"15000","category":"food","date":"2025-04-10"}`, env.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, core.Money(15000), decode[core.Transaction](t, rr).Attributes.Amount)

	rr = env.do(t, http.MethodDelete, path, "", env.token)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, []amqp.ChangeAction{
		amqp.ActionCreated, amqp.ActionCreated, amqp.ActionUpdated, amqp.ActionDeleted,
	}, env.pub.actions())
}

func TestOverview(t *testing.T) {
	env := newTestEnv(t)
	env.store.CreateTodo(context.Background(), core.TodoInput{Content: "stretch", UserID: env.user.UserID()})

	rr := env.do(t, http.MethodGet, "/api/overview", "", env.token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	ov := decode[app.Overview](t, rr)
	assert.Len(t, ov.Todos, 1)
	require.NotNil(t, ov.Word)
	assert.Equal(t, "bright", ov.Word.Attributes.Word)
	assert.Nil(t, ov.TodayMood)
}

func TestUpstreamFailureMapsToStatus(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/me", "", env.token)

	env.store.FailNext("ListMoods", errors.New("boom"))
	rr := env.do(t, http.MethodGet, "/api/moods", "", env.token)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", decode[ErrorBody](t, rr).Error)
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/unknown", "", env.token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestLoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.LoginLimit.Requests = 2
		o.LoginLimit.Window = time.Minute
		o.LoginLimit.CleanupInterval = time.Minute
	})

	body := `{"identifier":"ana","password":"wrong"}`
	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodPost, "/api/login", body, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/api/login", body, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

// mustDate parses a YYYY-MM-DD literal known to be valid.
func mustDate(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
