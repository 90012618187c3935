package middleware

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/department-admin/internal/config"
	"github.com/iliyamo/department-admin/internal/logger"
	"github.com/iliyamo/department-admin/internal/model"
	"github.com/iliyamo/department-admin/internal/utils"
)

const testSecret = "test-secret"

type userMap map[uint64]model.User

func (m userMap) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := m[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

type allowList map[string]bool

func (a allowList) Authorize(_ context.Context, p model.Principal, perm string) bool {
	return !p.IsZero() && a[p.RoleID.String()+":"+perm]
}

func token(t *testing.T, id uint64, role model.RoleID) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, id, role, time.Minute)
	require.NoError(t, err)
	return tok.Token
}

func newServer(users userMap, authz allowList) *echo.Echo {
	e := echo.New()
	g := e.Group("/api", Session(SessionConfig{Secret: testSecret, Cookie: "session"}, users))
	g.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, PrincipalFrom(c))
	})
	g.POST("/labs", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, RequirePermission(authz, model.PermCreateLab))
	return e
}

func TestSession(t *testing.T) {
	users := userMap{
		7: {ID: 7, Email: "s@uni.edu", RoleID: model.RoleStudent, IsActive: true},
		8: {ID: 8, Email: "gone@uni.edu", RoleID: model.RoleStudent, IsActive: false},
	}
	e := newServer(users, nil)

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 7, model.RoleStudent))
		}, http.StatusOK},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "session", Value: token(t, 7, model.RoleStudent)})
		}, http.StatusOK},
		{"bad signature", func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 7, model.RoleStudent)+"x")
		}, http.StatusUnauthorized},
		{"inactive user", func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 8, model.RoleStudent))
		}, http.StatusUnauthorized},
		{"unknown user", func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 99, model.RoleStudent))
		}, http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

type failingLookup struct{}

func (failingLookup) GetByID(context.Context, uint64) (model.User, error) {
	return model.User{}, errors.New("connection refused")
}

func TestSessionLookupFailureIsServerError(t *testing.T) {
	e := echo.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.GET("/me", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, Session(SessionConfig{Secret: testSecret, Log: log}, failingLookup{}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 7, model.RoleStudent))
	req = req.WithContext(logger.SetRequestID(req.Context(), "req-7"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal error","request_id":"req-7"}`, rec.Body.String())
}

func TestSessionUsesStoredRole(t *testing.T) {
	// The token claims ADMIN but the row says STUDENT.
	e := newServer(userMap{7: {ID: 7, RoleID: model.RoleStudent, IsActive: true}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, 7, model.RoleAdmin))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"UserID":7,"Email":"","RoleID":3}`, rec.Body.String())
}

func TestRequirePermission(t *testing.T) {
	users := userMap{
		4: {ID: 4, RoleID: model.RoleOfficer, IsActive: true},
		7: {ID: 7, RoleID: model.RoleStudent, IsActive: true},
	}
	e := newServer(users, allowList{"OFFICER:" + model.PermCreateLab: true})

	for name, tc := range map[string]struct {
		id     uint64
		role   model.RoleID
		status int
	}{
		"granted":     {4, model.RoleOfficer, http.StatusCreated},
		"not granted": {7, model.RoleStudent, http.StatusForbidden},
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/labs", nil)
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token(t, tc.id, tc.role))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRequirePermissionWithoutSession(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		RequirePermission(allowList{}, model.PermBookLab))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	var seen string
	e.GET("/x", func(c echo.Context) error {
		seen = logger.RequestID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Len(t, seen, 36)
	require.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderXRequestID, "upstream-id")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, "upstream-id", seen)
}

func TestDisabledLayersPassThrough(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.Use(RateLimit(config.RateLimitConfig{Enabled: true}, nil, log))
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		ResponseCache(config.CacheConfig{Enabled: true}, nil, log))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-Cache"))
	require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/labs", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/labs")

	require.Equal(t, "rl:ip:10.0.0.1", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))
	require.Equal(t, "rl:ip:10.0.0.1:user:anon:route:GET /api/labs", buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c))

	SetPrincipal(c, model.Principal{UserID: 5})
	require.Equal(t, "rl:user:5", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
}

func TestCacheKeyStrategies(t *testing.T) {
	e := echo.New()
	ctx := func(target string) echo.Context {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/api/meetings/types")
		return c
	}
	cfg := config.CacheConfig{Prefix: "cache"}
	a, b := cacheKey(cfg, ctx("/api/meetings/types?x=1")), cacheKey(cfg, ctx("/api/meetings/types?x=2"))
	require.NotEqual(t, a, b)
	require.Regexp(t, `^cache:[0-9a-f]{40}$`, a)

	cfg.KeyStrategy = "route"
	require.Equal(t, cacheKey(cfg, ctx("/api/meetings/types?x=1")), cacheKey(cfg, ctx("/api/meetings/types?x=2")))
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "application/json", got.Get("Content-Type"))
	require.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:6])
	require.False(t, ok)
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("def"))

	require.Equal(t, "abcd", cw.buf.String())
	require.True(t, cw.truncated())
	require.Equal(t, "abcdef", rec.Body.String())
}
