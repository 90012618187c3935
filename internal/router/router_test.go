package router

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/handler"
	"github.com/iliyamo/department-admin/internal/middleware"
	"github.com/iliyamo/department-admin/internal/model"
	"github.com/iliyamo/department-admin/internal/rbac"
	"github.com/iliyamo/department-admin/internal/utils"
)

const secret = "router-test"

type users map[uint64]model.User

func (u users) GetByID(_ context.Context, id uint64) (model.User, error) {
	if x, ok := u[id]; ok {
		return x, nil
	}
	return model.User{}, sql.ErrNoRows
}

type defaultGrants struct{}

func (defaultGrants) RolePermissions(context.Context) (map[model.RoleID][]string, error) {
	out := map[model.RoleID][]string{}
	for perm, roles := range model.DefaultGrants {
		for _, r := range roles {
			out[r] = append(out[r], perm)
		}
	}
	return out, nil
}

func (defaultGrants) Grant(context.Context, model.RoleID, string) error  { return nil }
func (defaultGrants) Revoke(context.Context, model.RoleID, string) error { return nil }

type labs struct{ handler.LabService }

func (labs) CreateLab(_ context.Context, _ model.Principal, in booking.LabInput) (model.Lab, []model.LabTimeSlot, error) {
	return model.Lab{ID: 1, Name: in.Name, Capacity: in.Capacity}, nil, nil
}

type meetings struct{ handler.MeetingService }

func (meetings) Types() []model.MeetingType { return model.MeetingTypes() }

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	u := users{
		1: {ID: 1, Email: "student@uni.edu", RoleID: model.RoleStudent, IsActive: true},
		2: {ID: 2, Email: "officer@uni.edu", RoleID: model.RoleOfficer, IsActive: true},
	}
	authz := rbac.New(defaultGrants{})

	e := echo.New()
	Register(e, Deps{
		Auth:      handler.NewAuthHandler(handler.AuthConfig{Secret: secret, Cookie: "session"}, nil, nil, nil, log),
		Meetings:  handler.NewMeetingHandler(meetings{}, log),
		Equipment: handler.NewEquipmentHandler(nil, log),
		Labs:      handler.NewLabHandler(labs{}, log),
		Roles:     handler.NewRoleHandler(authz, log),
		Session:   middleware.Session(middleware.SessionConfig{Secret: secret, Cookie: "session"}, u),
		Permission: func(name string) echo.MiddlewareFunc {
			return middleware.RequirePermission(authz, name)
		},
	})
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string, userID uint64, role model.RoleID) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != 0 {
		tok, err := utils.NewAccessToken(secret, userID, role, time.Minute)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "session", Value: tok.Token})
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateLabRequiresGrant(t *testing.T) {
	e := newServer(t)
	body := `{"name":"Robotics","capacity":20}`

	rec := do(t, e, http.MethodPost, "/api/labs", body, 1, model.RoleStudent)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, e, http.MethodPost, "/api/labs", body, 2, model.RoleOfficer)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Robotics"`)

	rec = do(t, e, http.MethodPost, "/api/labs", body, 0, 0)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleClaimIsNotTrusted(t *testing.T) {
	e := newServer(t)
	// User 1 is a student in the store; the forged OFFICER claim is ignored.
	rec := do(t, e, http.MethodPost, "/api/labs", `{"name":"x","capacity":1}`, 1, model.RoleOfficer)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPublicRoutes(t *testing.T) {
	e := newServer(t)

	rec := do(t, e, http.MethodGet, "/api/meetings/types", "", 0, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ADVISING"`)

	rec = do(t, e, http.MethodGet, "/healthz", "", 0, 0)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestSessionRequired(t *testing.T) {
	e := newServer(t)
	for _, target := range []string{"/api/meetings/", "/api/equipment", "/api/labs/bookings", "/api/roles", "/api/auth/me"} {
		rec := do(t, e, http.MethodGet, target, "", 0, 0)
		require.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestRoleGrantGuard(t *testing.T) {
	e := newServer(t)
	rec := do(t, e, http.MethodPost, "/api/roles/3/permissions", `{"permission":"CREATE_LAB"}`, 2, model.RoleOfficer)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
