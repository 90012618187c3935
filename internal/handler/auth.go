package handler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/middleware"
	"github.com/iliyamo/department-admin/internal/model"
	"github.com/iliyamo/department-admin/internal/utils"
)

// UserStore is the part of *repository.UserRepo the auth endpoints use.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore is implemented by *repository.TokenRepo.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	Rotate(ctx context.Context, userID uint64, oldHash, newHash string, exp time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// PermissionLister is implemented by *rbac.Authorizer.
type PermissionLister interface {
	Permissions(ctx context.Context, role model.RoleID) ([]string, error)
}

// AuthConfig carries the session settings.
type AuthConfig struct {
	Secret       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	Cookie       string
	SecureCookie bool
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    AuthConfig
	Users  UserStore
	Tokens TokenStore
	Perms  PermissionLister
	Log    *slog.Logger
}

func NewAuthHandler(cfg AuthConfig, u UserStore, t TokenStore, p PermissionLister, log *slog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Perms: p, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64       `json:"id"`
	Email    string       `json:"email"`
	FullName string       `json:"full_name"`
	RoleID   model.RoleID `json:"role_id"`
	Role     string       `json:"role"`
}
type authResp struct {
	User        userPart  `json:"user"`
	Permissions []string  `json:"permissions"`
	Access      tokenPart `json:"access"`
	Refresh     tokenPart `json:"refresh"`
}

func userPartOf(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, FullName: u.FullName, RoleID: u.RoleID, Role: u.RoleID.String()}
}

// Login: verify credentials, set the session cookie and return the
// principal, its permission set and a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx := c.Request().Context()
	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		utils.VerifyDecoy(req.Password)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTL)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return respondError(c, h.Log, err)
	}
	return h.issue(c, u, refresh)
}

// Refresh: rotate the refresh token and reissue the access token and cookie.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx := c.Request().Context()
	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	next, err := utils.NewRefreshToken(h.Cfg.RefreshTTL)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	err = h.Tokens.Rotate(ctx, userID, hash, utils.HashRefreshRaw(next.Raw), next.Exp)
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race with another refresh or a logout.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return h.issue(c, u, next)
}

func (h *AuthHandler) issue(c echo.Context, u model.User, refresh utils.RefreshToken) error {
	ctx := c.Request().Context()
	access, err := utils.NewAccessToken(h.Cfg.Secret, u.ID, u.RoleID, h.Cfg.AccessTTL)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	perms, err := h.Perms.Permissions(ctx, u.RoleID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if perms == nil {
		perms = []string{}
	}
	h.setCookie(c, access.Token, access.Exp)
	return c.JSON(http.StatusOK, authResp{
		User:        userPartOf(u),
		Permissions: perms,
		Access:      tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh:     tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}

// Logout revokes the refresh token in the body, or, without one, every
// refresh token of the session's user.  The cookie is cleared either way.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	ctx := c.Request().Context()

	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw)); err != nil {
			return respondError(c, h.Log, err)
		}
	} else {
		claims, err := utils.ParseAccessToken(h.Cfg.Secret, middleware.SessionToken(c, h.Cfg.Cookie))
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token or session required"})
		}
		if err := h.Tokens.RevokeAllForUser(ctx, claims.UserID); err != nil {
			return respondError(c, h.Log, err)
		}
	}
	h.setCookie(c, "", time.Unix(0, 0))
	return c.NoContent(http.StatusNoContent)
}

// Me: GET /api/auth/me
func (h *AuthHandler) Me(c echo.Context) error {
	p := principal(c)
	ctx := c.Request().Context()
	u, err := h.Users.GetByID(ctx, p.UserID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	perms, err := h.Perms.Permissions(ctx, u.RoleID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if perms == nil {
		perms = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"user": userPartOf(u), "permissions": perms})
}

func (h *AuthHandler) setCookie(c echo.Context, value string, exp time.Time) {
	if h.Cfg.Cookie == "" {
		return
	}
	ck := &http.Cookie{
		Name:     h.Cfg.Cookie,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.Cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		ck.MaxAge = -1
	}
	c.SetCookie(ck)
}
