package middleware

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/logger"
	"github.com/iliyamo/department-admin/internal/model"
	"github.com/iliyamo/department-admin/internal/utils"
)

// UserLookup resolves the subject of a verified token.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// SessionConfig configures Session.
type SessionConfig struct {
	Secret string
	Cookie string // session cookie name; the Authorization header is the fallback
	Log    *slog.Logger
}

// Session authenticates the request from the session cookie or a Bearer
// token and stores the principal on the context.  The user row is read
// on every request so that role changes and deactivation take effect
// immediately; the role claim in the token is ignored.
func Session(cfg SessionConfig, users UserLookup) echo.MiddlewareFunc {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := SessionToken(c, cfg.Cookie)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			claims, err := utils.ParseAccessToken(cfg.Secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			req := c.Request()
			ctx := req.Context()
			u, err := users.GetByID(ctx, claims.UserID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				log.ErrorContext(ctx, "session lookup failed", "user_id", claims.UserID, "error", err)
				return c.JSON(http.StatusInternalServerError, echo.Map{
					"error":      "internal error",
					"request_id": logger.RequestID(ctx),
				})
			}
			if err != nil || !u.IsActive {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			SetPrincipal(c, u.Principal())
			c.SetRequest(req.WithContext(logger.SetUserID(ctx, u.ID)))
			return next(c)
		}
	}
}

// SessionToken returns the raw access token from the cookie or the
// Authorization header, or "".
func SessionToken(c echo.Context, cookie string) string {
	if cookie != "" {
		if ck, err := c.Cookie(cookie); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
