package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/model"
)

// Authorizer is the permission predicate, normally *rbac.Authorizer.
type Authorizer interface {
	Authorize(ctx context.Context, p model.Principal, permission string) bool
}

// RequirePermission aborts with 403 unless the principal's role is
// granted permission.  It must run after Session; without a principal
// the request is 401.
func RequirePermission(authz Authorizer, permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p.IsZero() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !authz.Authorize(c.Request().Context(), p, permission) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
