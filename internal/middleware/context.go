package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/model"
)

const principalKey = "principal"

// SetPrincipal stores the authenticated principal on the Echo context.
func SetPrincipal(c echo.Context, p model.Principal) { c.Set(principalKey, p) }

// PrincipalFrom returns the principal stored by Session, or the zero
// principal for anonymous requests.
func PrincipalFrom(c echo.Context) model.Principal {
	p, _ := c.Get(principalKey).(model.Principal)
	return p
}

// currentUserID is the principal's id as a string, or "anon".
func currentUserID(c echo.Context) string {
	if p := PrincipalFrom(c); !p.IsZero() {
		return strconv.FormatUint(p.UserID, 10)
	}
	return "anon"
}
