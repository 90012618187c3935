package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/model"
	"github.com/iliyamo/department-admin/internal/rbac"
)

// GrantAdmin is implemented by *rbac.Authorizer.
type GrantAdmin interface {
	Matrix(ctx context.Context) (map[model.RoleID][]string, error)
	Grant(ctx context.Context, role model.RoleID, permission string) error
	Revoke(ctx context.Context, role model.RoleID, permission string) error
}

type RoleHandler struct {
	Grants GrantAdmin
	Log    *slog.Logger
}

func NewRoleHandler(g GrantAdmin, log *slog.Logger) *RoleHandler {
	return &RoleHandler{Grants: g, Log: log}
}

type roleResp struct {
	ID          model.RoleID `json:"id"`
	Name        string       `json:"name"`
	Permissions []string     `json:"permissions"`
}

type grantReq struct {
	Permission string `json:"permission"`
}

// List: GET /api/roles
func (h *RoleHandler) List(c echo.Context) error {
	matrix, err := h.Grants.Matrix(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	out := make([]roleResp, 0, len(model.AllRoles()))
	for _, r := range model.AllRoles() {
		perms := matrix[r]
		if perms == nil {
			perms = []string{}
		}
		out = append(out, roleResp{ID: r, Name: r.String(), Permissions: perms})
	}
	return c.JSON(http.StatusOK, out)
}

// Grant: POST /api/roles/:id/permissions {permission}
func (h *RoleHandler) Grant(c echo.Context) error {
	role, ok := roleParam(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown role"})
	}
	var req grantReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	perm := strings.ToUpper(strings.TrimSpace(req.Permission))
	if perm == "" {
		return badRequest(c, "permission", "is required")
	}
	if err := h.Grants.Grant(c.Request().Context(), role, perm); err != nil {
		return h.grantError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Revoke: DELETE /api/roles/:id/permissions/:name
func (h *RoleHandler) Revoke(c echo.Context) error {
	role, ok := roleParam(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown role"})
	}
	perm := strings.ToUpper(strings.TrimSpace(c.Param("name")))
	if err := h.Grants.Revoke(c.Request().Context(), role, perm); err != nil {
		return h.grantError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RoleHandler) grantError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, rbac.ErrUnknownRole):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown role"})
	case errors.Is(err, rbac.ErrUnknownPermission):
		return badRequest(c, "permission", "unknown permission")
	}
	return respondError(c, h.Log, err)
}

// roleParam parses the :id path parameter.  Role ids start at 0.
func roleParam(c echo.Context) (model.RoleID, bool) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil {
		return 0, false
	}
	r := model.RoleID(n)
	return r, r.Valid()
}
