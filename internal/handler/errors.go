package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/logger"
	"github.com/iliyamo/department-admin/internal/middleware"
	"github.com/iliyamo/department-admin/internal/model"
)

// respondError translates an engine error into its HTTP response.
// Unexpected errors are logged with the request's correlation id and
// reported as 500 without detail.
func respondError(c echo.Context, log *slog.Logger, err error) error {
	var vErr *booking.ValidationError
	if errors.As(err, &vErr) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": vErr.FieldErrors})
	}
	var cErr *booking.ConflictError
	if errors.As(err, &cErr) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "conflict": cErr})
	}
	switch {
	case errors.Is(err, booking.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, booking.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, booking.ErrCapacityExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "capacity exhausted"})
	case errors.Is(err, booking.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid state transition"})
	case errors.Is(err, booking.ErrDuplicate):
		return c.JSON(http.StatusConflict, echo.Map{"error": "already exists"})
	}

	ctx := c.Request().Context()
	log.ErrorContext(ctx, "request failed", "route", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"error":      "internal error",
		"request_id": logger.RequestID(ctx),
	})
}

func badRequest(c echo.Context, field, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": echo.Map{field: msg}})
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	return parseID(c.Param(name))
}

// queryID parses an optional positive integer query parameter; absent is 0.
func queryID(c echo.Context, name string) (uint64, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, true
	}
	return parseID(raw)
}

func parseID(raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	return id, err == nil && id > 0
}

func principal(c echo.Context) model.Principal { return middleware.PrincipalFrom(c) }
