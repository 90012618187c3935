package middleware

import (
	"log/slog"

	"github.com/gofrs/uuid/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/department-admin/internal/logger"
)

// NewRequestID returns a random v4 UUID string.  Falls back to an empty
// string only if the system random source fails.
func NewRequestID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}
	return id.String()
}

// RequestID assigns every request a correlation id (honouring an
// incoming X-Request-ID), echoes it in the response header and stores
// it, with the method and URL, in the request context for the logger.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: NewRequestID,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			ctx := logger.SetRequestID(req.Context(), id)
			ctx = logger.SetMethod(ctx, req.Method)
			ctx = logger.SetURL(ctx, req.URL.Path)
			c.SetRequest(req.WithContext(ctx))
		},
	})
}

// RequestLogger logs one line per request through log.  The request_id
// and user_id attributes come from the context.
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogLatency:   true,
		LogRoutePath: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ctx := c.Request().Context()
			attrs := []any{"route", v.RoutePath, "status", v.Status, "latency_ms", v.Latency.Milliseconds()}
			if v.Error != nil {
				log.ErrorContext(ctx, "request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			log.InfoContext(ctx, "request", attrs...)
			return nil
		},
	})
}
