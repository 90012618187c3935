// Package router registers the HTTP API on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/handler"
	"github.com/iliyamo/department-admin/internal/model"
)

// Deps bundles the handlers and guards the routes need.
type Deps struct {
	Auth      *handler.AuthHandler
	Meetings  *handler.MeetingHandler
	Equipment *handler.EquipmentHandler
	Labs      *handler.LabHandler
	Roles     *handler.RoleHandler

	// Session authenticates a request; Permission builds a grant guard
	// that must run after it.
	Session    echo.MiddlewareFunc
	Permission func(name string) echo.MiddlewareFunc
	// Cache wraps user-independent GET routes.
	Cache echo.MiddlewareFunc

	DB handler.Pinger
}

// Register mounts every route.  Global middleware is the caller's concern.
func Register(e *echo.Echo, d Deps) {
	if d.Cache == nil {
		d.Cache = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}

	registerAuth(e, d)
	registerMeetings(e, d)
	registerEquipment(e, d)
	registerLabs(e, d)
	registerRoles(e, d)
}

func registerAuth(e *echo.Echo, d Deps) {
	g := e.Group("/api/auth")
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)
	g.GET("/me", d.Auth.Me, d.Session)
}

func registerMeetings(e *echo.Echo, d Deps) {
	m := d.Meetings
	// Public, so it sits outside the session group.
	e.GET("/api/meetings/types", m.Types, d.Cache)

	g := e.Group("/api/meetings", d.Session)
	g.GET("", m.List)
	g.GET("/", m.List)
	g.POST("", m.Create)
	g.POST("/", m.Create)
	g.GET("/faculty/:id/availability", m.Availability)
	g.GET("/:id", m.Get)
	g.PUT("/:id/rsvp", m.RSVP)
	g.PUT("/:id/cancel", m.Cancel)
	g.PUT("/:id/complete", m.Complete)
}

func registerEquipment(e *echo.Echo, d Deps) {
	h := d.Equipment
	g := e.Group("/api/equipment", d.Session)
	manage := d.Permission(model.PermManageEquipment)
	approve := d.Permission(model.PermApproveEquipmentBooking)

	g.GET("", h.ListEquipment)
	g.POST("", h.CreateEquipment, manage)
	g.PUT("/:id", h.UpdateEquipment, manage)

	// Categories are the same for every caller, so the cache may sit
	// behind the session check.
	g.GET("/categories", h.ListCategories, d.Cache)
	g.POST("/categories", h.CreateCategory, manage)

	g.GET("/bookings", h.ListBookings, d.Permission(model.PermViewEquipmentBookings))
	g.POST("/bookings", h.RequestBooking, d.Permission(model.PermBookEquipment))
	g.PUT("/bookings/:id/approve", h.Approve, approve)
	g.PUT("/bookings/:id/reject", h.Reject, approve)
	g.PUT("/bookings/:id/complete", h.Complete, approve)
	// Requester or approver; the engine decides.
	g.PUT("/bookings/:id/cancel", h.Cancel)
}

func registerLabs(e *echo.Echo, d Deps) {
	h := d.Labs
	g := e.Group("/api/labs", d.Session)
	admin := d.Permission(model.PermCreateLab)

	g.GET("", h.ListLabs)
	g.POST("", h.CreateLab, admin)
	g.GET("/:id/slots", h.ListSlots)

	g.GET("/bookings", h.ListBookings)
	g.POST("/bookings", h.Book, d.Permission(model.PermBookLab))
	g.PUT("/bookings/:id/approve", h.Approve, admin)
	g.PUT("/bookings/:id/reject", h.Reject, admin)
	g.PUT("/bookings/:id/cancel", h.Cancel)
}

func registerRoles(e *echo.Echo, d Deps) {
	g := e.Group("/api/roles", d.Session)
	manage := d.Permission(model.PermManageRoles)

	g.GET("", d.Roles.List)
	g.POST("/:id/permissions", d.Roles.Grant, manage)
	g.DELETE("/:id/permissions/:name", d.Roles.Revoke, manage)
}
