package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/model"
)

// EquipmentService is implemented by *booking.EquipmentService.
type EquipmentService interface {
	Request(ctx context.Context, p model.Principal, in booking.EquipmentRequest) (model.EquipmentBooking, error)
	Approve(ctx context.Context, p model.Principal, id uint64) (model.EquipmentBooking, error)
	Reject(ctx context.Context, p model.Principal, id uint64, reason string) (model.EquipmentBooking, error)
	Cancel(ctx context.Context, p model.Principal, id uint64) (model.EquipmentBooking, error)
	Complete(ctx context.Context, p model.Principal, id uint64) (model.EquipmentBooking, error)
	List(ctx context.Context, p model.Principal, q booking.EquipmentBookingQuery) ([]model.EquipmentBooking, error)

	CreateCategory(ctx context.Context, p model.Principal, in booking.CategoryInput) (model.EquipmentCategory, error)
	ListCategories(ctx context.Context) ([]model.EquipmentCategory, error)
	CreateEquipment(ctx context.Context, p model.Principal, in booking.EquipmentInput) (model.Equipment, error)
	UpdateEquipment(ctx context.Context, p model.Principal, id uint64, in booking.EquipmentUpdate) (model.Equipment, error)
	ListEquipment(ctx context.Context) ([]model.Equipment, error)
}

type EquipmentHandler struct {
	Equipment EquipmentService
	Log       *slog.Logger
}

func NewEquipmentHandler(s EquipmentService, log *slog.Logger) *EquipmentHandler {
	return &EquipmentHandler{Equipment: s, Log: log}
}

// ----- DTOs -----

type equipmentBookingReq struct {
	EquipmentID uint64 `json:"equipment_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Purpose     string `json:"purpose"`
}

type rejectReq struct {
	Reason string `json:"reason"`
}

type categoryReq struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

type equipmentReq struct {
	Name             string `json:"name"`
	CategoryID       uint64 `json:"category_id"`
	Quantity         int    `json:"quantity"`
	RequiresApproval bool   `json:"requires_approval"`
	Location         string `json:"location"`
}

type equipmentPatchReq struct {
	Name             *string `json:"name"`
	CategoryID       *uint64 `json:"category_id"`
	Quantity         *int    `json:"quantity"`
	RequiresApproval *bool   `json:"requires_approval"`
	Location         *string `json:"location"`
}

// ----- bookings -----

// RequestBooking: POST /api/equipment/bookings
func (h *EquipmentHandler) RequestBooking(c echo.Context) error {
	var req equipmentBookingReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	b, err := h.Equipment.Request(c.Request().Context(), principal(c), booking.EquipmentRequest(req))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// ListBookings: GET /api/equipment/bookings?status=&equipment_id=
func (h *EquipmentHandler) ListBookings(c echo.Context) error {
	eqID, ok := queryID(c, "equipment_id")
	if !ok {
		return badRequest(c, "equipment_id", "must be a positive integer")
	}
	list, err := h.Equipment.List(c.Request().Context(), principal(c), booking.EquipmentBookingQuery{
		Status:      c.QueryParam("status"),
		EquipmentID: eqID,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if list == nil {
		list = []model.EquipmentBooking{}
	}
	return c.JSON(http.StatusOK, list)
}

// Approve: PUT /api/equipment/bookings/:id/approve
func (h *EquipmentHandler) Approve(c echo.Context) error { return h.transition(c, h.Equipment.Approve) }

// Cancel: PUT /api/equipment/bookings/:id/cancel
func (h *EquipmentHandler) Cancel(c echo.Context) error { return h.transition(c, h.Equipment.Cancel) }

// Complete: PUT /api/equipment/bookings/:id/complete
func (h *EquipmentHandler) Complete(c echo.Context) error { return h.transition(c, h.Equipment.Complete) }

// Reject: PUT /api/equipment/bookings/:id/reject {reason}
func (h *EquipmentHandler) Reject(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	var req rejectReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	b, err := h.Equipment.Reject(c.Request().Context(), principal(c), id, req.Reason)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *EquipmentHandler) transition(c echo.Context, op func(context.Context, model.Principal, uint64) (model.EquipmentBooking, error)) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	b, err := op(c.Request().Context(), principal(c), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// ----- catalogue -----

// ListCategories: GET /api/equipment/categories
func (h *EquipmentHandler) ListCategories(c echo.Context) error {
	list, err := h.Equipment.ListCategories(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if list == nil {
		list = []model.EquipmentCategory{}
	}
	return c.JSON(http.StatusOK, list)
}

// CreateCategory: POST /api/equipment/categories
func (h *EquipmentHandler) CreateCategory(c echo.Context) error {
	var req categoryReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	cat, err := h.Equipment.CreateCategory(c.Request().Context(), principal(c), booking.CategoryInput(req))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, cat)
}

// ListEquipment: GET /api/equipment
func (h *EquipmentHandler) ListEquipment(c echo.Context) error {
	list, err := h.Equipment.ListEquipment(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if list == nil {
		list = []model.Equipment{}
	}
	return c.JSON(http.StatusOK, list)
}

// CreateEquipment: POST /api/equipment
func (h *EquipmentHandler) CreateEquipment(c echo.Context) error {
	var req equipmentReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	e, err := h.Equipment.CreateEquipment(c.Request().Context(), principal(c), booking.EquipmentInput(req))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// UpdateEquipment: PUT /api/equipment/:id (partial; omitted fields are kept)
func (h *EquipmentHandler) UpdateEquipment(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	var req equipmentPatchReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	e, err := h.Equipment.UpdateEquipment(c.Request().Context(), principal(c), id, booking.EquipmentUpdate(req))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, e)
}
