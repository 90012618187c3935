package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/model"
)

// LabService is implemented by *booking.LabService.
type LabService interface {
	CreateLab(ctx context.Context, p model.Principal, in booking.LabInput) (model.Lab, []model.LabTimeSlot, error)
	ListLabs(ctx context.Context) ([]model.Lab, error)
	ListSlots(ctx context.Context, labID uint64) ([]model.LabTimeSlot, error)
	Book(ctx context.Context, p model.Principal, in booking.LabBookingRequest) (model.LabBooking, error)
	Approve(ctx context.Context, p model.Principal, id uint64) (model.LabBooking, error)
	Reject(ctx context.Context, p model.Principal, id uint64) (model.LabBooking, error)
	Cancel(ctx context.Context, p model.Principal, id uint64) (model.LabBooking, error)
	List(ctx context.Context, p model.Principal, q booking.LabBookingQuery) ([]model.LabBooking, error)
}

type LabHandler struct {
	Labs LabService
	Log  *slog.Logger
}

func NewLabHandler(s LabService, log *slog.Logger) *LabHandler {
	return &LabHandler{Labs: s, Log: log}
}

type slotReq struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type createLabReq struct {
	Name       string    `json:"name"`
	Capacity   int       `json:"capacity"`
	Location   string    `json:"location"`
	Facilities string    `json:"facilities"`
	TimeSlots  []slotReq `json:"time_slots"`
}

type labResp struct {
	model.Lab
	TimeSlots []model.LabTimeSlot `json:"time_slots"`
}

type labBookingReq struct {
	LabID      uint64 `json:"lab_id"`
	TimeSlotID uint64 `json:"time_slot_id"`
	Date       string `json:"date"`
	Purpose    string `json:"purpose"`
}

// CreateLab: POST /api/labs
func (h *LabHandler) CreateLab(c echo.Context) error {
	var req createLabReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	in := booking.LabInput{
		Name:       req.Name,
		Capacity:   req.Capacity,
		Location:   req.Location,
		Facilities: req.Facilities,
		Slots:      make([]booking.SlotInput, 0, len(req.TimeSlots)),
	}
	for _, s := range req.TimeSlots {
		in.Slots = append(in.Slots, booking.SlotInput(s))
	}
	lab, slots, err := h.Labs.CreateLab(c.Request().Context(), principal(c), in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if slots == nil {
		slots = []model.LabTimeSlot{}
	}
	return c.JSON(http.StatusCreated, labResp{Lab: lab, TimeSlots: slots})
}

// ListLabs: GET /api/labs
func (h *LabHandler) ListLabs(c echo.Context) error {
	list, err := h.Labs.ListLabs(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if list == nil {
		list = []model.Lab{}
	}
	return c.JSON(http.StatusOK, list)
}

// ListSlots: GET /api/labs/:id/slots
func (h *LabHandler) ListSlots(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	slots, err := h.Labs.ListSlots(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if slots == nil {
		slots = []model.LabTimeSlot{}
	}
	return c.JSON(http.StatusOK, slots)
}

// Book: POST /api/labs/bookings
func (h *LabHandler) Book(c echo.Context) error {
	var req labBookingReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	b, err := h.Labs.Book(c.Request().Context(), principal(c), booking.LabBookingRequest(req))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// ListBookings: GET /api/labs/bookings?status=&lab_id=
func (h *LabHandler) ListBookings(c echo.Context) error {
	labID, ok := queryID(c, "lab_id")
	if !ok {
		return badRequest(c, "lab_id", "must be a positive integer")
	}
	list, err := h.Labs.List(c.Request().Context(), principal(c), booking.LabBookingQuery{
		Status: c.QueryParam("status"),
		LabID:  labID,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if list == nil {
		list = []model.LabBooking{}
	}
	return c.JSON(http.StatusOK, list)
}

// Approve: PUT /api/labs/bookings/:id/approve
func (h *LabHandler) Approve(c echo.Context) error { return h.transition(c, h.Labs.Approve) }

// Reject: PUT /api/labs/bookings/:id/reject
func (h *LabHandler) Reject(c echo.Context) error { return h.transition(c, h.Labs.Reject) }

// Cancel: PUT /api/labs/bookings/:id/cancel
func (h *LabHandler) Cancel(c echo.Context) error { return h.transition(c, h.Labs.Cancel) }

func (h *LabHandler) transition(c echo.Context, op func(context.Context, model.Principal, uint64) (model.LabBooking, error)) error {
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
