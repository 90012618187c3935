package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/model"
)

// MeetingService is implemented by *booking.MeetingScheduler.
type MeetingService interface {
	Create(ctx context.Context, p model.Principal, in booking.MeetingRequest) (model.Meeting, error)
	Get(ctx context.Context, p model.Principal, id uint64) (model.Meeting, error)
	UpdateRSVP(ctx context.Context, p model.Principal, id uint64, in booking.RSVPInput) (model.Meeting, error)
	Cancel(ctx context.Context, p model.Principal, id uint64) (model.Meeting, error)
	Complete(ctx context.Context, p model.Principal, id uint64) (model.Meeting, error)
	List(ctx context.Context, p model.Principal, q booking.MeetingQuery) ([]model.Meeting, error)
	FacultyAvailability(ctx context.Context, p model.Principal, facultyID uint64, date string) ([]model.TimeRange, error)
	Types() []model.MeetingType
}

type MeetingHandler struct {
	Meetings MeetingService
	Log      *slog.Logger
}

func NewMeetingHandler(s MeetingService, log *slog.Logger) *MeetingHandler {
	return &MeetingHandler{Meetings: s, Log: log}
}

type createMeetingReq struct {
	FacultyID    uint64 `json:"faculty_id"`
	StudentID    uint64 `json:"student_id"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	Type         string `json:"type"`
	RSVPDeadline string `json:"rsvp_deadline"`
}

type rsvpReq struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// Create: POST /api/meetings/
func (h *MeetingHandler) Create(c echo.Context) error {
	var req createMeetingReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	m, err := h.Meetings.Create(c.Request().Context(), principal(c), booking.MeetingRequest(req))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// List: GET /api/meetings/?start_date=&end_date=&status=&type=&upcoming=
func (h *MeetingHandler) List(c echo.Context) error {
	q := booking.MeetingQuery{
		StartDate: c.QueryParam("start_date"),
		EndDate:   c.QueryParam("end_date"),
		Status:    c.QueryParam("status"),
		Type:      c.QueryParam("type"),
	}
	if raw := c.QueryParam("upcoming"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "upcoming", "must be a boolean")
		}
		q.Upcoming = v
	}
	list, err := h.Meetings.List(c.Request().Context(), principal(c), q)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if list == nil {
		list = []model.Meeting{}
	}
	return c.JSON(http.StatusOK, list)
}

// Get: GET /api/meetings/:id
func (h *MeetingHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	m, err := h.Meetings.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}

// RSVP: PUT /api/meetings/:id/rsvp
func (h *MeetingHandler) RSVP(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	var req rsvpReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	m, err := h.Meetings.UpdateRSVP(c.Request().Context(), principal(c), id, booking.RSVPInput(req))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Cancel: PUT /api/meetings/:id/cancel
func (h *MeetingHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.Meetings.Cancel)
}

// Complete: PUT /api/meetings/:id/complete
func (h *MeetingHandler) Complete(c echo.Context) error {
	return h.transition(c, h.Meetings.Complete)
}

func (h *MeetingHandler) transition(c echo.Context, op func(context.Context, model.Principal, uint64) (model.Meeting, error)) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	m, err := op(c.Request().Context(), principal(c), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Types: GET /api/meetings/types (public)
func (h *MeetingHandler) Types(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"types": h.Meetings.Types()})
}

// Availability: GET /api/meetings/faculty/:id/availability?date=YYYY-MM-DD
// returns the faculty member's busy windows on date.
func (h *MeetingHandler) Availability(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "id", "must be a positive integer")
	}
	busy, err := h.Meetings.FacultyAvailability(c.Request().Context(), principal(c), id, c.QueryParam("date"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if busy == nil {
		busy = []model.TimeRange{}
	}
	return c.JSON(http.StatusOK, busy)
}
