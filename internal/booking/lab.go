package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliyamo/department-admin/internal/events"
	"github.com/iliyamo/department-admin/internal/model"
)

// LabService books weekly lab slots on calendar dates.  A (slot, date)
// pair holds at most one PENDING or APPROVED booking; the slot row lock
// serialises admissions and the store's unique index backs it up.
type LabService struct {
	engine
}

// NewLabService constructs the lab engine.
func NewLabService(d Deps) *LabService {
	return &LabService{engine: newEngine(d)}
}

func (s *LabService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LabService", operation, attrs...)
}

// SlotInput is one weekly window of a new lab.
type SlotInput struct {
	DayOfWeek string
	StartTime string
	EndTime   string
}

// LabInput is the input of CreateLab.
type LabInput struct {
	Name       string
	Capacity   int
	Location   string
	Facilities string
	Slots      []SlotInput
}

// CreateLab creates a lab together with its weekly slots.
func (s *LabService) CreateLab(ctx context.Context, p model.Principal, in LabInput) (lab model.Lab, slots []model.LabTimeSlot, err error) {
	logger := s.loggerWith(ctx, "CreateLab", "principal_id", p.UserID)
	defer func() { finish(ctx, logger.With("lab_id", lab.ID, "slots", len(slots)), err, "lab created") }()

	if err = s.require(ctx, p, model.PermCreateLab); err != nil {
		return
	}
	lab = model.Lab{
		Name:       strings.TrimSpace(in.Name),
		Capacity:   in.Capacity,
		Location:   strings.TrimSpace(in.Location),
		Facilities: strings.TrimSpace(in.Facilities),
	}
	vErr := &ValidationError{}
	if lab.Name == "" {
		vErr.add("name", "is required")
	}
	if lab.Capacity < 1 {
		vErr.add("capacity", "must be at least 1")
	}
	parsed := make([]model.LabTimeSlot, 0, len(in.Slots))
	for i, si := range in.Slots {
		field := fmt.Sprintf("time_slots[%d]", i)
		day, ok := model.ParseDayOfWeek(si.DayOfWeek)
		if !ok {
			vErr.add(field+".day_of_week", "must be a weekday name such as MONDAY")
			continue
		}
		r, ok := parseRange(vErr, field+".", si.StartTime, si.EndTime)
		if !ok {
			continue
		}
		slot := model.LabTimeSlot{DayOfWeek: day, TimeRange: r}
		for _, prev := range parsed {
			if prev.DayOfWeek == day && prev.Overlaps(r) {
				vErr.add(field, "overlaps another slot on the same day")
				break
			}
		}
		parsed = append(parsed, slot)
	}
	if vErr.HasErrors() {
		err = vErr
		lab = model.Lab{}
		return
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertLab(ctx, &lab); err != nil {
			return err
		}
		for i := range parsed {
			parsed[i].LabID = lab.ID
			if err := tx.InsertLabTimeSlot(ctx, &parsed[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			err = invalid("name", "already exists")
		}
		lab = model.Lab{}
		return
	}
	slots = parsed
	return
}

// ListLabs returns every lab.
func (s *LabService) ListLabs(ctx context.Context) ([]model.Lab, error) {
	return s.store.ListLabs(ctx)
}

// ListSlots returns the weekly slots of a lab.
func (s *LabService) ListSlots(ctx context.Context, labID uint64) ([]model.LabTimeSlot, error) {
	if _, err := s.store.GetLab(ctx, labID); err != nil {
		return nil, err
	}
	return s.store.ListLabTimeSlots(ctx, labID)
}

// LabBookingRequest is the input of Book.  LabID is optional; when set it
// must match the slot's lab.
type LabBookingRequest struct {
	LabID      uint64
	TimeSlotID uint64
	Date       string
	Purpose    string
}

// Book reserves a slot on a date.  New bookings start PENDING.
func (s *LabService) Book(ctx context.Context, p model.Principal, in LabBookingRequest) (b model.LabBooking, err error) {
	logger := s.loggerWith(ctx, "Book", "principal_id", p.UserID, "time_slot_id", in.TimeSlotID)
	defer func() { finish(ctx, logger.With("booking_id", b.ID), err, "lab booking requested") }()

	if err = s.require(ctx, p, model.PermBookLab); err != nil {
		return
	}
	vErr := &ValidationError{}
	if in.TimeSlotID == 0 {
		vErr.add("time_slot_id", "is required")
	}
	date, dErr := model.ParseDate(strings.TrimSpace(in.Date))
	if dErr != nil {
		vErr.add("date", "must be a YYYY-MM-DD date")
	} else if date.Before(s.today()) {
		vErr.add("date", "must not be in the past")
	}
	if len(in.Purpose) > maxPurposeLen {
		vErr.add("purpose", fmt.Sprintf("must be at most %d characters", maxPurposeLen))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	// A concurrent insert that slips past the check trips the unique
	// index; the second attempt re-reads and reports the occupant.
	for attempt := 0; attempt < 2; attempt++ {
		b, err = s.admit(ctx, p, in, date)
		if !errors.Is(err, ErrDuplicate) {
			break
		}
		logger.DebugContext(ctx, "lab slot insert raced; retrying", "attempt", attempt+1)
	}
	if err != nil {
		b = model.LabBooking{}
		return
	}
	s.publish(ctx, labEvent(b, "REQUESTED", p.UserID))
	return
}

func (s *LabService) admit(ctx context.Context, p model.Principal, in LabBookingRequest, date model.Date) (b model.LabBooking, err error) {
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		slot, err := tx.LockLabTimeSlot(ctx, in.TimeSlotID)
		if err != nil {
			return err
		}
		if in.LabID != 0 && in.LabID != slot.LabID {
			return invalid("lab_id", "does not own the requested time slot")
		}
		if !slot.DayOfWeek.Matches(date) {
			return invalid("date", fmt.Sprintf("must fall on a %s", slot.DayOfWeek))
		}
		existing, found, err := tx.ActiveLabBooking(ctx, slot.ID, date)
		if err != nil {
			return err
		}
		if found {
			return &ConflictError{
				Resource:   "lab_slot",
				ResourceID: slot.ID,
				ExistingID: existing.ID,
				Date:       date.String(),
				Start:      slot.Start.String(),
				End:        slot.End.String(),
			}
		}
		nb := model.LabBooking{
			LabID:      slot.LabID,
			UserID:     p.UserID,
			TimeSlotID: slot.ID,
			Date:       date,
			Purpose:    strings.TrimSpace(in.Purpose),
			Status:     model.LabPending,
		}
		if err := tx.InsertLabBooking(ctx, &nb); err != nil {
			return err
		}
		b = nb
		return nil
	})
	return
}

// Approve moves a PENDING lab booking to APPROVED; approving an APPROVED
// booking is a no-op.
func (s *LabService) Approve(ctx context.Context, p model.Principal, id uint64) (model.LabBooking, error) {
	return s.decide(ctx, p, id, "Approve", model.LabApproved)
}

// Reject moves a PENDING lab booking to REJECTED, freeing the slot.
func (s *LabService) Reject(ctx context.Context, p model.Principal, id uint64) (model.LabBooking, error) {
	return s.decide(ctx, p, id, "Reject", model.LabRejected)
}

func (s *LabService) decide(ctx context.Context, p model.Principal, id uint64, op string, to model.LabBookingStatus) (b model.LabBooking, err error) {
	logger := s.loggerWith(ctx, op, "principal_id", p.UserID, "booking_id", id)
	defer func() { finish(ctx, logger, err, "lab booking "+strings.ToLower(string(to))) }()

	if err = s.require(ctx, p, model.PermCreateLab); err != nil {
		return
	}
	changed := false
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockLabBooking(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status == to && to == model.LabApproved {
			b = cur
			return nil
		}
		if cur.Status != model.LabPending {
			return ErrInvalidTransition
		}
		cur.Status = to
		if err := tx.UpdateLabBooking(ctx, &cur); err != nil {
			return err
		}
		b, changed = cur, true
		return nil
	})
	if err == nil && changed {
		s.publish(ctx, labEvent(b, string(to), p.UserID))
	}
	return
}

// Cancel withdraws a PENDING or APPROVED booking.  Allowed to the
// requester and to lab administrators.
func (s *LabService) Cancel(ctx context.Context, p model.Principal, id uint64) (b model.LabBooking, err error) {
	logger := s.loggerWith(ctx, "Cancel", "principal_id", p.UserID, "booking_id", id)
	defer func() { finish(ctx, logger, err, "lab booking cancelled") }()

	if p.IsZero() {
		err = ErrForbidden
		return
	}
	isAdmin := s.can(ctx, p, model.PermCreateLab)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockLabBooking(ctx, id)
		if err != nil {
			return err
		}
		if cur.UserID != p.UserID && !isAdmin {
			return ErrForbidden
		}
		if !cur.Status.Active() {
			return ErrInvalidTransition
		}
		cur.Status = model.LabCancelled
		if err := tx.UpdateLabBooking(ctx, &cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err == nil {
		s.publish(ctx, labEvent(b, "CANCELLED", p.UserID))
	}
	return
}

// LabBookingQuery is the input of List.
type LabBookingQuery struct {
	Status string
	LabID  uint64
}

// List returns lab bookings ordered by date.  Lab administrators see all
// bookings; others see their own.
func (s *LabService) List(ctx context.Context, p model.Principal, q LabBookingQuery) ([]model.LabBooking, error) {
	if p.IsZero() {
		return nil, ErrForbidden
	}
	f := model.LabBookingFilter{LabID: q.LabID}
	if q.Status != "" {
		st, ok := model.ParseLabBookingStatus(q.Status)
		if !ok {
			return nil, invalid("status", "unknown booking status")
		}
		f.Status = st
	}
	if !s.can(ctx, p, model.PermCreateLab) {
		f.UserID = p.UserID
	}
	return s.store.ListLabBookings(ctx, f)
}

// parseRange reads a [start, end) time-of-day pair, recording field
// errors under prefix.
func parseRange(vErr *ValidationError, prefix, start, end string) (model.TimeRange, bool) {
	var r model.TimeRange
	ok := true
	st, err := model.ParseTimeOfDay(strings.TrimSpace(start))
	if err != nil {
		vErr.add(prefix+"start_time", "must be HH:MM")
		ok = false
	}
	en, err := model.ParseTimeOfDay(strings.TrimSpace(end))
	if err != nil {
		vErr.add(prefix+"end_time", "must be HH:MM")
		ok = false
	}
	if !ok {
		return r, false
	}
	r = model.TimeRange{Start: st, End: en}
	if !r.Valid() {
		vErr.add(prefix+"end_time", "must be after start_time")
		return r, false
	}
	return r, true
}

func labEvent(b model.LabBooking, action string, actor uint64) events.Event {
	return events.Event{
		Kind:       events.KindLabBooking,
		Action:     action,
		BookingID:  b.ID,
		ResourceID: b.LabID,
		OwnerID:    b.UserID,
		ActorID:    actor,
		Status:     string(b.Status),
	}
}
