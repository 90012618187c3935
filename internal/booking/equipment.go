package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/department-admin/internal/events"
	"github.com/iliyamo/department-admin/internal/model"
)

const maxPurposeLen = 500

// EquipmentService admits equipment bookings, drives their state machine
// and maintains the equipment catalogue.  Every admission and release
// runs in one store transaction holding the equipment row lock, so the
// available counter and the booking rows move together.
type EquipmentService struct {
	engine
}

// NewEquipmentService constructs the equipment engine.
func NewEquipmentService(d Deps) *EquipmentService {
	return &EquipmentService{engine: newEngine(d)}
}

func (s *EquipmentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EquipmentService", operation, attrs...)
}

// EquipmentRequest is the input of Request.  Times are RFC 3339.
type EquipmentRequest struct {
	EquipmentID uint64
	StartTime   string
	EndTime     string
	Purpose     string
}

// Request books one unit of equipment for a window.  The booking starts
// APPROVED unless the equipment requires approval.
func (s *EquipmentService) Request(ctx context.Context, p model.Principal, in EquipmentRequest) (b model.EquipmentBooking, err error) {
	logger := s.loggerWith(ctx, "Request", "principal_id", p.UserID, "equipment_id", in.EquipmentID)
	defer func() {
		finish(ctx, logger.With("booking_id", b.ID, "status", b.Status), err, "equipment booking requested")
	}()

	if err = s.require(ctx, p, model.PermBookEquipment); err != nil {
		return
	}
	w, vErr := s.validateRequest(in)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		eq, err := tx.LockEquipment(ctx, in.EquipmentID)
		if err != nil {
			return err
		}
		if eq.Available <= 0 {
			return ErrCapacityExhausted
		}
		existing, err := tx.OverlappingEquipmentBookings(ctx, eq.ID, w)
		if err != nil {
			return err
		}
		for _, o := range existing {
			if o.Status.Active() && o.Window.Overlaps(w) {
				return equipmentConflict(o)
			}
		}

		eq.Available--
		if err := tx.UpdateEquipment(ctx, &eq); err != nil {
			return err
		}
		nb := model.EquipmentBooking{
			EquipmentID: eq.ID,
			UserID:      p.UserID,
			Window:      w,
			Purpose:     strings.TrimSpace(in.Purpose),
			Status:      model.EquipmentApproved,
		}
		if eq.RequiresApproval {
			nb.Status = model.EquipmentPending
		}
		if err := tx.InsertEquipmentBooking(ctx, &nb); err != nil {
			return err
		}
		b = nb
		return nil
	})
	if err != nil {
		b = model.EquipmentBooking{}
		return
	}
	s.publish(ctx, equipmentEvent(b, "REQUESTED", p.UserID))
	return
}

func (s *EquipmentService) validateRequest(in EquipmentRequest) (model.Window, *ValidationError) {
	vErr := &ValidationError{}
	if in.EquipmentID == 0 {
		vErr.add("equipment_id", "is required")
	}
	start, okStart := parseInstant(vErr, "start_time", in.StartTime)
	end, okEnd := parseInstant(vErr, "end_time", in.EndTime)
	w := model.Window{Start: start, End: end}
	if okStart && okEnd {
		if !w.Valid() {
			vErr.add("end_time", "must be after start_time")
		}
		if start.Before(s.now()) {
			vErr.add("start_time", "must not be in the past")
		}
	}
	if len(in.Purpose) > maxPurposeLen {
		vErr.add("purpose", fmt.Sprintf("must be at most %d characters", maxPurposeLen))
	}
	return w, vErr
}

// Approve moves a PENDING booking to APPROVED.  Approving an APPROVED
// booking succeeds without change.
func (s *EquipmentService) Approve(ctx context.Context, p model.Principal, id uint64) (b model.EquipmentBooking, err error) {
	logger := s.loggerWith(ctx, "Approve", "principal_id", p.UserID, "booking_id", id)
	defer func() { finish(ctx, logger, err, "equipment booking approved") }()

	if err = s.require(ctx, p, model.PermApproveEquipmentBooking); err != nil {
		return
	}
	changed := false
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockEquipmentBooking(ctx, id)
		if err != nil {
			return err
		}
		switch cur.Status {
		case model.EquipmentApproved:
			b = cur
			return nil
		case model.EquipmentPending:
		default:
			return ErrInvalidTransition
		}
		approver := p.UserID
		cur.Status = model.EquipmentApproved
		cur.ApprovedBy = &approver
		if err := tx.UpdateEquipmentBooking(ctx, &cur); err != nil {
			return err
		}
		b, changed = cur, true
		return nil
	})
	if err == nil && changed {
		s.publish(ctx, equipmentEvent(b, "APPROVED", p.UserID))
	}
	return
}

// Reject moves a PENDING booking to REJECTED and returns its unit.
func (s *EquipmentService) Reject(ctx context.Context, p model.Principal, id uint64, reason string) (b model.EquipmentBooking, err error) {
	logger := s.loggerWith(ctx, "Reject", "principal_id", p.UserID, "booking_id", id)
	defer func() { finish(ctx, logger, err, "equipment booking rejected") }()

	if err = s.require(ctx, p, model.PermApproveEquipmentBooking); err != nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxPurposeLen {
		err = invalid("reason", fmt.Sprintf("must be at most %d characters", maxPurposeLen))
		return
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockEquipmentBooking(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.EquipmentPending {
			return ErrInvalidTransition
		}
		approver := p.UserID
		cur.Status = model.EquipmentRejected
		cur.ApprovedBy = &approver
		if reason != "" {
			cur.RejectionReason = &reason
		}
		if err := s.releaseUnit(ctx, tx, cur.EquipmentID); err != nil {
			return err
		}
		if err := tx.UpdateEquipmentBooking(ctx, &cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err == nil {
		s.publish(ctx, equipmentEvent(b, "REJECTED", p.UserID))
	}
	return
}

// Cancel withdraws a PENDING or APPROVED booking and returns its unit.
// The requester may cancel their own booking; approvers may cancel any.
func (s *EquipmentService) Cancel(ctx context.Context, p model.Principal, id uint64) (b model.EquipmentBooking, err error) {
	logger := s.loggerWith(ctx, "Cancel", "principal_id", p.UserID, "booking_id", id)
	defer func() { finish(ctx, logger, err, "equipment booking cancelled") }()

	if p.IsZero() {
		err = ErrForbidden
		return
	}
	isApprover := s.can(ctx, p, model.PermApproveEquipmentBooking)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockEquipmentBooking(ctx, id)
		if err != nil {
			return err
		}
		if cur.UserID != p.UserID && !isApprover {
			return ErrForbidden
		}
		if !cur.Status.Active() {
			return ErrInvalidTransition
		}
		cur.Status = model.EquipmentCancelled
		if err := s.releaseUnit(ctx, tx, cur.EquipmentID); err != nil {
			return err
		}
		if err := tx.UpdateEquipmentBooking(ctx, &cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err == nil {
		s.publish(ctx, equipmentEvent(b, "CANCELLED", p.UserID))
	}
	return
}

// Complete marks an APPROVED booking whose window has ended as
// COMPLETED and returns its unit.
func (s *EquipmentService) Complete(ctx context.Context, p model.Principal, id uint64) (b model.EquipmentBooking, err error) {
	logger := s.loggerWith(ctx, "Complete", "principal_id", p.UserID, "booking_id", id)
	defer func() { finish(ctx, logger, err, "equipment booking completed") }()

	if err = s.require(ctx, p, model.PermApproveEquipmentBooking); err != nil {
		return
	}
	b, err = s.complete(ctx, id, p.UserID)
	return
}

// CompleteDue completes every APPROVED booking that has ended.  A
// booking cancelled between the scan and its transaction is skipped.
func (s *EquipmentService) CompleteDue(ctx context.Context) (n int, err error) {
	logger := s.loggerWith(ctx, "CompleteDue")
	ids, err := s.store.DueEquipmentBookings(ctx, s.now())
	if err != nil {
		logger.ErrorContext(ctx, "list due bookings failed", "error", err)
		return 0, err
	}
	for _, id := range ids {
		if _, cErr := s.complete(ctx, id, 0); cErr != nil {
			if errors.Is(cErr, ErrInvalidTransition) || errors.Is(cErr, ErrNotFound) {
				continue
			}
			logger.ErrorContext(ctx, "complete booking failed", "booking_id", id, "error", cErr)
			err = errors.Join(err, cErr)
			continue
		}
		n++
	}
	if n > 0 {
		logger.InfoContext(ctx, "completed due bookings", "count", n)
	}
	return n, err
}

func (s *EquipmentService) complete(ctx context.Context, id, actor uint64) (b model.EquipmentBooking, err error) {
	now := s.now()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockEquipmentBooking(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.EquipmentApproved || now.Before(cur.End) {
			return ErrInvalidTransition
		}
		cur.Status = model.EquipmentCompleted
		if err := s.releaseUnit(ctx, tx, cur.EquipmentID); err != nil {
			return err
		}
		if err := tx.UpdateEquipmentBooking(ctx, &cur); err != nil {
			return err
		}
		b = cur
		return nil
	})
	if err == nil {
		s.publish(ctx, equipmentEvent(b, "COMPLETED", actor))
	}
	return
}

// releaseUnit returns one unit to the pool under the equipment row lock.
func (s *EquipmentService) releaseUnit(ctx context.Context, tx Tx, equipmentID uint64) error {
	eq, err := tx.LockEquipment(ctx, equipmentID)
	if err != nil {
		return err
	}
	if eq.Available >= eq.Quantity {
		return fmt.Errorf("equipment %d: available %d already at quantity %d", eq.ID, eq.Available, eq.Quantity)
	}
	eq.Available++
	return tx.UpdateEquipment(ctx, &eq)
}

// EquipmentBookingQuery is the input of List.
type EquipmentBookingQuery struct {
	Status      string
	EquipmentID uint64
}

// List returns bookings visible to p ordered by start time.  Approvers
// see every booking; everyone else sees their own.
func (s *EquipmentService) List(ctx context.Context, p model.Principal, q EquipmentBookingQuery) ([]model.EquipmentBooking, error) {
	if err := s.require(ctx, p, model.PermViewEquipmentBookings); err != nil {
		return nil, err
	}
	f := model.EquipmentBookingFilter{EquipmentID: q.EquipmentID}
	if q.Status != "" {
		st, ok := model.ParseEquipmentBookingStatus(q.Status)
		if !ok {
			return nil, invalid("status", "unknown booking status")
		}
		f.Status = st
	}
	if !s.can(ctx, p, model.PermApproveEquipmentBooking) {
		f.UserID = p.UserID
	}
	return s.store.ListEquipmentBookings(ctx, f)
}

// CategoryInput is the input of CreateCategory.
type CategoryInput struct {
	Name        string
	Icon        string
	Description string
}

// CreateCategory adds an equipment category.
func (s *EquipmentService) CreateCategory(ctx context.Context, p model.Principal, in CategoryInput) (c model.EquipmentCategory, err error) {
	logger := s.loggerWith(ctx, "CreateCategory", "principal_id", p.UserID)
	defer func() { finish(ctx, logger.With("category_id", c.ID), err, "equipment category created") }()

	if err = s.require(ctx, p, model.PermManageEquipment); err != nil {
		return
	}
	c = model.EquipmentCategory{
		Name:        strings.TrimSpace(in.Name),
		Icon:        strings.TrimSpace(in.Icon),
		Description: strings.TrimSpace(in.Description),
	}
	if c.Name == "" {
		err = invalid("name", "is required")
		return
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertEquipmentCategory(ctx, &c)
	})
	if errors.Is(err, ErrDuplicate) {
		err = invalid("name", "already exists")
	}
	return
}

// ListCategories returns all equipment categories.
func (s *EquipmentService) ListCategories(ctx context.Context) ([]model.EquipmentCategory, error) {
	return s.store.ListEquipmentCategories(ctx)
}

// ListEquipment returns the catalogue with current availability.
func (s *EquipmentService) ListEquipment(ctx context.Context) ([]model.Equipment, error) {
	return s.store.ListEquipment(ctx)
}

// EquipmentInput creates equipment.  Available starts equal to Quantity.
type EquipmentInput struct {
	Name             string
	CategoryID       uint64
	Quantity         int
	RequiresApproval bool
	Location         string
}

// CreateEquipment adds equipment to the catalogue.
func (s *EquipmentService) CreateEquipment(ctx context.Context, p model.Principal, in EquipmentInput) (e model.Equipment, err error) {
	logger := s.loggerWith(ctx, "CreateEquipment", "principal_id", p.UserID)
	defer func() { finish(ctx, logger.With("equipment_id", e.ID), err, "equipment created") }()

	if err = s.require(ctx, p, model.PermManageEquipment); err != nil {
		return
	}
	vErr := &ValidationError{}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		vErr.add("name", "is required")
	}
	if in.CategoryID == 0 {
		vErr.add("category_id", "is required")
	}
	if in.Quantity < 1 {
		vErr.add("quantity", "must be at least 1")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}
	e = model.Equipment{
		Name:             name,
		CategoryID:       in.CategoryID,
		Quantity:         in.Quantity,
		Available:        in.Quantity,
		RequiresApproval: in.RequiresApproval,
		Location:         strings.TrimSpace(in.Location),
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertEquipment(ctx, &e)
	})
	if errors.Is(err, ErrNotFound) {
		err = invalid("category_id", "unknown category")
	}
	return
}

// EquipmentUpdate is a partial update; nil fields are left unchanged.
type EquipmentUpdate struct {
	Name             *string
	CategoryID       *uint64
	Quantity         *int
	RequiresApproval *bool
	Location         *string
}

// UpdateEquipment edits equipment.  Quantity may never drop below the
// number of units currently booked; available moves by the same delta.
func (s *EquipmentService) UpdateEquipment(ctx context.Context, p model.Principal, id uint64, in EquipmentUpdate) (e model.Equipment, err error) {
	logger := s.loggerWith(ctx, "UpdateEquipment", "principal_id", p.UserID, "equipment_id", id)
	defer func() { finish(ctx, logger, err, "equipment updated") }()

	if err = s.require(ctx, p, model.PermManageEquipment); err != nil {
		return
	}
	locked := false
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockEquipment(ctx, id)
		if err != nil {
			return err
		}
		locked = true
		vErr := &ValidationError{}
		if in.Name != nil {
			if n := strings.TrimSpace(*in.Name); n == "" {
				vErr.add("name", "must not be empty")
			} else {
				cur.Name = n
			}
		}
		if in.CategoryID != nil {
			if *in.CategoryID == 0 {
				vErr.add("category_id", "must not be empty")
			} else {
				cur.CategoryID = *in.CategoryID
			}
		}
		if in.Quantity != nil {
			booked := cur.Booked()
			switch {
			case *in.Quantity < 1:
				vErr.add("quantity", "must be at least 1")
			case *in.Quantity < booked:
				vErr.add("quantity", fmt.Sprintf("must not be below the %d units currently booked", booked))
			default:
				cur.Quantity = *in.Quantity
				cur.Available = cur.Quantity - booked
			}
		}
		if in.RequiresApproval != nil {
			cur.RequiresApproval = *in.RequiresApproval
		}
		if in.Location != nil {
			cur.Location = strings.TrimSpace(*in.Location)
		}
		if vErr.HasErrors() {
			return vErr
		}
		if err := tx.UpdateEquipment(ctx, &cur); err != nil {
			return err
		}
		e = cur
		return nil
	})
	if locked && errors.Is(err, ErrNotFound) {
		// The equipment row exists, so the store's not-found refers to
		// the category reference.
		err = invalid("category_id", "unknown category")
	}
	return
}

func parseInstant(vErr *ValidationError, field, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		vErr.add(field, "is required")
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		vErr.add(field, "must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return t.UTC(), true
}

func equipmentConflict(o model.EquipmentBooking) *ConflictError {
	return &ConflictError{
		Resource:   "equipment",
		ResourceID: o.EquipmentID,
		ExistingID: o.ID,
		Start:      o.Start.UTC().Format(time.RFC3339),
		End:        o.End.UTC().Format(time.RFC3339),
	}
}

func equipmentEvent(b model.EquipmentBooking, action string, actor uint64) events.Event {
	return events.Event{
		Kind:       events.KindEquipmentBooking,
		Action:     action,
		BookingID:  b.ID,
		ResourceID: b.EquipmentID,
		OwnerID:    b.UserID,
		ActorID:    actor,
		Status:     string(b.Status),
	}
}
