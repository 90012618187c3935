package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/department-admin/internal/events"
	"github.com/iliyamo/department-admin/internal/model"
)

const maxTitleLen = 200

// MeetingScheduler books faculty-student meetings and drives the
// scheduling and RSVP state machines.
type MeetingScheduler struct {
	engine
}

// NewMeetingScheduler constructs the scheduler.
func NewMeetingScheduler(d Deps) *MeetingScheduler {
	return &MeetingScheduler{engine: newEngine(d)}
}

func (s *MeetingScheduler) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingScheduler", operation, attrs...)
}

// MeetingRequest is the input of Create.  A FACULTY caller may omit
// FacultyID and a STUDENT caller may omit StudentID; both default to the
// caller.  RSVPDeadline is an optional RFC 3339 instant.
type MeetingRequest struct {
	FacultyID    uint64
	StudentID    uint64
	Date         string
	StartTime    string
	EndTime      string
	Title        string
	Description  string
	Location     string
	Type         string
	RSVPDeadline string
}

// Create schedules a meeting.  Both parties' user rows are locked, their
// roles verified, and each party's calendar checked for overlap before
// the insert.
func (s *MeetingScheduler) Create(ctx context.Context, p model.Principal, in MeetingRequest) (m model.Meeting, err error) {
	logger := s.loggerWith(ctx, "Create", "principal_id", p.UserID)
	defer func() { finish(ctx, logger.With("meeting_id", m.ID), err, "meeting scheduled") }()

	if p.IsZero() {
		err = ErrForbidden
		return
	}
	if in.FacultyID == 0 && p.RoleID == model.RoleFaculty {
		in.FacultyID = p.UserID
	}
	if in.StudentID == 0 && p.RoleID == model.RoleStudent {
		in.StudentID = p.UserID
	}
	draft, vErr := s.validateMeeting(in)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	if p.UserID != draft.FacultyID && p.UserID != draft.StudentID {
		err = ErrForbidden
		return
	}
	draft.CreatedBy = p.UserID

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ids := []uint64{draft.FacultyID, draft.StudentID}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		roles, err := tx.LockUserRoles(ctx, ids...)
		if err != nil {
			return err
		}
		vErr := &ValidationError{}
		if r, ok := roles[draft.FacultyID]; !ok || r != model.RoleFaculty {
			vErr.add("faculty_id", "must reference a FACULTY user")
		}
		if r, ok := roles[draft.StudentID]; !ok || r != model.RoleStudent {
			vErr.add("student_id", "must reference a STUDENT user")
		}
		if vErr.HasErrors() {
			return vErr
		}

		for _, side := range []struct {
			party Party
			id    uint64
			name  string
		}{
			{PartyFaculty, draft.FacultyID, "faculty"},
			{PartyStudent, draft.StudentID, "student"},
		} {
			open, err := tx.OpenMeetings(ctx, side.party, side.id, draft.Date)
			if err != nil {
				return err
			}
			if c := meetingConflict(open, draft.TimeRange, side.name, side.id); c != nil {
				return c
			}
		}

		if err := tx.InsertMeeting(ctx, &draft); err != nil {
			return err
		}
		m = draft
		return nil
	})
	if err != nil {
		m = model.Meeting{}
		return
	}
	s.publish(ctx, meetingEvent(m, "SCHEDULED", p.UserID))
	return
}

func (s *MeetingScheduler) validateMeeting(in MeetingRequest) (model.Meeting, *ValidationError) {
	vErr := &ValidationError{}
	m := model.Meeting{
		FacultyID:   in.FacultyID,
		StudentID:   in.StudentID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Location:    strings.TrimSpace(in.Location),
		Type:        model.MeetingGeneral,
		Status:      model.MeetingScheduled,
		RSVPStatus:  model.RSVPPending,
	}
	if m.FacultyID == 0 {
		vErr.add("faculty_id", "is required")
	}
	if m.StudentID == 0 {
		vErr.add("student_id", "is required")
	}
	if m.FacultyID != 0 && m.FacultyID == m.StudentID {
		vErr.add("student_id", "must differ from faculty_id")
	}
	date, err := model.ParseDate(strings.TrimSpace(in.Date))
	switch {
	case err != nil:
		vErr.add("date", "must be a YYYY-MM-DD date")
	case date.Before(s.today()):
		vErr.add("date", "must not be in the past")
	default:
		m.Date = date
	}
	if r, ok := parseRange(vErr, "", in.StartTime, in.EndTime); ok {
		m.TimeRange = r
	}
	if m.Title == "" {
		vErr.add("title", "is required")
	} else if len(m.Title) > maxTitleLen {
		vErr.add("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}
	if raw := strings.TrimSpace(in.Type); raw != "" {
		t, ok := model.ParseMeetingType(raw)
		if !ok {
			vErr.add("type", "unknown meeting type")
		}
		m.Type = t
	}
	if raw := strings.TrimSpace(in.RSVPDeadline); raw != "" {
		d, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			vErr.add("rsvp_deadline", "must be an RFC 3339 timestamp")
		} else {
			d = d.UTC()
			m.RSVPDeadline = &d
		}
	}
	return m, vErr
}

// Get returns a meeting visible to one of its parties.
func (s *MeetingScheduler) Get(ctx context.Context, p model.Principal, id uint64) (model.Meeting, error) {
	m, err := s.store.GetMeeting(ctx, id)
	if err != nil {
		return model.Meeting{}, err
	}
	if !m.HasParty(p.UserID) {
		return model.Meeting{}, ErrForbidden
	}
	return m, nil
}

// RSVPInput is the input of UpdateRSVP.
type RSVPInput struct {
	Status string
	Notes  string
}

// UpdateRSVP records the invitee's response.  The creator of a meeting
// cannot answer it.  DECLINED cancels the meeting in the same
// transaction; CONFIRMED promotes SCHEDULED to CONFIRMED.  CONFIRMED and
// DECLINED are final, so scheduling state never has to be rolled back.
func (s *MeetingScheduler) UpdateRSVP(ctx context.Context, p model.Principal, id uint64, in RSVPInput) (m model.Meeting, err error) {
	logger := s.loggerWith(ctx, "UpdateRSVP", "principal_id", p.UserID, "meeting_id", id)
	defer func() {
		finish(ctx, logger.With("rsvp_status", m.RSVPStatus, "status", m.Status), err, "meeting rsvp updated")
	}()

	rsvp, ok := model.ParseRSVPStatus(in.Status)
	if !ok || rsvp == model.RSVPPending {
		err = invalid("status", "must be CONFIRMED, TENTATIVE or DECLINED")
		return
	}
	notes := strings.TrimSpace(in.Notes)
	now := s.now()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockMeeting(ctx, id)
		if err != nil {
			return err
		}
		if !cur.IsInvitee(p.UserID) {
			return ErrForbidden
		}
		if !cur.Status.Open() {
			return ErrInvalidTransition
		}
		if cur.RSVPDeadline != nil && now.After(*cur.RSVPDeadline) {
			return invalid("status", "the RSVP deadline has passed")
		}
		if !cur.RSVPStatus.CanMoveTo(rsvp) {
			return ErrInvalidTransition
		}
		cur.RSVPStatus = rsvp
		cur.RSVPNotes = nil
		if notes != "" {
			cur.RSVPNotes = &notes
		}
		switch rsvp {
		case model.RSVPDeclined:
			cur.Status = model.MeetingCancelled
		case model.RSVPConfirmed:
			if cur.Status == model.MeetingScheduled {
				cur.Status = model.MeetingConfirmed
			}
		}
		if err := tx.UpdateMeeting(ctx, &cur); err != nil {
			return err
		}
		m = cur
		return nil
	})
	if err != nil {
		m = model.Meeting{}
		return
	}
	s.publish(ctx, meetingEvent(m, "RSVP_"+string(rsvp), p.UserID))
	return
}

// Cancel cancels an open meeting on behalf of one of its parties.
func (s *MeetingScheduler) Cancel(ctx context.Context, p model.Principal, id uint64) (model.Meeting, error) {
	return s.move(ctx, p, id, "Cancel", model.MeetingCancelled)
}

// Complete marks a CONFIRMED meeting whose end has passed as COMPLETED.
func (s *MeetingScheduler) Complete(ctx context.Context, p model.Principal, id uint64) (model.Meeting, error) {
	return s.move(ctx, p, id, "Complete", model.MeetingCompleted)
}

func (s *MeetingScheduler) move(ctx context.Context, p model.Principal, id uint64, op string, to model.MeetingStatus) (m model.Meeting, err error) {
	logger := s.loggerWith(ctx, op, "principal_id", p.UserID, "meeting_id", id)
	defer func() { finish(ctx, logger, err, "meeting "+strings.ToLower(string(to))) }()

	now := s.now()
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.LockMeeting(ctx, id)
		if err != nil {
			return err
		}
		if !cur.HasParty(p.UserID) {
			return ErrForbidden
		}
		switch to {
		case model.MeetingCancelled:
			if !cur.Status.Open() {
				return ErrInvalidTransition
			}
		case model.MeetingCompleted:
			if cur.Status != model.MeetingConfirmed || now.Before(cur.Ends()) {
				return ErrInvalidTransition
			}
		}
		cur.Status = to
		if err := tx.UpdateMeeting(ctx, &cur); err != nil {
			return err
		}
		m = cur
		return nil
	})
	if err != nil {
		m = model.Meeting{}
		return
	}
	s.publish(ctx, meetingEvent(m, string(to), p.UserID))
	return
}

// MeetingQuery carries the raw list filters.
type MeetingQuery struct {
	StartDate string
	EndDate   string
	Status    string
	Type      string
	Upcoming  bool
}

// List returns the caller's meetings ordered by date and start time.
func (s *MeetingScheduler) List(ctx context.Context, p model.Principal, q MeetingQuery) ([]model.Meeting, error) {
	if p.IsZero() {
		return nil, ErrForbidden
	}
	f := model.MeetingFilter{PartyID: p.UserID, Upcoming: q.Upcoming, Today: s.today()}
	vErr := &ValidationError{}
	if raw := strings.TrimSpace(q.StartDate); raw != "" {
		if d, err := model.ParseDate(raw); err != nil {
			vErr.add("start_date", "must be a YYYY-MM-DD date")
		} else {
			f.StartDate = &d
		}
	}
	if raw := strings.TrimSpace(q.EndDate); raw != "" {
		if d, err := model.ParseDate(raw); err != nil {
			vErr.add("end_date", "must be a YYYY-MM-DD date")
		} else {
			f.EndDate = &d
		}
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		vErr.add("end_date", "must not be before start_date")
	}
	if q.Status != "" {
		st, ok := model.ParseMeetingStatus(q.Status)
		if !ok {
			vErr.add("status", "unknown meeting status")
		}
		f.Status = st
	}
	if q.Type != "" {
		t, ok := model.ParseMeetingType(q.Type)
		if !ok {
			vErr.add("type", "unknown meeting type")
		}
		f.Type = t
	}
	if vErr.HasErrors() {
		return nil, vErr
	}
	return s.store.ListMeetings(ctx, f)
}

// FacultyAvailability returns the busy windows of a faculty member on a
// date: every meeting that is not CANCELLED, ordered by start.
func (s *MeetingScheduler) FacultyAvailability(ctx context.Context, p model.Principal, facultyID uint64, rawDate string) ([]model.TimeRange, error) {
	if p.IsZero() {
		return nil, ErrForbidden
	}
	date, err := model.ParseDate(strings.TrimSpace(rawDate))
	if err != nil {
		return nil, invalid("date", "must be a YYYY-MM-DD date")
	}
	role, err := s.store.UserRole(ctx, facultyID)
	if err != nil {
		return nil, err
	}
	if role != model.RoleFaculty {
		return nil, ErrNotFound
	}
	open, err := s.store.OpenMeetings(ctx, PartyFaculty, facultyID, date)
	if err != nil {
		return nil, err
	}
	busy := make([]model.TimeRange, 0, len(open))
	for _, m := range open {
		if m.Status == model.MeetingCancelled {
			continue
		}
		busy = append(busy, m.TimeRange)
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start < busy[j].Start })
	return busy, nil
}

// Types lists the meeting types.
func (s *MeetingScheduler) Types() []model.MeetingType { return model.MeetingTypes() }

func meetingConflict(open []model.Meeting, r model.TimeRange, side string, userID uint64) *ConflictError {
	for _, o := range open {
		if o.Status == model.MeetingCancelled || !o.Overlaps(r) {
			continue
		}
		return &ConflictError{
			Resource:   side,
			ResourceID: userID,
			ExistingID: o.ID,
			Date:       o.Date.String(),
			Start:      o.Start.String(),
			End:        o.End.String(),
		}
	}
	return nil
}

func meetingEvent(m model.Meeting, action string, actor uint64) events.Event {
	return events.Event{
		Kind:       events.KindMeeting,
		Action:     action,
		BookingID:  m.ID,
		ResourceID: m.FacultyID,
		OwnerID:    m.StudentID,
		ActorID:    actor,
		Status:     string(m.Status),
	}
}
