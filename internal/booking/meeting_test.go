package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/model"
)

var (
	faculty      = as(129, model.RoleFaculty)
	otherFaculty = as(130, model.RoleFaculty)
)

func newScheduler(t *testing.T, clock *testClock) (*booking.MeetingScheduler, *memStore) {
	t.Helper()
	store := newMemStore()
	store.addUser(student.UserID, model.RoleStudent)
	store.addUser(other.UserID, model.RoleStudent)
	store.addUser(faculty.UserID, model.RoleFaculty)
	store.addUser(otherFaculty.UserID, model.RoleFaculty)
	store.addUser(teacher.UserID, model.RoleTeacher)
	svc := booking.NewMeetingScheduler(booking.Deps{
		Store:      store,
		Authorizer: grantsAuthz{},
		Now:        clock.Now,
	})
	return svc, store
}

func meetingAt(start, end string) booking.MeetingRequest {
	return booking.MeetingRequest{Date: "2025-07-15", StartTime: start, EndTime: end, Title: "Advising"}
}

func TestMeetingOverlapAndAdjacency(t *testing.T) {
	ctx := context.Background()
	svc, _ := newScheduler(t, newClock())

	in := meetingAt("10:00", "11:00")
	in.StudentID = student.UserID
	first, err := svc.Create(ctx, faculty, in)
	require.NoError(t, err)
	require.Equal(t, faculty.UserID, first.FacultyID)
	require.Equal(t, model.MeetingScheduled, first.Status)
	require.Equal(t, model.RSVPPending, first.RSVPStatus)
	require.Equal(t, model.MeetingGeneral, first.Type)
	require.Equal(t, faculty.UserID, first.CreatedBy)

	overlap := meetingAt("10:30", "11:30")
	overlap.FacultyID = faculty.UserID
	_, err = svc.Create(ctx, other, overlap)
	var conflict *booking.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "faculty", conflict.Resource)
	require.Equal(t, first.ID, conflict.ExistingID)
	require.Equal(t, "10:00", conflict.Start)
	require.Equal(t, "11:00", conflict.End)

	adjacent := meetingAt("11:00", "12:00")
	adjacent.FacultyID = faculty.UserID
	_, err = svc.Create(ctx, other, adjacent)
	require.NoError(t, err)

	// The student side is checked too.
	studentClash := meetingAt("10:15", "10:45")
	studentClash.FacultyID = otherFaculty.UserID
	_, err = svc.Create(ctx, student, studentClash)
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "student", conflict.Resource)
}

func TestMeetingCreateValidation(t *testing.T) {
	svc, _ := newScheduler(t, newClock())

	cases := []struct {
		name   string
		caller model.Principal
		in     booking.MeetingRequest
		field  string
	}{
		{"same party", faculty, booking.MeetingRequest{StudentID: faculty.UserID, Date: "2025-07-15", StartTime: "10:00", EndTime: "11:00", Title: "x"}, "student_id"},
		{"student not a student", faculty, booking.MeetingRequest{StudentID: otherFaculty.UserID, Date: "2025-07-15", StartTime: "10:00", EndTime: "11:00", Title: "x"}, "student_id"},
		{"faculty not a faculty", student, booking.MeetingRequest{FacultyID: teacher.UserID, Date: "2025-07-15", StartTime: "10:00", EndTime: "11:00", Title: "x"}, "faculty_id"},
		{"unknown faculty", student, booking.MeetingRequest{FacultyID: 4040, Date: "2025-07-15", StartTime: "10:00", EndTime: "11:00", Title: "x"}, "faculty_id"},
		{"reversed window", student, booking.MeetingRequest{FacultyID: faculty.UserID, Date: "2025-07-15", StartTime: "11:00", EndTime: "10:00", Title: "x"}, "end_time"},
		{"bad time encoding", student, booking.MeetingRequest{FacultyID: faculty.UserID, Date: "2025-07-15", StartTime: "10am", EndTime: "11:00", Title: "x"}, "start_time"},
		{"past date", student, booking.MeetingRequest{FacultyID: faculty.UserID, Date: "2025-07-01", StartTime: "10:00", EndTime: "11:00", Title: "x"}, "date"},
		{"missing title", student, booking.MeetingRequest{FacultyID: faculty.UserID, Date: "2025-07-15", StartTime: "10:00", EndTime: "11:00"}, "title"},
		{"unknown type", student, booking.MeetingRequest{FacultyID: faculty.UserID, Date: "2025-07-15", StartTime: "10:00", EndTime: "11:00", Title: "x", Type: "party"}, "type"},
		{"missing faculty", teacher, booking.MeetingRequest{StudentID: student.UserID, Date: "2025-07-15", StartTime: "10:00", EndTime: "11:00", Title: "x"}, "faculty_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.caller, tc.in)
			var vErr *booking.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Contains(t, vErr.FieldErrors, tc.field)
		})
	}
}

func TestMeetingCreateRequiresParty(t *testing.T) {
	svc, _ := newScheduler(t, newClock())
	in := meetingAt("10:00", "11:00")
	in.FacultyID, in.StudentID = faculty.UserID, student.UserID

	_, err := svc.Create(context.Background(), other, in)
	require.ErrorIs(t, err, booking.ErrForbidden)
	_, err = svc.Create(context.Background(), model.Principal{}, in)
	require.ErrorIs(t, err, booking.ErrForbidden)
}

func TestDeclineCancelsAndFreesWindow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newScheduler(t, newClock())

	in := meetingAt("10:00", "11:00")
	in.StudentID = student.UserID
	m, err := svc.Create(ctx, faculty, in)
	require.NoError(t, err)

	declined, err := svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "declined", Notes: "exam clash"})
	require.NoError(t, err)
	require.Equal(t, model.RSVPDeclined, declined.RSVPStatus)
	require.Equal(t, model.MeetingCancelled, declined.Status)
	require.NotNil(t, declined.RSVPNotes)
	require.Equal(t, "exam clash", *declined.RSVPNotes)

	rebook := meetingAt("10:00", "11:00")
	rebook.FacultyID = faculty.UserID
	_, err = svc.Create(ctx, other, rebook)
	require.NoError(t, err)

	_, err = svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestRSVPTransitions(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc, _ := newScheduler(t, clock)

	in := meetingAt("10:00", "11:00")
	in.StudentID = student.UserID
	in.RSVPDeadline = time.Date(2025, 7, 14, 18, 0, 0, 0, time.UTC).Format(time.RFC3339)
	m, err := svc.Create(ctx, faculty, in)
	require.NoError(t, err)
	require.NotNil(t, m.RSVPDeadline)

	_, err = svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "PENDING"})
	var vErr *booking.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.UpdateRSVP(ctx, other, m.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.ErrorIs(t, err, booking.ErrForbidden)

	tentative, err := svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "TENTATIVE"})
	require.NoError(t, err)
	require.Equal(t, model.MeetingScheduled, tentative.Status)

	confirmed, err := svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.NoError(t, err)
	require.Equal(t, model.MeetingConfirmed, confirmed.Status)
	require.Equal(t, model.RSVPConfirmed, confirmed.RSVPStatus)

	clock.Set(time.Date(2025, 7, 14, 19, 0, 0, 0, time.UTC))
	_, err = svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "TENTATIVE"})
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, vErr.FieldErrors, "status")
}

func TestRSVPCreatorCannotAnswer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newScheduler(t, newClock())

	in := meetingAt("10:00", "11:00")
	in.StudentID = student.UserID
	m, err := svc.Create(ctx, faculty, in)
	require.NoError(t, err)

	_, err = svc.UpdateRSVP(ctx, faculty, m.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.ErrorIs(t, err, booking.ErrForbidden)

	got, err := svc.Get(ctx, student, m.ID)
	require.NoError(t, err)
	require.Equal(t, model.MeetingScheduled, got.Status)
	require.Equal(t, model.RSVPPending, got.RSVPStatus)

	// A student-created meeting is answered by the faculty member.
	in2 := meetingAt("12:00", "13:00")
	in2.FacultyID = faculty.UserID
	m2, err := svc.Create(ctx, student, in2)
	require.NoError(t, err)
	_, err = svc.UpdateRSVP(ctx, student, m2.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.ErrorIs(t, err, booking.ErrForbidden)
	answered, err := svc.UpdateRSVP(ctx, faculty, m2.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.NoError(t, err)
	require.Equal(t, model.MeetingConfirmed, answered.Status)
}

func TestRSVPFirmAnswerIsFinal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newScheduler(t, newClock())

	in := meetingAt("10:00", "11:00")
	in.StudentID = student.UserID
	m, err := svc.Create(ctx, faculty, in)
	require.NoError(t, err)

	tentative, err := svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "TENTATIVE", Notes: "n1"})
	require.NoError(t, err)
	require.NotNil(t, tentative.RSVPNotes)

	_, err = svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "TENTATIVE"})
	require.ErrorIs(t, err, booking.ErrInvalidTransition)

	confirmed, err := svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.NoError(t, err)
	require.Equal(t, model.MeetingConfirmed, confirmed.Status)
	require.Nil(t, confirmed.RSVPNotes)

	for _, status := range []string{"TENTATIVE", "DECLINED", "CONFIRMED"} {
		_, err = svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: status})
		require.ErrorIs(t, err, booking.ErrInvalidTransition, status)
	}

	got, err := svc.Get(ctx, faculty, m.ID)
	require.NoError(t, err)
	require.Equal(t, model.MeetingConfirmed, got.Status)
	require.Equal(t, model.RSVPConfirmed, got.RSVPStatus)
}

func TestMeetingCancelAndComplete(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	svc, _ := newScheduler(t, clock)

	in := meetingAt("10:00", "11:00")
	in.StudentID = student.UserID
	m, err := svc.Create(ctx, faculty, in)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, faculty, m.ID)
	require.ErrorIs(t, err, booking.ErrInvalidTransition)

	_, err = svc.UpdateRSVP(ctx, student, m.ID, booking.RSVPInput{Status: "CONFIRMED"})
	require.NoError(t, err)
	_, err = svc.Complete(ctx, faculty, m.ID)
	require.ErrorIs(t, err, booking.ErrInvalidTransition)

	clock.Set(time.Date(2025, 7, 15, 11, 0, 0, 0, time.UTC))
	_, err = svc.Complete(ctx, other, m.ID)
	require.ErrorIs(t, err, booking.ErrForbidden)
	done, err := svc.Complete(ctx, faculty, m.ID)
	require.NoError(t, err)
	require.Equal(t, model.MeetingCompleted, done.Status)

	_, err = svc.Cancel(ctx, student, m.ID)
	require.ErrorIs(t, err, booking.ErrInvalidTransition)

	in2 := meetingAt("14:00", "15:00")
	in2.Date = "2025-07-16"
	in2.StudentID = student.UserID
	m2, err := svc.Create(ctx, faculty, in2)
	require.NoError(t, err)
	cancelled, err := svc.Cancel(ctx, student, m2.ID)
	require.NoError(t, err)
	require.Equal(t, model.MeetingCancelled, cancelled.Status)
}

func TestFacultyAvailability(t *testing.T) {
	ctx := context.Background()
	svc, store := newScheduler(t, newClock())
	date, err := model.ParseDate("2025-07-15")
	require.NoError(t, err)

	store.addMeeting(model.Meeting{
		FacultyID: faculty.UserID, StudentID: student.UserID, Date: date,
		TimeRange: model.TimeRange{Start: model.MustTimeOfDay("09:00"), End: model.MustTimeOfDay("10:00")},
		Status:    model.MeetingConfirmed, RSVPStatus: model.RSVPConfirmed, Type: model.MeetingAdvising,
	})
	store.addMeeting(model.Meeting{
		FacultyID: faculty.UserID, StudentID: other.UserID, Date: date,
		TimeRange: model.TimeRange{Start: model.MustTimeOfDay("14:00"), End: model.MustTimeOfDay("15:00")},
		Status:    model.MeetingCancelled, RSVPStatus: model.RSVPDeclined, Type: model.MeetingThesis,
	})

	busy, err := svc.FacultyAvailability(ctx, student, faculty.UserID, "2025-07-15")
	require.NoError(t, err)
	require.Equal(t, []model.TimeRange{{Start: model.MustTimeOfDay("09:00"), End: model.MustTimeOfDay("10:00")}}, busy)

	busy, err = svc.FacultyAvailability(ctx, student, faculty.UserID, "2025-07-16")
	require.NoError(t, err)
	require.Empty(t, busy)

	_, err = svc.FacultyAvailability(ctx, student, student.UserID, "2025-07-15")
	require.ErrorIs(t, err, booking.ErrNotFound)

	_, err = svc.FacultyAvailability(ctx, student, faculty.UserID, "tomorrow")
	var vErr *booking.ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestMeetingListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	svc, store := newScheduler(t, newClock())

	past, err := model.ParseDate("2025-07-10")
	require.NoError(t, err)
	store.addMeeting(model.Meeting{
		FacultyID: faculty.UserID, StudentID: student.UserID, Date: past,
		TimeRange: model.TimeRange{Start: model.MustTimeOfDay("09:00"), End: model.MustTimeOfDay("10:00")},
		Status:    model.MeetingCompleted, Type: model.MeetingGeneral,
	})

	later := meetingAt("15:00", "16:00")
	later.StudentID = student.UserID
	later.Type = "thesis"
	_, err = svc.Create(ctx, faculty, later)
	require.NoError(t, err)
	earlier := meetingAt("09:00", "09:30")
	earlier.StudentID = student.UserID
	_, err = svc.Create(ctx, faculty, earlier)
	require.NoError(t, err)
	notMine := meetingAt("12:00", "13:00")
	notMine.StudentID = other.UserID
	_, err = svc.Create(ctx, faculty, notMine)
	require.NoError(t, err)

	all, err := svc.List(ctx, student, booking.MeetingQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "2025-07-10", all[0].Date.String())
	require.Equal(t, model.MustTimeOfDay("09:00"), all[1].Start)
	require.Equal(t, model.MustTimeOfDay("15:00"), all[2].Start)

	upcoming, err := svc.List(ctx, student, booking.MeetingQuery{Upcoming: true})
	require.NoError(t, err)
	require.Len(t, upcoming, 2)

	thesis, err := svc.List(ctx, student, booking.MeetingQuery{Type: "THESIS", StartDate: "2025-07-15", EndDate: "2025-07-15"})
	require.NoError(t, err)
	require.Len(t, thesis, 1)

	forFaculty, err := svc.List(ctx, faculty, booking.MeetingQuery{Status: "scheduled"})
	require.NoError(t, err)
	require.Len(t, forFaculty, 3)

	_, err = svc.List(ctx, student, booking.MeetingQuery{StartDate: "2025-07-16", EndDate: "2025-07-15"})
	var vErr *booking.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, vErr.FieldErrors, "end_date")
}

func TestMeetingGetIsPartyOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newScheduler(t, newClock())

	in := meetingAt("10:00", "11:00")
	in.StudentID = student.UserID
	m, err := svc.Create(ctx, faculty, in)
	require.NoError(t, err)

	got, err := svc.Get(ctx, student, m.ID)
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)

	_, err = svc.Get(ctx, other, m.ID)
	require.ErrorIs(t, err, booking.ErrForbidden)
	_, err = svc.Get(ctx, student, 9999)
	require.ErrorIs(t, err, booking.ErrNotFound)

	require.Len(t, svc.Types(), 5)
}
