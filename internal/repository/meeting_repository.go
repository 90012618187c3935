package repository

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/model"
)

const meetingCols = "id, faculty_id, student_id, `date`, start_time, end_time, title, description, location, " +
	"type, status, rsvp_status, rsvp_deadline, rsvp_notes, created_by, created_at, updated_at"

func scanMeeting(row scanner) (model.Meeting, error) {
	var (
		m        model.Meeting
		desc     sql.NullString
		deadline sql.NullTime
		notes    sql.NullString
	)
	err := row.Scan(&m.ID, &m.FacultyID, &m.StudentID, &m.Date, &m.Start, &m.End,
		&m.Title, &desc, &m.Location, &m.Type, &m.Status, &m.RSVPStatus,
		&deadline, &notes, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	m.Description = desc.String
	if deadline.Valid {
		d := deadline.Time.UTC()
		m.RSVPDeadline = &d
	}
	if notes.Valid {
		n := notes.String
		m.RSVPNotes = &n
	}
	return m, nil
}

func queryMeetings(ctx context.Context, q querier, query string, args ...any) ([]model.Meeting, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func getMeeting(ctx context.Context, q querier, id uint64, lock bool) (model.Meeting, error) {
	query := "SELECT " + meetingCols + " FROM meetings WHERE id=?"
	if lock {
		query += " FOR UPDATE"
	}
	m, err := scanMeeting(q.QueryRowContext(ctx, query, id))
	return m, mapErr(err)
}

// openMeetings returns the party's non-cancelled meetings on date.
func openMeetings(ctx context.Context, q querier, party booking.Party, userID uint64, date model.Date) ([]model.Meeting, error) {
	col := "faculty_id"
	if party == booking.PartyStudent {
		col = "student_id"
	}
	return queryMeetings(ctx, q,
		"SELECT "+meetingCols+" FROM meetings WHERE "+col+"=? AND `date`=? AND status <> 'CANCELLED' ORDER BY start_time, id",
		userID, date)
}

func listMeetings(ctx context.Context, q querier, f model.MeetingFilter) ([]model.Meeting, error) {
	stmt := sq.Select(meetingCols).From("meetings")
	if f.PartyID != 0 {
		stmt = stmt.Where(sq.Or{sq.Eq{"faculty_id": f.PartyID}, sq.Eq{"student_id": f.PartyID}})
	}
	if f.StartDate != nil {
		stmt = stmt.Where(sq.GtOrEq{"`date`": *f.StartDate})
	}
	if f.EndDate != nil {
		stmt = stmt.Where(sq.LtOrEq{"`date`": *f.EndDate})
	}
	if f.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Type != "" {
		stmt = stmt.Where(sq.Eq{"type": string(f.Type)})
	}
	if f.Upcoming {
		stmt = stmt.Where(sq.GtOrEq{"`date`": f.Today}).
			Where(sq.Eq{"status": []string{string(model.MeetingScheduled), string(model.MeetingConfirmed)}})
	}
	query, args, err := stmt.OrderBy("`date` ASC", "start_time ASC", "id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	return queryMeetings(ctx, q, query, args...)
}

func insertMeeting(ctx context.Context, q querier, m *model.Meeting) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO meetings (faculty_id, student_id, `+"`date`"+`, start_time, end_time, title, description,
		                       location, type, status, rsvp_status, rsvp_deadline, created_by)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.FacultyID, m.StudentID, m.Date, m.Start, m.End, m.Title, nullString(m.Description),
		m.Location, string(m.Type), string(m.Status), string(m.RSVPStatus), m.RSVPDeadline, m.CreatedBy)
	if err != nil {
		return mapErr(err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	created, err := getMeeting(ctx, q, id, false)
	if err != nil {
		return err
	}
	*m = created
	return nil
}

func updateMeeting(ctx context.Context, q querier, m *model.Meeting) error {
	_, err := q.ExecContext(ctx,
		"UPDATE meetings SET status=?, rsvp_status=?, rsvp_notes=? WHERE id=?",
		string(m.Status), string(m.RSVPStatus), m.RSVPNotes, m.ID)
	return mapErr(err)
}
