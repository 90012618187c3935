package repository

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/department-admin/internal/model"
)

const labCols = "id, name, capacity, location, facilities, created_at"

const labSlotCols = "id, lab_id, day_of_week, start_time, end_time"

const labBookingCols = "id, lab_id, user_id, time_slot_id, `date`, purpose, status, created_at, updated_at"

func scanLab(row scanner) (model.Lab, error) {
	var (
		l          model.Lab
		facilities sql.NullString
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Capacity, &l.Location, &facilities, &l.CreatedAt); err != nil {
		return l, err
	}
	l.Facilities = facilities.String
	return l, nil
}

func listLabs(ctx context.Context, q querier) ([]model.Lab, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+labCols+" FROM labs ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Lab
	for rows.Next() {
		l, err := scanLab(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func getLab(ctx context.Context, q querier, id uint64) (model.Lab, error) {
	l, err := scanLab(q.QueryRowContext(ctx, "SELECT "+labCols+" FROM labs WHERE id=?", id))
	return l, mapErr(err)
}

func insertLab(ctx context.Context, q querier, l *model.Lab) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO labs (name, capacity, location, facilities) VALUES (?,?,?,?)",
		l.Name, l.Capacity, l.Location, nullString(l.Facilities))
	if err != nil {
		return mapErr(err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	created, err := getLab(ctx, q, id)
	if err != nil {
		return err
	}
	*l = created
	return nil
}

func scanLabSlot(row scanner) (model.LabTimeSlot, error) {
	var s model.LabTimeSlot
	err := row.Scan(&s.ID, &s.LabID, &s.DayOfWeek, &s.Start, &s.End)
	return s, err
}

func listLabTimeSlots(ctx context.Context, q querier, labID uint64) ([]model.LabTimeSlot, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+labSlotCols+" FROM lab_time_slots WHERE lab_id=? ORDER BY day_of_week, start_time, id", labID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LabTimeSlot
	for rows.Next() {
		s, err := scanLabSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func insertLabTimeSlot(ctx context.Context, q querier, s *model.LabTimeSlot) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO lab_time_slots (lab_id, day_of_week, start_time, end_time) VALUES (?,?,?,?)",
		s.LabID, string(s.DayOfWeek), s.Start, s.End)
	if err != nil {
		return mapErr(err)
	}
	s.ID, err = lastID(res)
	return err
}

func lockLabTimeSlot(ctx context.Context, q querier, id uint64) (model.LabTimeSlot, error) {
	s, err := scanLabSlot(q.QueryRowContext(ctx,
		"SELECT "+labSlotCols+" FROM lab_time_slots WHERE id=? FOR UPDATE", id))
	return s, mapErr(err)
}

func scanLabBooking(row scanner) (model.LabBooking, error) {
	var (
		b       model.LabBooking
		purpose sql.NullString
	)
	err := row.Scan(&b.ID, &b.LabID, &b.UserID, &b.TimeSlotID, &b.Date, &purpose,
		&b.Status, &b.CreatedAt, &b.UpdatedAt)
	b.Purpose = purpose.String
	return b, err
}

func getLabBooking(ctx context.Context, q querier, id uint64, lock bool) (model.LabBooking, error) {
	query := "SELECT " + labBookingCols + " FROM lab_bookings WHERE id=?"
	if lock {
		query += " FOR UPDATE"
	}
	b, err := scanLabBooking(q.QueryRowContext(ctx, query, id))
	return b, mapErr(err)
}

func activeLabBooking(ctx context.Context, q querier, slotID uint64, date model.Date) (model.LabBooking, bool, error) {
	b, err := scanLabBooking(q.QueryRowContext(ctx,
		"SELECT "+labBookingCols+` FROM lab_bookings
		  WHERE time_slot_id=? AND `+"`date`"+`=? AND status IN ('PENDING','APPROVED')
		  LIMIT 1`,
		slotID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return model.LabBooking{}, false, nil
	}
	if err != nil {
		return model.LabBooking{}, false, err
	}
	return b, true, nil
}

// insertLabBooking surfaces a race on the active-slot unique index as
// booking.ErrDuplicate.
func insertLabBooking(ctx context.Context, q querier, b *model.LabBooking) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO lab_bookings (lab_id, user_id, time_slot_id, `date`, purpose, status) VALUES (?,?,?,?,?,?)",
		b.LabID, b.UserID, b.TimeSlotID, b.Date, nullString(b.Purpose), string(b.Status))
	if err != nil {
		return mapErr(err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	created, err := getLabBooking(ctx, q, id, false)
	if err != nil {
		return err
	}
	*b = created
	return nil
}

func updateLabBooking(ctx context.Context, q querier, b *model.LabBooking) error {
	_, err := q.ExecContext(ctx, "UPDATE lab_bookings SET status=? WHERE id=?", string(b.Status), b.ID)
	return mapErr(err)
}

func listLabBookings(ctx context.Context, q querier, f model.LabBookingFilter) ([]model.LabBooking, error) {
	stmt := sq.Select(labBookingCols).From("lab_bookings")
	if f.UserID != 0 {
		stmt = stmt.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.LabID != 0 {
		stmt = stmt.Where(sq.Eq{"lab_id": f.LabID})
	}
	if f.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": string(f.Status)})
	}
	query, args, err := stmt.OrderBy("`date` ASC", "id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LabBooking
	for rows.Next() {
		b, err := scanLabBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
