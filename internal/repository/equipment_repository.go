package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/department-admin/internal/model"
)

const equipmentCols = "id, name, category_id, quantity, available, requires_approval, location, created_at, updated_at"

const equipmentBookingCols = "id, equipment_id, user_id, start_time, end_time, purpose, status, rejection_reason, approved_by, created_at, updated_at"

func listEquipmentCategories(ctx context.Context, q querier) ([]model.EquipmentCategory, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, icon, description FROM equipment_categories ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EquipmentCategory
	for rows.Next() {
		var (
			c    model.EquipmentCategory
			desc sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &desc); err != nil {
			return nil, err
		}
		c.Description = desc.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertEquipmentCategory(ctx context.Context, q querier, c *model.EquipmentCategory) error {
	res, err := q.ExecContext(ctx,
		"INSERT INTO equipment_categories (name, icon, description) VALUES (?,?,?)",
		c.Name, c.Icon, nullString(c.Description))
	if err != nil {
		return mapErr(err)
	}
	c.ID, err = lastID(res)
	return err
}

func scanEquipment(row scanner) (model.Equipment, error) {
	var e model.Equipment
	err := row.Scan(&e.ID, &e.Name, &e.CategoryID, &e.Quantity, &e.Available,
		&e.RequiresApproval, &e.Location, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func listEquipment(ctx context.Context, q querier) ([]model.Equipment, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+equipmentCols+" FROM equipment ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// getEquipment loads one row; lock appends FOR UPDATE.
func getEquipment(ctx context.Context, q querier, id uint64, lock bool) (model.Equipment, error) {
	query := "SELECT " + equipmentCols + " FROM equipment WHERE id=?"
	if lock {
		query += " FOR UPDATE"
	}
	e, err := scanEquipment(q.QueryRowContext(ctx, query, id))
	return e, mapErr(err)
}

func insertEquipment(ctx context.Context, q querier, e *model.Equipment) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO equipment (name, category_id, quantity, available, requires_approval, location)
		 VALUES (?,?,?,?,?,?)`,
		e.Name, e.CategoryID, e.Quantity, e.Available, e.RequiresApproval, e.Location)
	if err != nil {
		return mapErr(err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	// Read back defaults and timestamps.
	created, err := getEquipment(ctx, q, id, false)
	if err != nil {
		return err
	}
	*e = created
	return nil
}

func updateEquipment(ctx context.Context, q querier, e *model.Equipment) error {
	_, err := q.ExecContext(ctx,
		`UPDATE equipment
		    SET name=?, category_id=?, quantity=?, available=?, requires_approval=?, location=?
		  WHERE id=?`,
		e.Name, e.CategoryID, e.Quantity, e.Available, e.RequiresApproval, e.Location, e.ID)
	return mapErr(err)
}

func scanEquipmentBooking(row scanner) (model.EquipmentBooking, error) {
	var (
		b        model.EquipmentBooking
		purpose  sql.NullString
		reason   sql.NullString
		approver sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.EquipmentID, &b.UserID, &b.Start, &b.End, &purpose,
		&b.Status, &reason, &approver, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.Start, b.End = b.Start.UTC(), b.End.UTC()
	b.Purpose = purpose.String
	if reason.Valid {
		r := reason.String
		b.RejectionReason = &r
	}
	if approver.Valid {
		a := uint64(approver.Int64)
		b.ApprovedBy = &a
	}
	return b, nil
}

func getEquipmentBooking(ctx context.Context, q querier, id uint64, lock bool) (model.EquipmentBooking, error) {
	query := "SELECT " + equipmentBookingCols + " FROM equipment_bookings WHERE id=?"
	if lock {
		query += " FOR UPDATE"
	}
	b, err := scanEquipmentBooking(q.QueryRowContext(ctx, query, id))
	return b, mapErr(err)
}

func queryEquipmentBookings(ctx context.Context, q querier, query string, args ...any) ([]model.EquipmentBooking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EquipmentBooking
	for rows.Next() {
		b, err := scanEquipmentBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func listEquipmentBookings(ctx context.Context, q querier, f model.EquipmentBookingFilter) ([]model.EquipmentBooking, error) {
	stmt := sq.Select(equipmentBookingCols).From("equipment_bookings")
	if f.UserID != 0 {
		stmt = stmt.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.EquipmentID != 0 {
		stmt = stmt.Where(sq.Eq{"equipment_id": f.EquipmentID})
	}
	if f.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": string(f.Status)})
	}
	query, args, err := stmt.OrderBy("start_time ASC", "id ASC").ToSql()
	if err != nil {
		return nil, err
	}
	return queryEquipmentBookings(ctx, q, query, args...)
}

func overlappingEquipmentBookings(ctx context.Context, q querier, equipmentID uint64, w model.Window) ([]model.EquipmentBooking, error) {
	return queryEquipmentBookings(ctx, q,
		"SELECT "+equipmentBookingCols+` FROM equipment_bookings
		  WHERE equipment_id=? AND status IN ('PENDING','APPROVED') AND start_time < ? AND end_time > ?
		  ORDER BY start_time, id`,
		equipmentID, w.End, w.Start)
}

func dueEquipmentBookings(ctx context.Context, q querier, endedBy time.Time) ([]uint64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM equipment_bookings
		  WHERE status='APPROVED' AND end_time <= ?
		  ORDER BY end_time, id LIMIT 500`, endedBy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertEquipmentBooking(ctx context.Context, q querier, b *model.EquipmentBooking) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO equipment_bookings (equipment_id, user_id, start_time, end_time, purpose, status)
		 VALUES (?,?,?,?,?,?)`,
		b.EquipmentID, b.UserID, b.Start, b.End, nullString(b.Purpose), string(b.Status))
	if err != nil {
		return mapErr(err)
	}
	id, err := lastID(res)
	if err != nil {
		return err
	}
	created, err := getEquipmentBooking(ctx, q, id, false)
	if err != nil {
		return err
	}
	*b = created
	return nil
}

func updateEquipmentBooking(ctx context.Context, q querier, b *model.EquipmentBooking) error {
	_, err := q.ExecContext(ctx,
		"UPDATE equipment_bookings SET status=?, rejection_reason=?, approved_by=? WHERE id=?",
		string(b.Status), b.RejectionReason, b.ApprovedBy, b.ID)
	return mapErr(err)
}
