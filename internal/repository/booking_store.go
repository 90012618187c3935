package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/database"
	"github.com/iliyamo/department-admin/internal/model"
)

// BookingStore is the MySQL implementation of booking.Store.  Reads run
// on the pool; InTx hands the engines a view bound to one transaction.
//
// Every admission takes a row lock on the parent row (equipment, slot or
// user) with its first statement.  The overlap queries that follow are
// plain consistent reads, so their snapshot is taken after the lock is
// granted and already includes everything committed by the previous
// holder.
type BookingStore struct {
	db *sql.DB
}

// NewBookingStore returns a store bound to db.
func NewBookingStore(db *sql.DB) *BookingStore { return &BookingStore{db: db} }

// InTx runs fn in one REPEATABLE READ transaction.
func (s *BookingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(ctx, &bookingTx{q: tx})
	})
}

// bookingTx implements booking.Tx on a *sql.Tx.
type bookingTx struct {
	q querier
}

var (
	_ booking.Store = (*BookingStore)(nil)
	_ booking.Tx    = (*bookingTx)(nil)
)

// UserRole returns the role of an active user.
func (s *BookingStore) UserRole(ctx context.Context, userID uint64) (model.RoleID, error) {
	var role model.RoleID
	err := s.db.QueryRowContext(ctx,
		"SELECT role_id FROM users WHERE id=? AND is_active=TRUE LIMIT 1", userID).Scan(&role)
	return role, mapErr(err)
}

// LockUserRoles locks the user rows in ascending id order and returns
// the roles of those that exist.
func (t *bookingTx) LockUserRoles(ctx context.Context, ids ...uint64) (map[uint64]model.RoleID, error) {
	out := make(map[uint64]model.RoleID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sq.Select("id", "role_id").
		From("users").
		Where(sq.Eq{"id": ids, "is_active": true}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   uint64
			role model.RoleID
		)
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		out[id] = role
	}
	return out, rows.Err()
}

// Equipment reads

func (s *BookingStore) ListEquipmentCategories(ctx context.Context) ([]model.EquipmentCategory, error) {
	return listEquipmentCategories(ctx, s.db)
}

func (s *BookingStore) ListEquipment(ctx context.Context) ([]model.Equipment, error) {
	return listEquipment(ctx, s.db)
}

func (s *BookingStore) GetEquipment(ctx context.Context, id uint64) (model.Equipment, error) {
	return getEquipment(ctx, s.db, id, false)
}

func (s *BookingStore) GetEquipmentBooking(ctx context.Context, id uint64) (model.EquipmentBooking, error) {
	return getEquipmentBooking(ctx, s.db, id, false)
}

func (s *BookingStore) ListEquipmentBookings(ctx context.Context, f model.EquipmentBookingFilter) ([]model.EquipmentBooking, error) {
	return listEquipmentBookings(ctx, s.db, f)
}

func (s *BookingStore) DueEquipmentBookings(ctx context.Context, endedBy time.Time) ([]uint64, error) {
	return dueEquipmentBookings(ctx, s.db, endedBy)
}

// Equipment writes

func (t *bookingTx) InsertEquipmentCategory(ctx context.Context, c *model.EquipmentCategory) error {
	return insertEquipmentCategory(ctx, t.q, c)
}

func (t *bookingTx) InsertEquipment(ctx context.Context, e *model.Equipment) error {
	return insertEquipment(ctx, t.q, e)
}

func (t *bookingTx) LockEquipment(ctx context.Context, id uint64) (model.Equipment, error) {
	return getEquipment(ctx, t.q, id, true)
}

func (t *bookingTx) UpdateEquipment(ctx context.Context, e *model.Equipment) error {
	return updateEquipment(ctx, t.q, e)
}

func (t *bookingTx) OverlappingEquipmentBookings(ctx context.Context, equipmentID uint64, w model.Window) ([]model.EquipmentBooking, error) {
	return overlappingEquipmentBookings(ctx, t.q, equipmentID, w)
}

func (t *bookingTx) InsertEquipmentBooking(ctx context.Context, b *model.EquipmentBooking) error {
	return insertEquipmentBooking(ctx, t.q, b)
}

func (t *bookingTx) LockEquipmentBooking(ctx context.Context, id uint64) (model.EquipmentBooking, error) {
	return getEquipmentBooking(ctx, t.q, id, true)
}

func (t *bookingTx) UpdateEquipmentBooking(ctx context.Context, b *model.EquipmentBooking) error {
	return updateEquipmentBooking(ctx, t.q, b)
}

// Lab reads

func (s *BookingStore) ListLabs(ctx context.Context) ([]model.Lab, error) {
	return listLabs(ctx, s.db)
}

func (s *BookingStore) GetLab(ctx context.Context, id uint64) (model.Lab, error) {
	return getLab(ctx, s.db, id)
}

func (s *BookingStore) ListLabTimeSlots(ctx context.Context, labID uint64) ([]model.LabTimeSlot, error) {
	return listLabTimeSlots(ctx, s.db, labID)
}

func (s *BookingStore) ListLabBookings(ctx context.Context, f model.LabBookingFilter) ([]model.LabBooking, error) {
	return listLabBookings(ctx, s.db, f)
}

// Lab writes

func (t *bookingTx) InsertLab(ctx context.Context, l *model.Lab) error {
	return insertLab(ctx, t.q, l)
}

func (t *bookingTx) InsertLabTimeSlot(ctx context.Context, slot *model.LabTimeSlot) error {
	return insertLabTimeSlot(ctx, t.q, slot)
}

func (t *bookingTx) LockLabTimeSlot(ctx context.Context, id uint64) (model.LabTimeSlot, error) {
	return lockLabTimeSlot(ctx, t.q, id)
}

func (t *bookingTx) ActiveLabBooking(ctx context.Context, slotID uint64, date model.Date) (model.LabBooking, bool, error) {
	return activeLabBooking(ctx, t.q, slotID, date)
}

func (t *bookingTx) InsertLabBooking(ctx context.Context, b *model.LabBooking) error {
	return insertLabBooking(ctx, t.q, b)
}

func (t *bookingTx) LockLabBooking(ctx context.Context, id uint64) (model.LabBooking, error) {
	return getLabBooking(ctx, t.q, id, true)
}

func (t *bookingTx) UpdateLabBooking(ctx context.Context, b *model.LabBooking) error {
	return updateLabBooking(ctx, t.q, b)
}

// Meetings

func (s *BookingStore) GetMeeting(ctx context.Context, id uint64) (model.Meeting, error) {
	return getMeeting(ctx, s.db, id, false)
}

func (s *BookingStore) ListMeetings(ctx context.Context, f model.MeetingFilter) ([]model.Meeting, error) {
	return listMeetings(ctx, s.db, f)
}

func (s *BookingStore) OpenMeetings(ctx context.Context, party booking.Party, userID uint64, date model.Date) ([]model.Meeting, error) {
	return openMeetings(ctx, s.db, party, userID, date)
}

func (t *bookingTx) OpenMeetings(ctx context.Context, party booking.Party, userID uint64, date model.Date) ([]model.Meeting, error) {
	return openMeetings(ctx, t.q, party, userID, date)
}

func (t *bookingTx) InsertMeeting(ctx context.Context, m *model.Meeting) error {
	return insertMeeting(ctx, t.q, m)
}

func (t *bookingTx) LockMeeting(ctx context.Context, id uint64) (model.Meeting, error) {
	return getMeeting(ctx, t.q, id, true)
}

func (t *bookingTx) UpdateMeeting(ctx context.Context, m *model.Meeting) error {
	return updateMeeting(ctx, t.q, m)
}
