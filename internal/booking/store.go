package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/department-admin/internal/events"
	"github.com/iliyamo/department-admin/internal/model"
)

// Party selects which side of a meeting a user id is matched against.
type Party int

const (
	PartyFaculty Party = iota
	PartyStudent
)

// Store is the relational store the engines transact against.  InTx runs
// fn in one transaction at repeatable-read or stronger; a non-nil error
// from fn rolls it back.  Lock* methods take row locks that are held
// until the transaction ends.  Missing rows are reported as ErrNotFound.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader serves queries that bypass the engines.
type Reader interface {
	UserRole(ctx context.Context, userID uint64) (model.RoleID, error)

	ListEquipmentCategories(ctx context.Context) ([]model.EquipmentCategory, error)
	ListEquipment(ctx context.Context) ([]model.Equipment, error)
	GetEquipment(ctx context.Context, id uint64) (model.Equipment, error)
	GetEquipmentBooking(ctx context.Context, id uint64) (model.EquipmentBooking, error)
	ListEquipmentBookings(ctx context.Context, f model.EquipmentBookingFilter) ([]model.EquipmentBooking, error)
	DueEquipmentBookings(ctx context.Context, endedBy time.Time) ([]uint64, error)

	ListLabs(ctx context.Context) ([]model.Lab, error)
	GetLab(ctx context.Context, id uint64) (model.Lab, error)
	ListLabTimeSlots(ctx context.Context, labID uint64) ([]model.LabTimeSlot, error)
	ListLabBookings(ctx context.Context, f model.LabBookingFilter) ([]model.LabBooking, error)

	GetMeeting(ctx context.Context, id uint64) (model.Meeting, error)
	ListMeetings(ctx context.Context, f model.MeetingFilter) ([]model.Meeting, error)
	// OpenMeetings returns the party's meetings on date whose status is
	// not CANCELLED, ordered by start time.
	OpenMeetings(ctx context.Context, party Party, userID uint64, date model.Date) ([]model.Meeting, error)
}

// Tx is the transactional view of the store.
type Tx interface {
	LockUserRoles(ctx context.Context, ids ...uint64) (map[uint64]model.RoleID, error)

	InsertEquipmentCategory(ctx context.Context, c *model.EquipmentCategory) error
	InsertEquipment(ctx context.Context, e *model.Equipment) error
	LockEquipment(ctx context.Context, id uint64) (model.Equipment, error)
	UpdateEquipment(ctx context.Context, e *model.Equipment) error
	OverlappingEquipmentBookings(ctx context.Context, equipmentID uint64, w model.Window) ([]model.EquipmentBooking, error)
	InsertEquipmentBooking(ctx context.Context, b *model.EquipmentBooking) error
	LockEquipmentBooking(ctx context.Context, id uint64) (model.EquipmentBooking, error)
	UpdateEquipmentBooking(ctx context.Context, b *model.EquipmentBooking) error

	InsertLab(ctx context.Context, l *model.Lab) error
	InsertLabTimeSlot(ctx context.Context, s *model.LabTimeSlot) error
	LockLabTimeSlot(ctx context.Context, id uint64) (model.LabTimeSlot, error)
	ActiveLabBooking(ctx context.Context, slotID uint64, date model.Date) (model.LabBooking, bool, error)
	InsertLabBooking(ctx context.Context, b *model.LabBooking) error
	LockLabBooking(ctx context.Context, id uint64) (model.LabBooking, error)
	UpdateLabBooking(ctx context.Context, b *model.LabBooking) error

	OpenMeetings(ctx context.Context, party Party, userID uint64, date model.Date) ([]model.Meeting, error)
	InsertMeeting(ctx context.Context, m *model.Meeting) error
	LockMeeting(ctx context.Context, id uint64) (model.Meeting, error)
	UpdateMeeting(ctx context.Context, m *model.Meeting) error
}

//go:generate go run go.uber.org/mock/mockgen@latest -destination=../mocks/booking.go -package=mocks -typed github.com/iliyamo/department-admin/internal/booking Authorizer,Publisher

// Authorizer is the permission predicate consulted by every mutation.
type Authorizer interface {
	Authorize(ctx context.Context, p model.Principal, permission string) bool
}

// Publisher receives lifecycle events after commit.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Deps bundles what every engine needs.  Publisher, Now and Logger are
// optional.
type Deps struct {
	Store      Store
	Authorizer Authorizer
	Publisher  Publisher
	Now        func() time.Time
	Logger     *slog.Logger
}

type engine struct {
	store     Store
	authz     Authorizer
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func newEngine(d Deps) engine {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return engine{
		store:     d.Store,
		authz:     d.Authorizer,
		publisher: d.Publisher,
		now:       func() time.Time { return now().UTC() },
		logger:    defaultLogger(d.Logger),
	}
}

func (e engine) can(ctx context.Context, p model.Principal, permission string) bool {
	return e.authz != nil && e.authz.Authorize(ctx, p, permission)
}

func (e engine) require(ctx context.Context, p model.Principal, permission string) error {
	if !e.can(ctx, p, permission) {
		return ErrForbidden
	}
	return nil
}

func (e engine) today() model.Date { return model.DateOf(e.now()) }

// publish emits ev after commit.  Failures are logged; the committed
// transition stands.
func (e engine) publish(ctx context.Context, ev events.Event) {
	if e.publisher == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "lifecycle event not published",
			"kind", ev.Kind, "booking_id", ev.BookingID, "error", err)
	}
}
