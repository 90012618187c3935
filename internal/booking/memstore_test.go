package booking_test

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/model"
)

// memStore is an in-memory booking.Store.  Transactions are serialised
// by one mutex and roll back by restoring a snapshot, which is enough to
// model the row-lock discipline of the real store.
type memStore struct {
	mu sync.Mutex
	st *memState

	// onLabInsert, when set, runs once before the next lab booking insert
	// against both the working state and the rollback snapshot.  Tests
	// use it to emulate a concurrent insert that slips past the check.
	onLabInsert func(st *memState)
}

type memState struct {
	nextID      uint64
	users       map[uint64]model.RoleID
	categories  []model.EquipmentCategory
	equipment   map[uint64]model.Equipment
	eqBookings  map[uint64]model.EquipmentBooking
	labs        map[uint64]model.Lab
	slots       map[uint64]model.LabTimeSlot
	labBookings map[uint64]model.LabBooking
	meetings    map[uint64]model.Meeting
}

func newMemStore() *memStore {
	return &memStore{st: &memState{
		nextID:      100,
		users:       map[uint64]model.RoleID{},
		equipment:   map[uint64]model.Equipment{},
		eqBookings:  map[uint64]model.EquipmentBooking{},
		labs:        map[uint64]model.Lab{},
		slots:       map[uint64]model.LabTimeSlot{},
		labBookings: map[uint64]model.LabBooking{},
		meetings:    map[uint64]model.Meeting{},
	}}
}

func (s *memState) clone() *memState {
	return &memState{
		nextID:      s.nextID,
		users:       maps.Clone(s.users),
		categories:  slices.Clone(s.categories),
		equipment:   maps.Clone(s.equipment),
		eqBookings:  maps.Clone(s.eqBookings),
		labs:        maps.Clone(s.labs),
		slots:       maps.Clone(s.slots),
		labBookings: maps.Clone(s.labBookings),
		meetings:    maps.Clone(s.meetings),
	}
}

func (s *memState) id() uint64 {
	s.nextID++
	return s.nextID
}

func (m *memStore) addUser(id uint64, role model.RoleID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.users[id] = role
}

func (m *memStore) addEquipment(e model.Equipment) model.Equipment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.st.id()
	}
	m.st.equipment[e.ID] = e
	return e
}

func (m *memStore) addSlot(labID uint64, day model.DayOfWeek, start, end string) model.LabTimeSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.labs[labID]; !ok {
		m.st.labs[labID] = model.Lab{ID: labID, Name: "Lab", Capacity: 20}
	}
	s := model.LabTimeSlot{
		ID:        m.st.id(),
		LabID:     labID,
		DayOfWeek: day,
		TimeRange: model.TimeRange{Start: model.MustTimeOfDay(start), End: model.MustTimeOfDay(end)},
	}
	m.st.slots[s.ID] = s
	return s
}

func (m *memStore) addMeeting(mt model.Meeting) model.Meeting {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt.ID = m.st.id()
	m.st.meetings[mt.ID] = mt
	return mt
}

func (m *memStore) equipmentRow(id uint64) model.Equipment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.equipment[id]
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	tx := &memTx{store: m, st: m.st, snap: snap}
	if err := fn(ctx, tx); err != nil {
		m.st = tx.snap
		return err
	}
	return nil
}

// Reader

func (m *memStore) UserRole(_ context.Context, userID uint64) (model.RoleID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.st.users[userID]
	if !ok {
		return 0, booking.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListEquipmentCategories(context.Context) ([]model.EquipmentCategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.st.categories), nil
}

func (m *memStore) ListEquipment(context.Context) ([]model.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.st.equipment, func(e model.Equipment) uint64 { return e.ID }), nil
}

func (m *memStore) GetEquipment(_ context.Context, id uint64) (model.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.st.equipment[id]
	if !ok {
		return model.Equipment{}, booking.ErrNotFound
	}
	return e, nil
}

func (m *memStore) GetEquipmentBooking(_ context.Context, id uint64) (model.EquipmentBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.st.eqBookings[id]
	if !ok {
		return model.EquipmentBooking{}, booking.ErrNotFound
	}
	return b, nil
}

func (m *memStore) ListEquipmentBookings(_ context.Context, f model.EquipmentBookingFilter) ([]model.EquipmentBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EquipmentBooking
	for _, b := range m.st.eqBookings {
		if (f.UserID != 0 && b.UserID != f.UserID) ||
			(f.EquipmentID != 0 && b.EquipmentID != f.EquipmentID) ||
			(f.Status != "" && b.Status != f.Status) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *memStore) DueEquipmentBookings(_ context.Context, endedBy time.Time) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint64
	for _, b := range m.st.eqBookings {
		if b.Status == model.EquipmentApproved && !b.End.After(endedBy) {
			ids = append(ids, b.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memStore) ListLabs(context.Context) ([]model.Lab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.st.labs, func(l model.Lab) uint64 { return l.ID }), nil
}

func (m *memStore) GetLab(_ context.Context, id uint64) (model.Lab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.st.labs[id]
	if !ok {
		return model.Lab{}, booking.ErrNotFound
	}
	return l, nil
}

func (m *memStore) ListLabTimeSlots(_ context.Context, labID uint64) ([]model.LabTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LabTimeSlot
	for _, s := range sortedByID(m.st.slots, func(s model.LabTimeSlot) uint64 { return s.ID }) {
		if s.LabID == labID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListLabBookings(_ context.Context, f model.LabBookingFilter) ([]model.LabBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LabBooking
	for _, b := range sortedByID(m.st.labBookings, func(b model.LabBooking) uint64 { return b.ID }) {
		if (f.UserID != 0 && b.UserID != f.UserID) ||
			(f.LabID != 0 && b.LabID != f.LabID) ||
			(f.Status != "" && b.Status != f.Status) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memStore) GetMeeting(_ context.Context, id uint64) (model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.st.meetings[id]
	if !ok {
		return model.Meeting{}, booking.ErrNotFound
	}
	return mt, nil
}

func (m *memStore) ListMeetings(_ context.Context, f model.MeetingFilter) ([]model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Meeting
	for _, mt := range m.st.meetings {
		switch {
		case f.PartyID != 0 && !mt.HasParty(f.PartyID),
			f.StartDate != nil && mt.Date.Before(*f.StartDate),
			f.EndDate != nil && mt.Date.After(*f.EndDate),
			f.Status != "" && mt.Status != f.Status,
			f.Type != "" && mt.Type != f.Type,
			f.Upcoming && (mt.Date.Before(f.Today) || !mt.Status.Open()):
			continue
		}
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (m *memStore) OpenMeetings(_ context.Context, party booking.Party, userID uint64, date model.Date) ([]model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return openMeetings(m.st, party, userID, date), nil
}

func openMeetings(st *memState, party booking.Party, userID uint64, date model.Date) []model.Meeting {
	var out []model.Meeting
	for _, mt := range st.meetings {
		id := mt.FacultyID
		if party == booking.PartyStudent {
			id = mt.StudentID
		}
		if id == userID && mt.Date.Equal(date) && mt.Status != model.MeetingCancelled {
			out = append(out, mt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func sortedByID[T any](m map[uint64]T, id func(T) uint64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

// memTx operates on the store's working state while the store mutex is
// held by InTx.
type memTx struct {
	store *memStore
	st    *memState
	snap  *memState
}

func (t *memTx) LockUserRoles(_ context.Context, ids ...uint64) (map[uint64]model.RoleID, error) {
	out := make(map[uint64]model.RoleID, len(ids))
	for _, id := range ids {
		if r, ok := t.st.users[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (t *memTx) InsertEquipmentCategory(_ context.Context, c *model.EquipmentCategory) error {
	for _, existing := range t.st.categories {
		if existing.Name == c.Name {
			return booking.ErrDuplicate
		}
	}
	c.ID = t.st.id()
	t.st.categories = append(t.st.categories, *c)
	return nil
}

func (t *memTx) InsertEquipment(_ context.Context, e *model.Equipment) error {
	found := false
	for _, c := range t.st.categories {
		found = found || c.ID == e.CategoryID
	}
	if !found {
		return booking.ErrNotFound
	}
	e.ID = t.st.id()
	t.st.equipment[e.ID] = *e
	return nil
}

func (t *memTx) LockEquipment(_ context.Context, id uint64) (model.Equipment, error) {
	e, ok := t.st.equipment[id]
	if !ok {
		return model.Equipment{}, booking.ErrNotFound
	}
	return e, nil
}

func (t *memTx) UpdateEquipment(_ context.Context, e *model.Equipment) error {
	if e.Available < 0 || e.Available > e.Quantity {
		panic("available out of range")
	}
	t.st.equipment[e.ID] = *e
	return nil
}

func (t *memTx) OverlappingEquipmentBookings(_ context.Context, equipmentID uint64, w model.Window) ([]model.EquipmentBooking, error) {
	var out []model.EquipmentBooking
	for _, b := range t.st.eqBookings {
		if b.EquipmentID == equipmentID && b.Status.Active() && b.Window.Overlaps(w) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *memTx) InsertEquipmentBooking(_ context.Context, b *model.EquipmentBooking) error {
	b.ID = t.st.id()
	t.st.eqBookings[b.ID] = *b
	return nil
}

func (t *memTx) LockEquipmentBooking(_ context.Context, id uint64) (model.EquipmentBooking, error) {
	b, ok := t.st.eqBookings[id]
	if !ok {
		return model.EquipmentBooking{}, booking.ErrNotFound
	}
	return b, nil
}

func (t *memTx) UpdateEquipmentBooking(_ context.Context, b *model.EquipmentBooking) error {
	t.st.eqBookings[b.ID] = *b
	return nil
}

func (t *memTx) InsertLab(_ context.Context, l *model.Lab) error {
	for _, existing := range t.st.labs {
		if existing.Name == l.Name {
			return booking.ErrDuplicate
		}
	}
	l.ID = t.st.id()
	t.st.labs[l.ID] = *l
	return nil
}

func (t *memTx) InsertLabTimeSlot(_ context.Context, s *model.LabTimeSlot) error {
	s.ID = t.st.id()
	t.st.slots[s.ID] = *s
	return nil
}

func (t *memTx) LockLabTimeSlot(_ context.Context, id uint64) (model.LabTimeSlot, error) {
	s, ok := t.st.slots[id]
	if !ok {
		return model.LabTimeSlot{}, booking.ErrNotFound
	}
	return s, nil
}

func (t *memTx) ActiveLabBooking(_ context.Context, slotID uint64, date model.Date) (model.LabBooking, bool, error) {
	for _, b := range t.st.labBookings {
		if b.TimeSlotID == slotID && b.Date.Equal(date) && b.Status.Active() {
			return b, true, nil
		}
	}
	return model.LabBooking{}, false, nil
}

func (t *memTx) InsertLabBooking(ctx context.Context, b *model.LabBooking) error {
	if hook := t.store.onLabInsert; hook != nil {
		t.store.onLabInsert = nil
		hook(t.st)
		hook(t.snap)
	}
	if _, taken, _ := t.ActiveLabBooking(ctx, b.TimeSlotID, b.Date); taken {
		return booking.ErrDuplicate
	}
	b.ID = t.st.id()
	t.st.labBookings[b.ID] = *b
	return nil
}

func (t *memTx) LockLabBooking(_ context.Context, id uint64) (model.LabBooking, error) {
	b, ok := t.st.labBookings[id]
	if !ok {
		return model.LabBooking{}, booking.ErrNotFound
	}
	return b, nil
}

func (t *memTx) UpdateLabBooking(_ context.Context, b *model.LabBooking) error {
	t.st.labBookings[b.ID] = *b
	return nil
}

func (t *memTx) OpenMeetings(_ context.Context, party booking.Party, userID uint64, date model.Date) ([]model.Meeting, error) {
	return openMeetings(t.st, party, userID, date), nil
}

func (t *memTx) InsertMeeting(_ context.Context, mt *model.Meeting) error {
	mt.ID = t.st.id()
	t.st.meetings[mt.ID] = *mt
	return nil
}

func (t *memTx) LockMeeting(_ context.Context, id uint64) (model.Meeting, error) {
	mt, ok := t.st.meetings[id]
	if !ok {
		return model.Meeting{}, booking.ErrNotFound
	}
	return mt, nil
}

func (t *memTx) UpdateMeeting(_ context.Context, mt *model.Meeting) error {
	t.st.meetings[mt.ID] = *mt
	return nil
}

// grantsAuthz authorizes from the default grant matrix.
type grantsAuthz struct{}

func (grantsAuthz) Authorize(_ context.Context, p model.Principal, permission string) bool {
	if p.IsZero() {
		return false
	}
	return slices.Contains(model.DefaultGrants[permission], p.RoleID)
}

var (
	_ booking.Store = (*memStore)(nil)
	_ booking.Tx    = (*memTx)(nil)
)
