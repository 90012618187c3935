package model

import (
	"strings"
	"time"
)

// Lab is a bookable room.
type Lab struct {
	ID         uint64    `json:"id"`         // labs.id
	Name       string    `json:"name"`       // labs.name
	Capacity   int       `json:"capacity"`   // labs.capacity
	Location   string    `json:"location"`   // labs.location
	Facilities string    `json:"facilities"` // labs.facilities
	CreatedAt  time.Time `json:"created_at"` // labs.created_at
}

// LabTimeSlot is a weekly recurring window of a lab.  Bookings are
// made against a (slot, calendar date) pair.
type LabTimeSlot struct {
	ID        uint64    `json:"id"`          // lab_time_slots.id
	LabID     uint64    `json:"lab_id"`      // lab_time_slots.lab_id
	DayOfWeek DayOfWeek `json:"day_of_week"` // lab_time_slots.day_of_week
	TimeRange           // lab_time_slots.start_time / end_time
}

// LabBookingStatus is the lifecycle state of a lab booking.
type LabBookingStatus string

const (
	LabPending   LabBookingStatus = "PENDING"
	LabApproved  LabBookingStatus = "APPROVED"
	LabRejected  LabBookingStatus = "REJECTED"
	LabCancelled LabBookingStatus = "CANCELLED"
)

// ParseLabBookingStatus normalises s to a known status.
func ParseLabBookingStatus(s string) (LabBookingStatus, bool) {
	v := LabBookingStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case LabPending, LabApproved, LabRejected, LabCancelled:
		return v, true
	}
	return "", false
}

// Active reports whether the booking occupies its slot.
func (s LabBookingStatus) Active() bool { return s == LabPending || s == LabApproved }

// LabBooking occupies one slot of a lab on one date.  At most one
// active booking exists per (TimeSlotID, Date).
type LabBooking struct {
	ID         uint64           `json:"id"`           // lab_bookings.id
	LabID      uint64           `json:"lab_id"`       // lab_bookings.lab_id
	UserID     uint64           `json:"user_id"`      // lab_bookings.user_id
	TimeSlotID uint64           `json:"time_slot_id"` // lab_bookings.time_slot_id
	Date       Date             `json:"date"`         // lab_bookings.date
	Purpose    string           `json:"purpose"`      // lab_bookings.purpose
	Status     LabBookingStatus `json:"status"`       // lab_bookings.status
	CreatedAt  time.Time        `json:"created_at"`   // lab_bookings.created_at
	UpdatedAt  time.Time        `json:"updated_at"`   // lab_bookings.updated_at
}

// LabBookingFilter narrows lab booking listings.
type LabBookingFilter struct {
	UserID uint64
	LabID  uint64
	Status LabBookingStatus
}
