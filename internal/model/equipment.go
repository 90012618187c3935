package model

import (
	"strings"
	"time"
)

// EquipmentCategory groups equipment for browsing.
//
// Fields:
//
//	ID          - primary key identifier.
//	Name        - unique display name.
//	Icon        - optional icon key used by the UI.
//	Description - free text.
type EquipmentCategory struct {
	ID          uint64 `json:"id"`          // equipment_categories.id
	Name        string `json:"name"`        // equipment_categories.name
	Icon        string `json:"icon"`        // equipment_categories.icon
	Description string `json:"description"` // equipment_categories.description
}

// Equipment describes a pool of identical bookable units.  Available
// counts units not held by a PENDING or APPROVED booking and always
// satisfies 0 <= Available <= Quantity.
//
// Fields:
//
//	ID               - primary key identifier.
//	Name             - display name.
//	CategoryID       - references equipment_categories.id.
//	Quantity         - total units owned.
//	Available        - units currently free.
//	RequiresApproval - whether new bookings start PENDING.
//	Location         - where the units are kept.
type Equipment struct {
	ID               uint64    `json:"id"`                // equipment.id
	Name             string    `json:"name"`              // equipment.name
	CategoryID       uint64    `json:"category_id"`       // equipment.category_id
	Quantity         int       `json:"quantity"`          // equipment.quantity
	Available        int       `json:"available"`         // equipment.available
	RequiresApproval bool      `json:"requires_approval"` // equipment.requires_approval
	Location         string    `json:"location"`          // equipment.location
	CreatedAt        time.Time `json:"created_at"`        // equipment.created_at
	UpdatedAt        time.Time `json:"updated_at"`        // equipment.updated_at
}

// Booked is the number of units currently held by bookings.
func (e Equipment) Booked() int { return e.Quantity - e.Available }

// EquipmentBookingStatus is the lifecycle state of an equipment booking.
type EquipmentBookingStatus string

const (
	EquipmentPending   EquipmentBookingStatus = "PENDING"
	EquipmentApproved  EquipmentBookingStatus = "APPROVED"
	EquipmentRejected  EquipmentBookingStatus = "REJECTED"
	EquipmentCancelled EquipmentBookingStatus = "CANCELLED"
	EquipmentCompleted EquipmentBookingStatus = "COMPLETED"
)

// ParseEquipmentBookingStatus normalises s to a known status.
func ParseEquipmentBookingStatus(s string) (EquipmentBookingStatus, bool) {
	v := EquipmentBookingStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case EquipmentPending, EquipmentApproved, EquipmentRejected, EquipmentCancelled, EquipmentCompleted:
		return v, true
	}
	return "", false
}

// Active reports whether the booking still holds a unit.
func (s EquipmentBookingStatus) Active() bool {
	return s == EquipmentPending || s == EquipmentApproved
}

// EquipmentBooking reserves one unit of equipment for a window.
//
// Fields:
//
//	ID              - primary key identifier.
//	EquipmentID     - booked equipment.
//	UserID          - requester (integer foreign key to users).
//	Window          - [start_time, end_time), start strictly before end.
//	Purpose         - free text supplied by the requester.
//	Status          - lifecycle state.
//	RejectionReason - reason given on reject (nullable).
//	ApprovedBy      - approver that last decided the booking (nullable).
type EquipmentBooking struct {
	ID              uint64                 `json:"id"`                         // equipment_bookings.id
	EquipmentID     uint64                 `json:"equipment_id"`               // equipment_bookings.equipment_id
	UserID          uint64                 `json:"user_id"`                    // equipment_bookings.user_id
	Window                                 // equipment_bookings.start_time / end_time
	Purpose         string                 `json:"purpose"`                    // equipment_bookings.purpose
	Status          EquipmentBookingStatus `json:"status"`                     // equipment_bookings.status
	RejectionReason *string                `json:"rejection_reason,omitempty"` // equipment_bookings.rejection_reason
	ApprovedBy      *uint64                `json:"approved_by,omitempty"`      // equipment_bookings.approved_by
	CreatedAt       time.Time              `json:"created_at"`                 // equipment_bookings.created_at
	UpdatedAt       time.Time              `json:"updated_at"`                 // equipment_bookings.updated_at
}

// EquipmentBookingFilter narrows booking listings.  Zero values mean
// "no constraint".
type EquipmentBookingFilter struct {
	UserID      uint64
	EquipmentID uint64
	Status      EquipmentBookingStatus
}
