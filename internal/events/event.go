// Package events defines booking lifecycle messages exchanged over the
// message broker, the publisher that emits them and the audit consumer.
package events

import "time"

// QueueName is the durable queue carrying lifecycle events.
const QueueName = "booking.lifecycle"

// Kind identifies which engine produced an event.
type Kind string

const (
	KindEquipmentBooking Kind = "EQUIPMENT_BOOKING"
	KindLabBooking       Kind = "LAB_BOOKING"
	KindMeeting          Kind = "MEETING"
)

// Event is published after a booking or meeting transition commits.  It
// carries enough for downstream consumers to audit or notify without
// querying the primary database.
type Event struct {
	Kind       Kind      `json:"kind"`
	Action     string    `json:"action"`
	BookingID  uint64    `json:"booking_id"`
	ResourceID uint64    `json:"resource_id"`
	OwnerID    uint64    `json:"owner_id"`
	ActorID    uint64    `json:"actor_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
