package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrForbidden is returned when the principal lacks the grant for an
	// operation or is not a party to the record.
	ErrForbidden = errors.New("booking: forbidden")
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("booking: not found")
	// ErrCapacityExhausted is returned when no unit of the equipment is free.
	ErrCapacityExhausted = errors.New("booking: capacity exhausted")
	// ErrInvalidTransition is returned when the record's current state does
	// not allow the requested transition.
	ErrInvalidTransition = errors.New("booking: invalid state transition")
	// ErrDuplicate is returned by stores when a unique constraint rejects
	// an insert.
	ErrDuplicate = errors.New("booking: duplicate")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; !exists {
		v.FieldErrors[field] = message
	}
}

func invalid(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// ConflictError reports that the requested window collides with an
// existing booking or meeting.  Start and End carry the occupied window
// in wire form (RFC 3339 instants for equipment, HH:MM for slots and
// meetings).
type ConflictError struct {
	Resource   string `json:"resource"`
	ResourceID uint64 `json:"resource_id"`
	ExistingID uint64 `json:"existing_id"`
	Date       string `json:"date,omitempty"`
	Start      string `json:"start_time"`
	End        string `json:"end_time"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking: %s %d is already booked %s-%s", e.Resource, e.ResourceID, e.Start, e.End)
}

// ErrorKind maps engine errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCapacityExhausted):
		return "capacity_exhausted"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrDuplicate):
		return "conflict"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var cErr *ConflictError
	if errors.As(err, &cErr) {
		return "conflict"
	}
	return "unexpected"
}
