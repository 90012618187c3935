package model

import (
	"strings"
	"time"
)

// MeetingType classifies a faculty-student meeting.
type MeetingType string

const (
	MeetingAdvising MeetingType = "ADVISING"
	MeetingThesis   MeetingType = "THESIS"
	MeetingProject  MeetingType = "PROJECT"
	MeetingGeneral  MeetingType = "GENERAL"
	MeetingOther    MeetingType = "OTHER"
)

// MeetingTypes lists every meeting type in display order.
func MeetingTypes() []MeetingType {
	return []MeetingType{MeetingAdvising, MeetingThesis, MeetingProject, MeetingGeneral, MeetingOther}
}

// ParseMeetingType normalises s to a known type.
func ParseMeetingType(s string) (MeetingType, bool) {
	v := MeetingType(strings.ToUpper(strings.TrimSpace(s)))
	for _, t := range MeetingTypes() {
		if t == v {
			return v, true
		}
	}
	return "", false
}

// MeetingStatus is the scheduling state of a meeting.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "SCHEDULED"
	MeetingConfirmed MeetingStatus = "CONFIRMED"
	MeetingCancelled MeetingStatus = "CANCELLED"
	MeetingCompleted MeetingStatus = "COMPLETED"
)

// ParseMeetingStatus normalises s to a known status.
func ParseMeetingStatus(s string) (MeetingStatus, bool) {
	v := MeetingStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case MeetingScheduled, MeetingConfirmed, MeetingCancelled, MeetingCompleted:
		return v, true
	}
	return "", false
}

// Open reports whether the meeting can still change state.
func (s MeetingStatus) Open() bool { return s == MeetingScheduled || s == MeetingConfirmed }

// RSVPStatus is the invitee's response, independent of scheduling state.
type RSVPStatus string

const (
	RSVPPending   RSVPStatus = "PENDING"
	RSVPConfirmed RSVPStatus = "CONFIRMED"
	RSVPTentative RSVPStatus = "TENTATIVE"
	RSVPDeclined  RSVPStatus = "DECLINED"
)

// ParseRSVPStatus normalises s to a known RSVP value.
func ParseRSVPStatus(s string) (RSVPStatus, bool) {
	v := RSVPStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case RSVPPending, RSVPConfirmed, RSVPTentative, RSVPDeclined:
		return v, true
	}
	return "", false
}

// CanMoveTo reports whether a response of to may replace r.  A pending
// invitation accepts any answer, a tentative one can still be settled
// either way, and a firm answer is final.
func (r RSVPStatus) CanMoveTo(to RSVPStatus) bool {
	switch r {
	case RSVPPending:
		return to != RSVPPending
	case RSVPTentative:
		return to == RSVPConfirmed || to == RSVPDeclined
	}
	return false
}

// Meeting couples one faculty member and one student on a date.
//
// Fields:
//
//	FacultyID, StudentID - the two parties; never equal.
//	Date, TimeRange      - calendar day and [start_time, end_time).
//	Status               - scheduling state.
//	RSVPStatus           - invitee response.
//	RSVPDeadline         - responses after this instant are refused (nullable).
//	RSVPNotes            - notes recorded with the last response (nullable).
//	CreatedBy            - party that created the meeting.
type Meeting struct {
	ID           uint64        `json:"id"`                      // meetings.id
	FacultyID    uint64        `json:"faculty_id"`              // meetings.faculty_id
	StudentID    uint64        `json:"student_id"`              // meetings.student_id
	Date         Date          `json:"date"`                    // meetings.date
	TimeRange                  // meetings.start_time / end_time
	Title        string        `json:"title"`                   // meetings.title
	Description  string        `json:"description"`             // meetings.description
	Location     string        `json:"location"`                // meetings.location
	Type         MeetingType   `json:"type"`                    // meetings.type
	Status       MeetingStatus `json:"status"`                  // meetings.status
	RSVPStatus   RSVPStatus    `json:"rsvp_status"`             // meetings.rsvp_status
	RSVPDeadline *time.Time    `json:"rsvp_deadline,omitempty"` // meetings.rsvp_deadline
	RSVPNotes    *string       `json:"rsvp_notes,omitempty"`    // meetings.rsvp_notes
	CreatedBy    uint64        `json:"created_by"`              // meetings.created_by
	CreatedAt    time.Time     `json:"created_at"`              // meetings.created_at
	UpdatedAt    time.Time     `json:"updated_at"`              // meetings.updated_at
}

// HasParty reports whether userID is the faculty member or the student.
func (m Meeting) HasParty(userID uint64) bool {
	return userID != 0 && (m.FacultyID == userID || m.StudentID == userID)
}

// IsInvitee reports whether userID is a party other than the creator.
func (m Meeting) IsInvitee(userID uint64) bool {
	return m.HasParty(userID) && userID != m.CreatedBy
}

// Ends returns the absolute end of the meeting in UTC.
func (m Meeting) Ends() time.Time { return m.Date.At(m.End) }

// MeetingFilter carries the list query.  Zero values mean "no
// constraint"; Upcoming restricts to open meetings from Today onward.
type MeetingFilter struct {
	PartyID   uint64
	StartDate *Date
	EndDate   *Date
	Status    MeetingStatus
	Type      MeetingType
	Upcoming  bool
	Today     Date
}
