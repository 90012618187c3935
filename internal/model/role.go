package model

import "strings"

// RoleID is the stable numeric identifier of a role.  Grants reference
// roles by id, so the values below must never be renumbered.
type RoleID uint8

const (
	RoleAdmin    RoleID = 0
	RoleChairman RoleID = 1
	RoleTeacher  RoleID = 2
	RoleStudent  RoleID = 3
	RoleOfficer  RoleID = 4
	RoleFaculty  RoleID = 5
)

var roleNames = [...]string{
	RoleAdmin:    "ADMIN",
	RoleChairman: "CHAIRMAN",
	RoleTeacher:  "TEACHER",
	RoleStudent:  "STUDENT",
	RoleOfficer:  "OFFICER",
	RoleFaculty:  "FACULTY",
}

// AllRoles lists every role in id order.
func AllRoles() []RoleID {
	return []RoleID{RoleAdmin, RoleChairman, RoleTeacher, RoleStudent, RoleOfficer, RoleFaculty}
}

// Valid reports whether r is one of the known roles.
func (r RoleID) Valid() bool { return int(r) < len(roleNames) }

// String returns the canonical uppercase role name, or "UNKNOWN".
func (r RoleID) String() string {
	if !r.Valid() {
		return "UNKNOWN"
	}
	return roleNames[r]
}

// ParseRole resolves a role name (case-insensitive) to its id.
func ParseRole(name string) (RoleID, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for id, s := range roleNames {
		if s == n {
			return RoleID(id), true
		}
	}
	return 0, false
}

// Role represents a row in the `roles` table.
//
// Fields:
//
//	ID   - numeric identifier of the role (see RoleID constants).
//	Name - canonical uppercase role name.
type Role struct {
	ID   RoleID `json:"id"`   // roles.id
	Name string `json:"name"` // roles.name
}

// Principal is an authenticated user together with its resolved role.
// The effective permission set is owned by the authorizer and is not
// carried here so that grant changes apply to live sessions.
type Principal struct {
	UserID uint64
	Email  string
	RoleID RoleID
}

// IsZero reports whether p is the empty principal (no authenticated user).
func (p Principal) IsZero() bool { return p.UserID == 0 }
