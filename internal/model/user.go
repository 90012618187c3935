package model

import "time"

// User represents an application user record as stored in the
// `users` table.  A user holds exactly one role; its effective
// permissions are the grants of that role.
//
// Fields:
//
//	ID           - primary key identifier of the user.
//	Email        - unique email address.
//	FullName     - display name.
//	PasswordHash - bcrypt hashed password.
//	RoleID       - foreign key into the roles table.
//	IsActive     - whether the account may sign in.
//	CreatedAt    - timestamp of creation.
//	UpdatedAt    - timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	FullName     string    // users.full_name
	PasswordHash string    // users.password_hash
	RoleID       RoleID    // users.role_id (references roles.id)
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Principal returns the authenticated view of the user.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Email: u.Email, RoleID: u.RoleID}
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the raw token is stored.
//
// Fields:
//
//	ID        - primary key identifier.
//	UserID    - owner of the token.
//	TokenHash - SHA-256 hex digest of the token value.
//	ExpiresAt - expiration timestamp of the token.
//	RevokedAt - when the token was revoked (null if still active).
//	CreatedAt - timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
