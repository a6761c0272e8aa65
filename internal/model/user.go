package model

import "time"

// User represents a portal account as stored in the `users` table.
// PasswordHash is a bcrypt digest and is never serialized.
//
// Fields:
//
//	ID           – primary key (UUID string).
//	Email        – unique login, stored lower-cased.
//	PasswordHash – bcrypt hashed password.
//	FullName     – display name.
//	Role         – access level, see Role.
//	UnitID       – affiliated unit; nil for global accounts.
//	UnitName     – joined from units for listings.
//	IsActive     – inactive accounts cannot log in.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	UnitID       *string   `json:"unit_id"`
	UnitName     *string   `json:"unit_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserPatch carries a coalescing update: nil fields keep their stored value.
type UserPatch struct {
	Email        *string
	FullName     *string
	Role         *Role
	UnitID       *string
	IsActive     *bool
	PasswordHash *string
}

// EndsSessions reports whether the patch changes what a session token
// asserts about the user (role or unit) or deactivates the account, so
// tokens issued before it must stop working.
func (p UserPatch) EndsSessions() bool {
	return p.Role != nil || p.UnitID != nil || (p.IsActive != nil && !*p.IsActive)
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Email == nil && p.FullName == nil && p.Role == nil &&
		p.UnitID == nil && p.IsActive == nil && p.PasswordHash == nil
}
