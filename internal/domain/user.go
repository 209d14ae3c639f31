package domain

import "time"

// Role is the closed set of authorization roles a user can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// User represents an identity that can authenticate against the service.
// Username is the primary key and never changes after creation.
type User struct {
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
