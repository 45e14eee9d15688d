package users

import (
	"errors"
	"time"
)

// Role determines which dependent records reference a user and in what capacity.
type Role string

const (
	RolePatient      Role = "patient"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProfessional, RoleAdmin:
		return true
	}
	return false
}

// ErrNotFound is returned when no profile matches the lookup.
var ErrNotFound = errors.New("users: profile not found")

// Profile is the primary user record keyed by the auth identity uid.
type Profile struct {
	UID       string    `json:"uid"`
	Role      Role      `json:"role"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
