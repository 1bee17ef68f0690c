package models

import "time"

type RiderRole string

const (
	RiderRoleStudent RiderRole = "student"
	RiderRoleDriver  RiderRole = "driver"
	RiderRoleAdmin   RiderRole = "admin"
)

func (r RiderRole) Valid() bool {
	switch r {
	case RiderRoleStudent, RiderRoleDriver, RiderRoleAdmin:
		return true
	}
	return false
}

// Rider is any account of the system: student, driver or admin.
type Rider struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Role         RiderRole
	StudentID    *string
	Phone        *string
	BusID        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RiderFilter struct {
	Role   RiderRole
	Search string
	Limit  int
}

// RiderChanges carries admin edits. Nil fields are left untouched.
type RiderChanges struct {
	Name      *string
	Email     *string
	Phone     *string
	StudentID *string
	Role      *RiderRole
}

// Session binds an authenticated rider to a login. It lives in the
// session store only.
type Session struct {
	ID        string
	RiderID   string
	Name      string
	Email     string
	Role      RiderRole
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}
