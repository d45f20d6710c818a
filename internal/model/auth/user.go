package auth

import (
	"time"

	"github.com/zhouzirui/maps-app/client/internal/model/geo"
)

// Role identifies what a user may do in the application.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
	RoleUser      Role = "user"
)

// User is the backend view of an authenticated account.
type User struct {
	ID          string        `json:"uid"`
	Email       string        `json:"email,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
	PhotoURL    string        `json:"photoURL,omitempty"`
	Role        Role          `json:"role,omitempty"`
	Location    *geo.Location `json:"location,omitempty"`
	CreatedAt   time.Time     `json:"createdAt,omitempty"`
}

func (u User) IsAdmin() bool     { return u.Role == RoleAdmin }
func (u User) IsDriver() bool    { return u.Role == RoleDriver }
func (u User) IsPassenger() bool { return u.Role == RolePassenger }

// Profile carries the optional fields sent on registration.
type Profile struct {
	DisplayName string `json:"displayName,omitempty"`
	Role        Role   `json:"role,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// ProfileUpdate is the body of a profile change; empty fields are left untouched.
type ProfileUpdate struct {
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Credentials are the email/password pair handed to the identity provider.
type Credentials struct {
	Email    string
	Password string
}
