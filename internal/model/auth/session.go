package auth

import "time"

// Session binds a verified user to the credential used for backend calls.
// ExpiresAt is zero when the token carries no readable expiry.
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Valid reports whether both halves of the session are present.
func (s Session) Valid() bool {
	return s.Token != "" && s.User.ID != ""
}

// ExpiresWithin reports whether the token expires before now+d.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}
