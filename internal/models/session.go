package models

import "time"

// Session maps a hashed opaque token to its owner.
type Session struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Expired reports whether the session lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Blacklist reasons
const (
	RevokeReasonLogout        = "logout"
	RevokeReasonLogoutAll     = "logout_all"
	RevokeReasonPasswordReset = "password_reset"
	RevokeReasonDeactivated   = "account_deactivated"
)

type BlacklistedToken struct {
	TokenHash     string
	UserID        string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
	Reason        string
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID    string
	Username  string
	Email     string
	Roles     RoleSet
	Token     string
	ExpiresAt time.Time
}
