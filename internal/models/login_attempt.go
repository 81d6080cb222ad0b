package models

import "time"

// LoginAttempt represents a single login attempt in the system
type LoginAttempt struct {
	ID            string    `db:"id"`
	UserID        *string   `db:"user_id"`
	Identifier    string    `db:"identifier"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	AttemptedAt   time.Time `db:"attempted_at"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
}

// Login failure reasons recorded with each attempt
const (
	FailureReasonUnknownUser  = "unknown_user"
	FailureReasonBadPassword  = "bad_password"
	FailureReasonLocked       = "account_locked"
	FailureReasonInactive     = "account_inactive"
	FailureReasonThrottled    = "throttled"
	FailureReasonInvalidInput = "invalid_input"
)
