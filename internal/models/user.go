package models

import (
	"sort"
	"time"
)

// Built-in role names seeded by the initial migration.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleReader = "reader"
)

// DefaultRole is attached to every newly registered user when it exists.
const DefaultRole = RoleReader

type User struct {
	ID                   string
	Username             string
	Email                string
	PasswordHash         string
	FirstName            string
	LastName             string
	IsActive             bool
	EmailVerified        bool
	FailedLoginCount     int
	LockedUntil          *time.Time // Temporary account lock expiration
	LastLogin            *time.Time
	PasswordResetToken   *string // SHA-256 digest of the outstanding reset token
	PasswordResetExpires *time.Time
	Roles                RoleSet
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsLocked reports whether the lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

type Role struct {
	ID          int
	Name        string
	Description string
}

// RoleSet is a set of role names.
type RoleSet map[string]struct{}

func NewRoleSet(names ...string) RoleSet {
	rs := make(RoleSet, len(names))
	for _, n := range names {
		rs[n] = struct{}{}
	}
	return rs
}

func (rs RoleSet) Has(name string) bool {
	_, ok := rs[name]
	return ok
}

// HasAny reports whether at least one of names is in the set.
func (rs RoleSet) HasAny(names ...string) bool {
	for _, n := range names {
		if rs.Has(n) {
			return true
		}
	}
	return false
}

func (rs RoleSet) Add(name string) {
	rs[name] = struct{}{}
}

// Names returns the role names in sorted order.
func (rs RoleSet) Names() []string {
	names := make([]string, 0, len(rs))
	for n := range rs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
