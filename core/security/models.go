package security

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// LockoutType says what a lockout row keys on.
// The string values are part of the persisted contract.
type LockoutType string

const (
	LockoutAccount LockoutType = "account"
	LockoutIP      LockoutType = "ip"
	LockoutEmail   LockoutType = "email"
)

// LoginAttempt is one row of the login attempt log; the brute-force
// signal is nothing more than a flat count of failed rows in a trailing
// window.
type LoginAttempt struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	IP        string    `json:"ip" db:"ip"`
	Success   bool      `json:"success" db:"success"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// Lockout is a time-boxed block on further login attempts. At most one
// row exists per (email, lockout_type); repeated triggers extend
// LockedUntil and bump AttemptCount instead of stacking rows.
type Lockout struct {
	ID           string      `json:"id" db:"id"`
	Email        string      `json:"email" db:"email"`
	LockoutType  LockoutType `json:"lockout_type" db:"lockout_type"`
	LockedUntil  time.Time   `json:"locked_until" db:"locked_until"` // UTC
	UnlockedAt   null.Time   `json:"unlocked_at" db:"unlocked_at"`   // manual unlock
	AttemptCount int         `json:"attempt_count" db:"attempt_count"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// Active reports whether the lockout still blocks logins at `now`:
// not manually unlocked and not yet expired.
func (l Lockout) Active(now time.Time) bool {
	return !l.UnlockedAt.Valid && l.LockedUntil.After(now)
}
