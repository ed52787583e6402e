package model

import "time"

// AppCredential is the password gate state for one application. A nil
// LockedUntil means the credential is not locked; a LockedUntil in the past
// is an expired lock that is only cleared by the next check.
type AppCredential struct {
	AppID          string
	PasswordHash   string
	FailedAttempts int
	LockedUntil    *time.Time
	UpdatedAt      time.Time
}

// IsLocked reports whether the credential rejects all attempts at now.
func (c AppCredential) IsLocked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// RetryAfter returns the remaining lock time at now, or zero when unlocked.
func (c AppCredential) RetryAfter(now time.Time) time.Duration {
	if !c.IsLocked(now) {
		return 0
	}
	return c.LockedUntil.Sub(now)
}

// ResetAttempts returns the credential to the unlocked state with a zero
// failure counter.
func (c *AppCredential) ResetAttempts() {
	c.FailedAttempts = 0
	c.LockedUntil = nil
}
