package auth

import (
	"securesend/internal/models"
	"time"
)

type LockoutPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

func (p LockoutPolicy) IsLocked(a *models.Account, now time.Time) bool {
	return a.LockoutUntil != nil && a.LockoutUntil.After(now)
}

// OnFailure records a failed password check and returns the attempts left
// before lockout. The counter is not reset when the lock is applied.
func (p LockoutPolicy) OnFailure(a *models.Account, now time.Time) int {
	a.FailedLoginAttempts++
	if a.FailedLoginAttempts >= p.MaxAttempts {
		until := now.Add(p.LockoutDuration)
		a.LockoutUntil = &until
	}
	remaining := p.MaxAttempts - a.FailedLoginAttempts
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (p LockoutPolicy) OnSuccess(a *models.Account) {
	a.FailedLoginAttempts = 0
	a.LockoutUntil = nil
}
