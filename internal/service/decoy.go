package service

import (
	"sync"
	"time"

	"securesend/internal/auth"
	"securesend/internal/models"
)

// decoyCap bounds how many unknown emails are tracked at once.
const decoyCap = 10000

// decoyAttempts counts failed logins for emails that have no account, using
// the same lockout policy as real accounts, so attempts-left and lockout
// responses look the same whether or not the account exists.
type decoyAttempts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func newDecoyAttempts() *decoyAttempts {
	return &decoyAttempts{accounts: make(map[string]*models.Account)}
}

func (d *decoyAttempts) lockedUntil(email string, policy auth.LockoutPolicy, now time.Time) *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a, ok := d.accounts[email]; ok && policy.IsLocked(a, now) {
		until := *a.LockoutUntil
		return &until
	}
	return nil
}

func (d *decoyAttempts) fail(email string, policy auth.LockoutPolicy, now time.Time) *Error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[email]
	if !ok {
		if len(d.accounts) >= decoyCap {
			d.prune(now)
		}
		a = &models.Account{Email: email}
		d.accounts[email] = a
	}

	if policy.IsLocked(a, now) {
		return lockedError(a.LockoutUntil)
	}
	remaining := policy.OnFailure(a, now)
	if policy.IsLocked(a, now) {
		return lockedError(a.LockoutUntil)
	}
	return invalidCredentials(remaining)
}

// prune drops unlocked entries, or everything if all are locked. Callers hold mu.
func (d *decoyAttempts) prune(now time.Time) {
	for email, a := range d.accounts {
		if a.LockoutUntil == nil || !a.LockoutUntil.After(now) {
			delete(d.accounts, email)
		}
	}
	if len(d.accounts) >= decoyCap {
		d.accounts = make(map[string]*models.Account)
	}
}
