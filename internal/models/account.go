package models

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RolePro   Role = "PRO"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RolePro, RoleAdmin:
		return true
	}
	return false
}

type Account struct {
	ID                  int64      `json:"id" db:"id"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Role                Role       `json:"role" db:"role"`
	PasswordHistory     []string   `json:"-" db:"password_history"`
	PasswordLastChanged time.Time  `json:"password_last_changed" db:"password_last_changed"`
	FailedLoginAttempts int        `json:"-" db:"failed_login_attempts"`
	LockoutUntil        *time.Time `json:"-" db:"lockout_until"`
	OTP                 *string    `json:"-" db:"otp"`
	OTPExpires          *time.Time `json:"-" db:"otp_expires_at"`
	ProUntil            *time.Time `json:"pro_until,omitempty" db:"pro_until"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}

// EffectiveRole applies lazy subscription expiry: a PRO account whose
// subscription has lapsed is treated as USER.
func (a *Account) EffectiveRole(now time.Time) Role {
	if a.Role == RolePro && a.ProUntil != nil && !a.ProUntil.After(now) {
		return RoleUser
	}
	return a.Role
}

func (a *Account) ClearOTP() {
	a.OTP = nil
	a.OTPExpires = nil
}
