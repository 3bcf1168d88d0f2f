package database

import (
	"context"
	"errors"
	"time"

	"securesend/internal/models"

	"github.com/jackc/pgx/v5"
)

const accountColumns = `
	id, email, password_hash, role, password_history, password_last_changed,
	failed_login_attempts, lockout_until, otp, otp_expires_at, pro_until, created_at
`

type CreateAccountParams struct {
	Email           string
	PasswordHash    string
	Role            models.Role
	PasswordHistory []string
	CreatedAt       time.Time
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	var role string
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.PasswordHistory,
		&account.PasswordLastChanged,
		&account.FailedLoginAttempts,
		&account.LockoutUntil,
		&account.OTP,
		&account.OTPExpires,
		&account.ProUntil,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.Role = models.Role(role)
	return &account, nil
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (*models.Account, error) {
	query := `
		INSERT INTO accounts (email, password_hash, role, password_history, password_last_changed, created_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + accountColumns

	history := arg.PasswordHistory
	if history == nil {
		history = []string{}
	}
	role := arg.Role
	if role == "" {
		role = models.RoleUser
	}

	account, err := scanAccount(q.db.QueryRow(ctx, query, arg.Email, arg.PasswordHash, string(role), history, arg.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return account, nil
}

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	account, err := scanAccount(q.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func (q *Queries) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func (q *Queries) getAccountForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	account, err := scanAccount(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func (q *Queries) getAccountByOTPForUpdate(ctx context.Context, email, code string, now time.Time) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1 AND otp = $2 AND otp_expires_at > $3
		FOR UPDATE
	`
	account, err := scanAccount(q.db.QueryRow(ctx, query, email, code, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// saveAccount writes every mutable column. Email and creation time are immutable.
func (q *Queries) saveAccount(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts SET
			password_hash = $2,
			role = $3,
			password_history = $4,
			password_last_changed = $5,
			failed_login_attempts = $6,
			lockout_until = $7,
			otp = $8,
			otp_expires_at = $9,
			pro_until = $10
		WHERE id = $1
	`
	history := a.PasswordHistory
	if history == nil {
		history = []string{}
	}
	res, err := q.db.Exec(ctx, query,
		a.ID,
		a.PasswordHash,
		string(a.Role),
		history,
		a.PasswordLastChanged,
		a.FailedLoginAttempts,
		a.LockoutUntil,
		a.OTP,
		a.OTPExpires,
		a.ProUntil,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (q *Queries) mutateAccount(ctx context.Context, account *models.Account, fn func(*models.Account) error) (*models.Account, error) {
	if account == nil {
		return nil, nil
	}
	if err := fn(account); err != nil {
		return nil, err
	}
	if err := q.saveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateAccount locks the account row, applies fn and persists the result in
// one transaction. An error from fn rolls everything back. Returns (nil, nil)
// when the account does not exist.
func (s *Store) UpdateAccount(ctx context.Context, id int64, fn func(*models.Account) error) (*models.Account, error) {
	var updated *models.Account
	err := s.ExecTx(ctx, func(q *Queries) error {
		account, err := q.getAccountForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated, err = q.mutateAccount(ctx, account, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateAccountByOTP is UpdateAccount keyed by a live OTP: the row must match
// the email, the code and an expiry after now. Returns (nil, nil) on no match.
func (s *Store) UpdateAccountByOTP(ctx context.Context, email, code string, now time.Time, fn func(*models.Account) error) (*models.Account, error) {
	var updated *models.Account
	err := s.ExecTx(ctx, func(q *Queries) error {
		account, err := q.getAccountByOTPForUpdate(ctx, email, code, now)
		if err != nil {
			return err
		}
		updated, err = q.mutateAccount(ctx, account, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
