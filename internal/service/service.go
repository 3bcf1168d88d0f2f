// Package service holds the account, file and payment workflows. Handlers
// call into it with an explicit Principal; it never reads request state.
package service

import (
	"context"
	"errors"
	"time"

	"securesend/internal/database"
	"securesend/internal/models"
	"securesend/internal/scanner"

	"github.com/google/uuid"
)

type AccountStore interface {
	CreateAccount(ctx context.Context, arg database.CreateAccountParams) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	UpdateAccount(ctx context.Context, id int64, fn func(*models.Account) error) (*models.Account, error)
	UpdateAccountByOTP(ctx context.Context, email, code string, now time.Time, fn func(*models.Account) error) (*models.Account, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, arg database.CreateSessionParams) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessionsForAccount(ctx context.Context, accountID int64, now time.Time) ([]models.Session, error)
	DeleteSessionByID(ctx context.Context, id uuid.UUID, accountID int64) (bool, error)
	DeleteAllSessionsForAccount(ctx context.Context, accountID int64) error
}

type FileStore interface {
	CreateFile(ctx context.Context, arg database.CreateFileParams) (*models.StoredFile, error)
	ListFilesByOwner(ctx context.Context, ownerID int64) ([]models.StoredFile, error)
	SetDownloadToken(ctx context.Context, id string, ownerID int64, token string, expiresAt time.Time) (*models.StoredFile, error)
	ClaimDownload(ctx context.Context, token string, now time.Time) (*models.StoredFile, error)
	DeleteFile(ctx context.Context, id string) error
}

type ActivityStore interface {
	LogActivity(ctx context.Context, arg database.LogActivityParams) error
	ListActivity(ctx context.Context, accountID int64, limit int) ([]models.ActivityRecord, error)
}

type LedgerStore interface {
	ApplyUpgrade(ctx context.Context, arg database.CreateTransactionParams, fn func(*models.Account) error) (bool, error)
	ListTransactions(ctx context.Context, accountID int64) ([]models.Transaction, error)
}

// Store is satisfied by both database.Store and database.MemoryStore.
type Store interface {
	AccountStore
	SessionStore
	FileStore
	ActivityStore
	LedgerStore
	Ping(ctx context.Context) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Scanner interface {
	Scan(ctx context.Context, name string, data []byte) (scanner.Verdict, error)
}

type EventPublisher interface {
	Publish(accountID int64, eventType string, payload interface{})
}

// RequestMeta is what the transport knows about the caller.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Principal is an authenticated caller.
type Principal struct {
	AccountID int64
	Email     string
	Role      models.Role
	SessionID uuid.UUID
}

type TierLimits struct {
	User  int64
	Pro   int64
	Admin int64
}

func (t TierLimits) For(role models.Role) int64 {
	switch role {
	case models.RoleAdmin:
		return t.Admin
	case models.RolePro:
		return t.Pro
	default:
		return t.User
	}
}

// asServiceError passes *Error values through and hides everything else
// behind ErrInternal.
func asServiceError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return internal(err)
}
