package database

import (
	"context"
	"errors"
	"time"

	"securesend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type CreateSessionParams struct {
	ID        uuid.UUID
	AccountID int64
	UserAgent string
	ClientIP  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	query := `
		INSERT INTO sessions (id, account_id, user_agent, client_ip, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.db.Exec(ctx, query, arg.ID, arg.AccountID, arg.UserAgent, arg.ClientIP, arg.ExpiresAt, arg.CreatedAt)
	return err
}

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT id, account_id, user_agent, client_ip, expires_at, created_at
		FROM sessions
		WHERE id = $1
	`
	var session models.Session
	err := q.db.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.AccountID,
		&session.UserAgent,
		&session.ClientIP,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (q *Queries) ListSessionsForAccount(ctx context.Context, accountID int64, now time.Time) ([]models.Session, error) {
	query := `
		SELECT id, account_id, user_agent, client_ip, expires_at, created_at
		FROM sessions
		WHERE account_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := q.db.Query(ctx, query, accountID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(
			&session.ID,
			&session.AccountID,
			&session.UserAgent,
			&session.ClientIP,
			&session.ExpiresAt,
			&session.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if sessions == nil {
		return []models.Session{}, nil
	}

	return sessions, nil
}

func (q *Queries) DeleteSessionByID(ctx context.Context, id uuid.UUID, accountID int64) (bool, error) {
	query := `DELETE FROM sessions WHERE id = $1 AND account_id = $2`
	res, err := q.db.Exec(ctx, query, id, accountID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (q *Queries) DeleteAllSessionsForAccount(ctx context.Context, accountID int64) error {
	query := `DELETE FROM sessions WHERE account_id = $1`
	_, err := q.db.Exec(ctx, query, accountID)
	return err
}
