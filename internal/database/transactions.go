package database

import (
	"context"
	"errors"
	"time"

	"securesend/internal/models"

	"github.com/jackc/pgx/v5"
)

type CreateTransactionParams struct {
	AccountID   int64
	SessionID   string
	AmountCents int64
	Currency    string
	ProductName string
	Status      string
	CreatedAt   time.Time
}

// insertTransaction returns false when the session id was already recorded.
func (q *Queries) insertTransaction(ctx context.Context, arg CreateTransactionParams) (bool, error) {
	query := `
		INSERT INTO transactions (account_id, session_id, amount_cents, currency, product_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id
	`
	var id int64
	err := q.db.QueryRow(ctx, query,
		arg.AccountID,
		arg.SessionID,
		arg.AmountCents,
		arg.Currency,
		arg.ProductName,
		arg.Status,
		arg.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if isForeignKeyViolation(err) {
			return false, ErrAccountNotFound
		}
		return false, err
	}
	return true, nil
}

// ApplyUpgrade records the transaction and applies fn to the paying account
// in one transaction. A session id that was already recorded is a no-op and
// returns false.
func (s *Store) ApplyUpgrade(ctx context.Context, arg CreateTransactionParams, fn func(*models.Account) error) (bool, error) {
	applied := false
	err := s.ExecTx(ctx, func(q *Queries) error {
		inserted, err := q.insertTransaction(ctx, arg)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		account, err := q.getAccountForUpdate(ctx, arg.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ErrAccountNotFound
		}
		if _, err := q.mutateAccount(ctx, account, fn); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (q *Queries) ListTransactions(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	query := `
		SELECT id, account_id, session_id, amount_cents, currency, product_name, status, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := q.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.SessionID,
			&t.AmountCents,
			&t.Currency,
			&t.ProductName,
			&t.Status,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if transactions == nil {
		return []models.Transaction{}, nil
	}

	return transactions, nil
}
