package database

import (
	"context"
	"time"

	"securesend/internal/models"
)

type LogActivityParams struct {
	AccountID int64
	Action    string
	Details   string
	IPAddress string
	CreatedAt time.Time
}

func (q *Queries) LogActivity(ctx context.Context, arg LogActivityParams) error {
	query := `
		INSERT INTO activity_log (account_id, action, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.db.Exec(ctx, query, arg.AccountID, arg.Action, arg.Details, arg.IPAddress, arg.CreatedAt)
	return err
}

func (q *Queries) ListActivity(ctx context.Context, accountID int64, limit int) ([]models.ActivityRecord, error) {
	query := `
		SELECT id, account_id, action, details, ip_address, created_at
		FROM activity_log
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := q.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ActivityRecord
	for rows.Next() {
		var record models.ActivityRecord
		if err := rows.Scan(
			&record.ID,
			&record.AccountID,
			&record.Action,
			&record.Details,
			&record.IPAddress,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if records == nil {
		return []models.ActivityRecord{}, nil
	}

	return records, nil
}
