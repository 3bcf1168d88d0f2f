package database

import (
	"context"
	"errors"
	"time"

	"securesend/internal/models"

	"github.com/jackc/pgx/v5"
)

const fileColumns = `
	id, owner_id, original_name, storage_name, size_bytes, mime_type, nonce,
	download_token, download_expires_at, created_at
`

type CreateFileParams struct {
	ID           string
	OwnerID      int64
	OriginalName string
	StorageName  string
	SizeBytes    int64
	MimeType     string
	Nonce        []byte
	CreatedAt    time.Time
}

func scanFile(row pgx.Row) (*models.StoredFile, error) {
	var file models.StoredFile
	err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&file.OriginalName,
		&file.StorageName,
		&file.SizeBytes,
		&file.MimeType,
		&file.Nonce,
		&file.DownloadToken,
		&file.DownloadExpiresAt,
		&file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (q *Queries) CreateFile(ctx context.Context, arg CreateFileParams) (*models.StoredFile, error) {
	query := `
		INSERT INTO files (id, owner_id, original_name, storage_name, size_bytes, mime_type, nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + fileColumns

	return scanFile(q.db.QueryRow(ctx, query,
		arg.ID,
		arg.OwnerID,
		arg.OriginalName,
		arg.StorageName,
		arg.SizeBytes,
		arg.MimeType,
		arg.Nonce,
		arg.CreatedAt,
	))
}

func (q *Queries) ListFilesByOwner(ctx context.Context, ownerID int64) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 ORDER BY created_at DESC, id`
	rows, err := q.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.StoredFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if files == nil {
		return []models.StoredFile{}, nil
	}

	return files, nil
}

// SetDownloadToken replaces any previous token of a file owned by ownerID.
// Returns (nil, nil) when the file does not exist or belongs to someone else.
func (q *Queries) SetDownloadToken(ctx context.Context, id string, ownerID int64, token string, expiresAt time.Time) (*models.StoredFile, error) {
	query := `
		UPDATE files
		SET download_token = $3, download_expires_at = $4
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + fileColumns

	file, err := scanFile(q.db.QueryRow(ctx, query, id, ownerID, token, expiresAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return file, nil
}

// ClaimDownload consumes a live download token in a single conditional
// update. Of two concurrent callers only one gets the row back.
func (q *Queries) ClaimDownload(ctx context.Context, token string, now time.Time) (*models.StoredFile, error) {
	query := `
		UPDATE files
		SET download_token = NULL, download_expires_at = NULL
		WHERE download_token = $1 AND download_expires_at > $2
		RETURNING ` + fileColumns

	file, err := scanFile(q.db.QueryRow(ctx, query, token, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return file, nil
}

func (q *Queries) DeleteFile(ctx context.Context, id string) error {
	query := `DELETE FROM files WHERE id = $1`
	_, err := q.db.Exec(ctx, query, id)
	return err
}
