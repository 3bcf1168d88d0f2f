package models

import "time"

type StoredFile struct {
	ID                string     `json:"id"`
	OwnerID           int64      `json:"owner_id"`
	OriginalName      string     `json:"original_name"`
	StorageName       string     `json:"-"`
	SizeBytes         int64      `json:"size_bytes"`
	MimeType          string     `json:"mime_type"`
	Nonce             []byte     `json:"-"`
	DownloadToken     *string    `json:"-"`
	DownloadExpiresAt *time.Time `json:"download_expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
