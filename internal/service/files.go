package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"securesend/internal/database"
	"securesend/internal/filecrypt"
	"securesend/internal/models"
	"securesend/internal/storage"
	"securesend/internal/websocket"

	"github.com/jaevor/go-nanoid"
	log "github.com/sirupsen/logrus"
)

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".zip":  true,
}

func allowedMimeType(mediaType string) bool {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/png", "image/gif",
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/zip", "application/x-zip-compressed":
		return true
	}
	return false
}

func allowedType(name, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return allowedExtensions[ext] && allowedMimeType(mediaType)
}

type FileConfig struct {
	LinkTTL time.Duration
	Tiers   TierLimits
}

type FileService struct {
	files     FileStore
	accounts  AccountStore
	blobs     storage.BlobStorage
	cipher    *filecrypt.Cipher
	scanner   Scanner
	publisher EventPublisher
	activity  activityRecorder
	cfg       FileConfig
	now       func() time.Time

	newID    func() string
	newToken func() string
}

func NewFileService(files FileStore, accounts AccountStore, activity ActivityStore, blobs storage.BlobStorage,
	cipher *filecrypt.Cipher, scanner Scanner, publisher EventPublisher, cfg FileConfig) (*FileService, error) {
	newID, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}
	newToken, err := nanoid.Standard(32)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}

	s := &FileService{
		files:     files,
		accounts:  accounts,
		blobs:     blobs,
		cipher:    cipher,
		scanner:   scanner,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		newID:     newID,
		newToken:  newToken,
	}
	s.activity = activityRecorder{store: activity, now: s.clock}
	return s, nil
}

func (s *FileService) clock() time.Time {
	return s.now().UTC()
}

// UploadLimit returns the byte limit for the account's current tier.
func (s *FileService) UploadLimit(ctx context.Context, p *Principal) (int64, error) {
	account, err := s.accounts.GetAccountByID(ctx, p.AccountID)
	if err != nil {
		return 0, internal(err)
	}
	if account == nil {
		return 0, ErrUnauthenticated
	}
	return s.cfg.Tiers.For(account.EffectiveRole(s.clock())), nil
}

func (s *FileService) reject(ctx context.Context, p *Principal, name, reason string, meta RequestMeta) {
	s.activity.record(ctx, p.AccountID, models.ActionFileRejected, fmt.Sprintf("%s: %s", name, reason), meta)
}

// Upload runs the accept-and-store pipeline: size, type, scan, encrypt,
// store blob, then metadata. The blob is removed if the metadata write fails.
func (s *FileService) Upload(ctx context.Context, p *Principal, name, mimeType string, data []byte, meta RequestMeta) (*models.StoredFile, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if name == "" || data == nil {
		return nil, ErrNoFile
	}
	name = filepath.Base(name)

	limit, err := s.UploadLimit(ctx, p)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		s.reject(ctx, p, name, "size limit exceeded", meta)
		return nil, ErrFileTooLarge
	}
	if !allowedType(name, mimeType) {
		s.reject(ctx, p, name, "file type not allowed", meta)
		return nil, ErrFileType
	}

	verdict, err := s.scanner.Scan(ctx, name, data)
	if err != nil {
		log.WithError(err).WithField("account_id", p.AccountID).Error("virus scan failed")
		return nil, dependency(ErrScanFailed, err)
	}
	if !verdict.Clean {
		s.reject(ctx, p, name, "malware detected: "+strings.Join(verdict.Threats, ", "), meta)
		e := ErrInfected.clone()
		e.Threats = verdict.Threats
		if len(verdict.Threats) > 0 {
			e.Message = "File rejected: malware detected (" + strings.Join(verdict.Threats, ", ") + ")."
		}
		return nil, e
	}

	sealed, err := s.cipher.Encrypt(data)
	if err != nil {
		return nil, internal(err)
	}

	storageName := s.newID()
	if err := s.blobs.Save(ctx, storageName, bytes.NewReader(sealed.Blob())); err != nil {
		return nil, internal(fmt.Errorf("failed to store blob: %w", err))
	}

	file, err := s.files.CreateFile(ctx, database.CreateFileParams{
		ID:           s.newID(),
		OwnerID:      p.AccountID,
		OriginalName: name,
		StorageName:  storageName,
		SizeBytes:    int64(len(data)),
		MimeType:     mimeType,
		Nonce:        sealed.Nonce,
		CreatedAt:    s.clock(),
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, storageName); delErr != nil {
			log.WithError(delErr).WithField("storage_name", storageName).Error("failed to remove orphaned blob")
		}
		return nil, internal(fmt.Errorf("failed to create file record: %w", err))
	}

	s.activity.record(ctx, p.AccountID, models.ActionFileUpload, fmt.Sprintf("Uploaded %s (%d bytes)", name, file.SizeBytes), meta)
	return file, nil
}

func (s *FileService) List(ctx context.Context, p *Principal) ([]models.StoredFile, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	files, err := s.files.ListFilesByOwner(ctx, p.AccountID)
	if err != nil {
		return nil, internal(err)
	}
	return files, nil
}

type DownloadLink struct {
	FileID    string
	Token     string
	ExpiresAt time.Time
}

// GenerateLink replaces any previous link of the file with a fresh one.
func (s *FileService) GenerateLink(ctx context.Context, p *Principal, fileID string, meta RequestMeta) (*DownloadLink, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if fileID == "" {
		return nil, ErrNotFoundOrForbidden
	}

	token := s.newToken()
	expiresAt := s.clock().Add(s.cfg.LinkTTL)
	file, err := s.files.SetDownloadToken(ctx, fileID, p.AccountID, token, expiresAt)
	if err != nil {
		return nil, internal(err)
	}
	if file == nil {
		return nil, ErrNotFoundOrForbidden
	}

	s.activity.record(ctx, p.AccountID, models.ActionLinkGenerated, "Download link for "+file.OriginalName, meta)
	return &DownloadLink{FileID: file.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// Download consumes a one-time link. The token is claimed before the blob is
// read, so concurrent callers cannot both succeed. send receives the
// plaintext; blob and record are deleted only after it returns nil.
func (s *FileService) Download(ctx context.Context, token string, meta RequestMeta, send func(*models.StoredFile, []byte) error) error {
	if token == "" {
		return ErrInvalidOrExpiredLink
	}

	file, err := s.files.ClaimDownload(ctx, token, s.clock())
	if err != nil {
		return internal(err)
	}
	if file == nil {
		return ErrInvalidOrExpiredLink
	}
	logger := log.WithFields(log.Fields{"file_id": file.ID, "owner_id": file.OwnerID})

	blob, err := s.readBlob(ctx, file.StorageName)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			logger.Error("file record points at missing blob, removing record")
			if delErr := s.files.DeleteFile(ctx, file.ID); delErr != nil {
				logger.WithError(delErr).Error("failed to remove dangling file record")
			}
		}
		return internal(err)
	}

	plaintext, err := s.cipher.Open(blob)
	if err != nil {
		logger.WithError(err).Error("stored file failed integrity check")
		return ErrIntegrity.withCause(err)
	}

	if err := send(file, plaintext); err != nil {
		logger.WithError(err).Warn("failed to send file, link stays consumed")
		return internal(err)
	}

	if err := s.blobs.Delete(ctx, file.StorageName); err != nil {
		logger.WithError(err).Error("failed to delete blob after download, file leaked")
	}
	if err := s.files.DeleteFile(ctx, file.ID); err != nil {
		logger.WithError(err).Error("failed to delete file record after download, file leaked")
	}

	s.activity.record(ctx, file.OwnerID, models.ActionFileDownloaded, "Downloaded "+file.OriginalName, meta)
	if s.publisher != nil {
		s.publisher.Publish(file.OwnerID, websocket.EventFileDownloaded, map[string]interface{}{
			"file_id":       file.ID,
			"original_name": file.OriginalName,
			"downloaded_at": s.clock(),
		})
	}
	return nil
}

func (s *FileService) readBlob(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.blobs.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
