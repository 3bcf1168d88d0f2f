package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"securesend/internal/database"
	"securesend/internal/filecrypt"
	"securesend/internal/models"
	"securesend/internal/scanner"
	"securesend/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countBlobs(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

type captured struct {
	file *models.StoredFile
	data []byte
}

func (c *captured) send(file *models.StoredFile, data []byte) error {
	c.file = file
	c.data = append([]byte(nil), data...)
	return nil
}

func TestUpload_TooLargeRejectedBeforeScan(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, testEmail)

	data := make([]byte, 3_000_000)
	_, err := f.files.Upload(context.Background(), p, "big.pdf", "application/pdf", data, testMeta)
	requireKind(t, err, ErrFileTooLarge)

	require.Zero(t, f.scanner.calls)
	require.Zero(t, countBlobs(t, f.blobDir))
}

func TestUpload_ProTierHasLargerLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	_, err := f.payments.SimulateUpgrade(ctx, p, "Premium", testMeta)
	require.NoError(t, err)

	file, err := f.files.Upload(ctx, p, "big.pdf", "application/pdf", make([]byte, 3_000_000), testMeta)
	require.NoError(t, err)
	require.Equal(t, int64(3_000_000), file.SizeBytes)
}

func TestUpload_TypeAllowList(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, testEmail)
	ctx := context.Background()

	cases := []struct {
		name, mime string
		ok         bool
	}{
		{"photo.JPG", "image/jpeg", true},
		{"doc.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", true},
		{"archive.zip", "application/zip", true},
		{"report.pdf", "application/pdf; charset=binary", true},
		{"script.exe", "application/octet-stream", false},
		{"fake.pdf", "text/html", false},
		{"noext", "application/pdf", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.files.Upload(ctx, p, tc.name, tc.mime, []byte("content"), testMeta)
			if tc.ok {
				require.NoError(t, err)
			} else {
				requireKind(t, err, ErrFileType)
			}
		})
	}
}

func TestUpload_Infected(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, testEmail)
	f.scanner.verdict = scanner.Verdict{Clean: false, Threats: []string{"Eicar-Test-Signature"}}

	_, err := f.files.Upload(context.Background(), p, "eicar.zip", "application/zip", []byte("X5O!P%@AP"), testMeta)
	svcErr := requireKind(t, err, ErrInfected)
	require.Equal(t, []string{"Eicar-Test-Signature"}, svcErr.Threats)
	require.Contains(t, svcErr.Message, "Eicar-Test-Signature")
	require.Zero(t, countBlobs(t, f.blobDir))

	files, err := f.files.List(context.Background(), p)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestUpload_ScanFailureIsNotAVerdict(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, testEmail)
	f.scanner.err = errors.New("scanner unreachable")

	_, err := f.files.Upload(context.Background(), p, "a.pdf", "application/pdf", []byte("%PDF"), testMeta)
	svcErr := requireKind(t, err, ErrScanFailed)
	require.Equal(t, KindDependency, svcErr.Kind)
	require.Zero(t, countBlobs(t, f.blobDir))
}

type failingFileStore struct {
	FileStore
}

func (failingFileStore) CreateFile(ctx context.Context, arg database.CreateFileParams) (*models.StoredFile, error) {
	return nil, errors.New("metadata store down")
}

func TestUpload_MetadataFailureRemovesBlob(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, testEmail)
	f.files.files = failingFileStore{FileStore: f.store}

	_, err := f.files.Upload(context.Background(), p, "report.pdf", "application/pdf", []byte("%PDF-1.4 body"), testMeta)
	svcErr := requireKind(t, err, ErrInternal)
	require.Equal(t, ErrInternal.Message, svcErr.Message)

	require.Equal(t, 1, f.scanner.calls)
	require.Zero(t, countBlobs(t, f.blobDir), "ciphertext must not outlive a failed metadata write")

	files, err := f.store.ListFilesByOwner(context.Background(), p.AccountID)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestUpload_NoFile(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, testEmail)

	_, err := f.files.Upload(context.Background(), p, "", "application/pdf", nil, testMeta)
	requireKind(t, err, ErrNoFile)
}

func TestUpload_StoresCiphertextOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)
	plaintext := []byte("quarterly numbers, do not share")

	file, err := f.files.Upload(ctx, p, "../../report.pdf", "application/pdf", plaintext, testMeta)
	require.NoError(t, err)
	require.Equal(t, "report.pdf", file.OriginalName)
	require.Len(t, file.Nonce, filecrypt.NonceSize)

	rc, err := f.blobs.Get(ctx, file.StorageName)
	require.NoError(t, err)
	var blob bytes.Buffer
	_, err = blob.ReadFrom(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	require.Len(t, blob.Bytes(), filecrypt.HeaderSize+len(plaintext))
	require.Equal(t, file.Nonce, blob.Bytes()[:filecrypt.NonceSize])
	require.False(t, bytes.Contains(blob.Bytes(), plaintext))
}

func TestGenerateLink_OwnershipAndReplacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, testEmail)
	other := f.register(t, "b@x.com")

	file, err := f.files.Upload(ctx, owner, "a.pdf", "application/pdf", []byte("%PDF-1.7"), testMeta)
	require.NoError(t, err)

	_, err = f.files.GenerateLink(ctx, other, file.ID, testMeta)
	requireKind(t, err, ErrNotFoundOrForbidden)
	_, err = f.files.GenerateLink(ctx, owner, "missing", testMeta)
	requireKind(t, err, ErrNotFoundOrForbidden)

	first, err := f.files.GenerateLink(ctx, owner, file.ID, testMeta)
	require.NoError(t, err)
	require.Len(t, first.Token, 32)
	require.Equal(t, f.clock.now().Add(f.files.cfg.LinkTTL), first.ExpiresAt)

	second, err := f.files.GenerateLink(ctx, owner, file.ID, testMeta)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	var c captured
	requireKind(t, f.files.Download(ctx, first.Token, testMeta, c.send), ErrInvalidOrExpiredLink)
	require.NoError(t, f.files.Download(ctx, second.Token, testMeta, c.send))
}

func TestDownload_OneShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)
	plaintext := []byte("the original bytes")

	file, err := f.files.Upload(ctx, p, "notes.pdf", "application/pdf", plaintext, testMeta)
	require.NoError(t, err)
	link, err := f.files.GenerateLink(ctx, p, file.ID, testMeta)
	require.NoError(t, err)

	var c captured
	require.NoError(t, f.files.Download(ctx, link.Token, testMeta, c.send))
	require.Equal(t, plaintext, c.data)
	require.Equal(t, "notes.pdf", c.file.OriginalName)
	require.Equal(t, "application/pdf", c.file.MimeType)

	requireKind(t, f.files.Download(ctx, link.Token, testMeta, c.send), ErrInvalidOrExpiredLink)

	require.Zero(t, countBlobs(t, f.blobDir))
	files, err := f.files.List(ctx, p)
	require.NoError(t, err)
	require.Empty(t, files)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, p.AccountID, f.publisher.events[0].AccountID)
	require.Equal(t, websocket.EventFileDownloaded, f.publisher.events[0].EventType)
}

func TestDownload_ExpiredLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	file, err := f.files.Upload(ctx, p, "a.pdf", "application/pdf", []byte("%PDF"), testMeta)
	require.NoError(t, err)
	link, err := f.files.GenerateLink(ctx, p, file.ID, testMeta)
	require.NoError(t, err)

	f.clock.advance(f.files.cfg.LinkTTL)
	var c captured
	requireKind(t, f.files.Download(ctx, link.Token, testMeta, c.send), ErrInvalidOrExpiredLink)
	require.Nil(t, c.data)
}

func TestDownload_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	file, err := f.files.Upload(ctx, p, "a.pdf", "application/pdf", []byte("%PDF"), testMeta)
	require.NoError(t, err)
	link, err := f.files.GenerateLink(ctx, p, file.ID, testMeta)
	require.NoError(t, err)

	var wins, losses int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.files.Download(ctx, link.Token, testMeta, func(*models.StoredFile, []byte) error { return nil })
			if err == nil {
				atomic.AddInt32(&wins, 1)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidOrExpiredLink)
			atomic.AddInt32(&losses, 1)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins)
	require.EqualValues(t, 7, losses)
}

func TestDownload_TamperedBlobIsIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	file, err := f.files.Upload(ctx, p, "a.pdf", "application/pdf", []byte("%PDF-1.7 body"), testMeta)
	require.NoError(t, err)

	rc, err := f.blobs.Get(ctx, file.StorageName)
	require.NoError(t, err)
	var blob bytes.Buffer
	_, err = blob.ReadFrom(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	tampered := blob.Bytes()
	tampered[len(tampered)-1] ^= 0x01
	require.NoError(t, f.blobs.Save(ctx, file.StorageName, bytes.NewReader(tampered)))

	link, err := f.files.GenerateLink(ctx, p, file.ID, testMeta)
	require.NoError(t, err)

	var c captured
	svcErr := requireKind(t, f.files.Download(ctx, link.Token, testMeta, c.send), ErrIntegrity)
	require.Equal(t, KindIntegrity, svcErr.Kind)
	require.Nil(t, c.data)
	require.Equal(t, 1, countBlobs(t, f.blobDir))
}

func TestDownload_SendFailureKeepsFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	file, err := f.files.Upload(ctx, p, "a.pdf", "application/pdf", []byte("%PDF"), testMeta)
	require.NoError(t, err)
	link, err := f.files.GenerateLink(ctx, p, file.ID, testMeta)
	require.NoError(t, err)

	err = f.files.Download(ctx, link.Token, testMeta, func(*models.StoredFile, []byte) error {
		return errors.New("client went away")
	})
	requireKind(t, err, ErrInternal)

	files, err := f.files.List(ctx, p)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Nil(t, files[0].DownloadToken)
	require.Equal(t, 1, countBlobs(t, f.blobDir))
	require.Empty(t, f.publisher.events)
}

func TestDownload_MissingBlobRemovesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, testEmail)

	file, err := f.files.Upload(ctx, p, "a.pdf", "application/pdf", []byte("%PDF"), testMeta)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, file.StorageName))
	link, err := f.files.GenerateLink(ctx, p, file.ID, testMeta)
	require.NoError(t, err)

	var c captured
	requireKind(t, f.files.Download(ctx, link.Token, testMeta, c.send), ErrInternal)

	files, err := f.files.List(ctx, p)
	require.NoError(t, err)
	require.Empty(t, files)
}
