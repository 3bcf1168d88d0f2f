package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"securesend/internal/auth"
	"securesend/internal/database"
	"securesend/internal/filecrypt"
	"securesend/internal/models"
	"securesend/internal/scanner"
	"securesend/internal/storage"

	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "a@x.com"
	testPassword = "Str0ng!Pass99"
)

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMailer) lastCode(t *testing.T) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail was sent")
	code := otpPattern.FindString(m.sent[len(m.sent)-1].Body)
	require.NotEmpty(t, code, "mail carries no code")
	return code
}

type fakeScanner struct {
	verdict scanner.Verdict
	err     error
	calls   int
}

func (s *fakeScanner) Scan(ctx context.Context, name string, data []byte) (scanner.Verdict, error) {
	s.calls++
	if s.err != nil {
		return scanner.Verdict{}, s.err
	}
	return s.verdict, nil
}

type publishedEvent struct {
	AccountID int64
	EventType string
	Payload   interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(accountID int64, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{AccountID: accountID, EventType: eventType, Payload: payload})
}

type fixedScorer struct{ score int }

func (s fixedScorer) Score(password string, userInputs ...string) auth.Strength {
	return auth.Strength{Score: s.score, Suggestions: []string{"Add another word or two."}}
}

type failingActivity struct{}

func (failingActivity) LogActivity(ctx context.Context, arg database.LogActivityParams) error {
	return errors.New("activity sink down")
}

func (failingActivity) ListActivity(ctx context.Context, accountID int64, limit int) ([]models.ActivityRecord, error) {
	return nil, errors.New("activity sink down")
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store     *database.MemoryStore
	mailer    *fakeMailer
	scanner   *fakeScanner
	publisher *fakePublisher
	blobs     *storage.LocalStorage
	blobDir   string
	clock     *testClock

	auth     *AuthService
	files    *FileService
	payments *PaymentService
	activity *ActivityService
}

var testTiers = TierLimits{User: 2_500_000, Pro: 5_000_000, Admin: 50_000_000}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:     database.NewMemoryStore(),
		mailer:    &fakeMailer{},
		scanner:   &fakeScanner{verdict: scanner.Verdict{Clean: true}},
		publisher: &fakePublisher{},
		blobDir:   t.TempDir(),
		clock:     &testClock{t: time.Now().UTC()},
	}

	var err error
	f.blobs, err = storage.NewLocalStorage(f.blobDir)
	require.NoError(t, err)

	f.auth = NewAuthService(f.store, f.store, f.store, f.mailer, AuthConfig{
		JWTSecret:     "test-secret",
		SessionTTL:    30 * time.Minute,
		OTPTTL:        10 * time.Minute,
		HistoryWindow: 5,
		HistoryCap:    20,
		Lockout:       auth.LockoutPolicy{MaxAttempts: 3, LockoutDuration: 2 * time.Minute},
		Password:      auth.PasswordPolicy{MinLength: 12, MaxLength: 72, MinScore: 3, Scorer: fixedScorer{score: 4}},
		Tiers:         testTiers,
	})
	f.auth.now = f.clock.now

	key := make([]byte, filecrypt.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := filecrypt.New(key)
	require.NoError(t, err)

	f.files, err = NewFileService(f.store, f.store, f.store, f.blobs, cipher, f.scanner, f.publisher, FileConfig{
		LinkTTL: 24 * time.Hour,
		Tiers:   testTiers,
	})
	require.NoError(t, err)
	f.files.now = f.clock.now

	f.payments, err = NewPaymentService(f.store, f.store, PaymentConfig{
		WebhookSecret: "whsec",
		ProDuration:   30 * 24 * time.Hour,
	})
	require.NoError(t, err)
	f.payments.now = f.clock.now

	f.activity = NewActivityService(f.store)
	return f
}

var testMeta = RequestMeta{IP: "198.51.100.10", UserAgent: "go-test"}

// register creates an account and returns the principal of its first session.
func (f *fixture) register(t *testing.T, email string) *Principal {
	t.Helper()
	issued, err := f.auth.Register(context.Background(), email, testPassword, testMeta)
	require.NoError(t, err)
	p, err := f.auth.Authenticate(context.Background(), issued.Token)
	require.NoError(t, err)
	return p
}

// login runs both login steps with the correct password.
func (f *fixture) login(t *testing.T, email, password string) *IssuedSession {
	t.Helper()
	ctx := context.Background()
	_, err := f.auth.LoginStep1(ctx, email, password, testMeta)
	require.NoError(t, err)
	issued, err := f.auth.VerifyOtp(ctx, email, f.mailer.lastCode(t), testMeta)
	require.NoError(t, err)
	return issued
}

func requireKind(t *testing.T, err error, sentinel *Error) *Error {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	return svcErr
}
