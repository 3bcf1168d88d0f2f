package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"securesend/internal/config"
	"securesend/internal/database"
	"securesend/internal/ratelimit"
	"securesend/internal/scanner"
	"securesend/internal/storage"
	"securesend/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const (
	testFileKey  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testEmail    = "api@x.com"
	testPassword = "kV9&mQ2$wX7!pL4z"
)

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

type captureMailer struct {
	mu   sync.Mutex
	last string
	sent int
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = body
	m.sent++
	return nil
}

func (m *captureMailer) code(t *testing.T) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := otpPattern.FindString(m.last)
	require.NotEmpty(t, code)
	return code
}

type staticScanner struct {
	verdict scanner.Verdict
}

func (s *staticScanner) Scan(ctx context.Context, name string, data []byte) (scanner.Verdict, error) {
	return s.verdict, nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *database.MemoryStore
	mailer  *captureMailer
	scanner *staticScanner
	hub     *websocket.Hub
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP:   config.HTTPConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:    config.JWTConfig{Secret: "api_test_secret", Expiry: 30 * time.Minute},
		Crypto: config.CryptoConfig{FileKey: testFileKey},
		Auth: config.AuthConfig{
			MaxAttempts:     3,
			LockoutDuration: 2 * time.Minute,
			OTPTTL:          10 * time.Minute,
		},
		Password: config.PasswordConfig{
			MinLength:     12,
			MaxLength:     72,
			MinScore:      3,
			HistoryWindow: 5,
			HistoryCap:    20,
		},
		Tiers: config.TiersConfig{
			UserLimitBytes:  2_500_000,
			ProLimitBytes:   5_000_000,
			AdminLimitBytes: 50_000_000,
			ProDuration:     30 * 24 * time.Hour,
		},
		Links:     config.LinksConfig{TTL: 24 * time.Hour},
		RateLimit: config.RateLimitConfig{AuthLimit: 1000, AuthWindow: 15 * time.Minute},
		Payments:  config.PaymentsConfig{WebhookSecret: "whsec_test"},
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub()
	go hub.Run(ctx)

	env := &testEnv{
		store:   database.NewMemoryStore(),
		mailer:  &captureMailer{},
		scanner: &staticScanner{verdict: scanner.Verdict{Clean: true}},
		hub:     hub,
	}
	env.server, err = NewServer(cfg, env.store, Collaborators{
		Blobs:   blobs,
		Mailer:  env.mailer,
		Scanner: env.scanner,
		Limiter: ratelimit.NewMemoryLimiter(),
		Hub:     hub,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Mount("/", env.server.Routes())
	env.handler = r
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}
