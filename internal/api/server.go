package api

import (
	"fmt"
	"net/http"
	"time"

	"securesend/internal/auth"
	"securesend/internal/config"
	"securesend/internal/filecrypt"
	"securesend/internal/ratelimit"
	"securesend/internal/service"
	"securesend/internal/storage"
	"securesend/internal/websocket"

	"github.com/go-chi/chi/v5"
	gorilla "github.com/gorilla/websocket"
)

// multipartOverhead is the slack allowed on top of the largest tier limit
// for multipart boundaries and headers.
const multipartOverhead = 1 << 20

type Server struct {
	config   *config.Config
	store    service.Store
	auth     *service.AuthService
	files    *service.FileService
	payments *service.PaymentService
	activity *service.ActivityService
	limiter  ratelimit.Limiter
	wsHub    *websocket.Hub
	upgrader *gorilla.Upgrader
	now      func() time.Time
}

// Collaborators are the outside systems the server talks to.
type Collaborators struct {
	Blobs   storage.BlobStorage
	Mailer  service.Mailer
	Scanner service.Scanner
	Limiter ratelimit.Limiter
	Hub     *websocket.Hub
}

func NewServer(cfg *config.Config, store service.Store, c Collaborators) (*Server, error) {
	key, err := cfg.FileKey()
	if err != nil {
		return nil, err
	}
	cipher, err := filecrypt.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file cipher: %w", err)
	}

	tiers := service.TierLimits{
		User:  cfg.Tiers.UserLimitBytes,
		Pro:   cfg.Tiers.ProLimitBytes,
		Admin: cfg.Tiers.AdminLimitBytes,
	}

	authService := service.NewAuthService(store, store, store, c.Mailer, service.AuthConfig{
		JWTSecret:     cfg.JWT.Secret,
		SessionTTL:    cfg.JWT.Expiry,
		OTPTTL:        cfg.Auth.OTPTTL,
		HistoryWindow: cfg.Password.HistoryWindow,
		HistoryCap:    cfg.Password.HistoryCap,
		Lockout: auth.LockoutPolicy{
			MaxAttempts:     cfg.Auth.MaxAttempts,
			LockoutDuration: cfg.Auth.LockoutDuration,
		},
		Password: auth.PasswordPolicy{
			MinLength: cfg.Password.MinLength,
			MaxLength: cfg.Password.MaxLength,
			MinScore:  cfg.Password.MinScore,
			Scorer:    auth.ZxcvbnScorer{},
		},
		Tiers: tiers,
	})

	var publisher service.EventPublisher
	if c.Hub != nil {
		publisher = c.Hub
	}
	fileService, err := service.NewFileService(store, store, store, c.Blobs, cipher, c.Scanner, publisher, service.FileConfig{
		LinkTTL: cfg.Links.TTL,
		Tiers:   tiers,
	})
	if err != nil {
		return nil, err
	}

	paymentService, err := service.NewPaymentService(store, store, service.PaymentConfig{
		WebhookSecret: cfg.Payments.WebhookSecret,
		ProDuration:   cfg.Tiers.ProDuration,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		config:   cfg,
		store:    store,
		auth:     authService,
		files:    fileService,
		payments: paymentService,
		activity: service.NewActivityService(store),
		limiter:  c.Limiter,
		wsHub:    c.Hub,
		upgrader: websocket.NewUpgrader(cfg.HTTP.AllowedOrigins),
		now:      time.Now,
	}, nil
}

// Routes mounts the JSON API under /api/v1 plus /health and /ws.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.HealthCheckHandler)
	r.Get("/ws", s.ServeWsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(s.RateLimitMiddleware)
			r.Post("/register", s.RegisterHandler)
			r.Post("/login", s.LoginHandler)
			r.Post("/verify-otp", s.VerifyOtpHandler)
			r.Post("/forgot-password", s.ForgotPasswordHandler)
			r.Post("/reset-password", s.ResetPasswordHandler)
			r.Post("/logout", s.LogoutHandler)
			r.With(s.AuthMiddleware).Get("/me", s.GetCurrentUserHandler)
		})

		r.Get("/files/download/{token}", s.DownloadFileHandler)
		r.Post("/payment/webhook", s.PaymentWebhookHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)

			r.Get("/files", s.ListFilesHandler)
			r.Post("/files/upload", s.UploadFileHandler)
			r.Post("/files/{fileId}/link", s.GenerateLinkHandler)

			r.Post("/user/change-password", s.ChangePasswordHandler)
			r.Get("/user/activity", s.ListActivityHandler)

			r.Get("/sessions", s.ListSessionsHandler)
			r.Delete("/sessions/{sessionId}", s.DeleteSessionHandler)
			r.Post("/sessions/terminate_all", s.TerminateAllSessionsHandler)

			r.Post("/payment/simulate-upgrade", s.SimulateUpgradeHandler)
			r.Get("/payment/transactions", s.ListTransactionsHandler)
		})
	})

	return r
}

// maxUploadBytes bounds the request body before the tier check runs.
func (s *Server) maxUploadBytes() int64 {
	limit := s.config.Tiers.AdminLimitBytes
	if s.config.Tiers.ProLimitBytes > limit {
		limit = s.config.Tiers.ProLimitBytes
	}
	if s.config.Tiers.UserLimitBytes > limit {
		limit = s.config.Tiers.UserLimitBytes
	}
	return limit + multipartOverhead
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /health [get]
func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
