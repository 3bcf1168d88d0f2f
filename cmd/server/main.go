// @title           SecureSend API
// @version         1.0
// @description     Encrypted one-time file sharing with two-step login.
// @host            localhost
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"securesend/internal/api"
	"securesend/internal/config"
	"securesend/internal/database"
	"securesend/internal/notify"
	"securesend/internal/ratelimit"
	"securesend/internal/scanner"
	"securesend/internal/service"
	"securesend/internal/storage"
	"securesend/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	_ "securesend/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg)
	blobs := openBlobStorage(ctx, cfg)

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	server, err := api.NewServer(cfg, store, api.Collaborators{
		Blobs:   blobs,
		Mailer:  newMailer(cfg),
		Scanner: newScanner(cfg),
		Limiter: newLimiter(ctx, cfg),
		Hub:     wsHub,
	})
	if err != nil {
		log.Fatalf("Unable to initialize server: %v", err)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Signature"},
		ExposedHeaders:   []string{"Content-Disposition", "RateLimit-Remaining", "RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(api.MetricsMiddleware)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", server.Routes())

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("Starting SecureSend server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Unable to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	if closer, ok := store.(interface{ Close() }); ok {
		closer.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config) service.Store {
	if cfg.DB.Source == "" {
		log.Warn("db.source is empty, using the in-memory store; data is lost on restart")
		return database.NewMemoryStore()
	}
	store, err := database.Connect(ctx, cfg.DB.Source)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	log.Info("Connected to database, migrations applied")
	return store
}

func openBlobStorage(ctx context.Context, cfg *config.Config) storage.BlobStorage {
	if cfg.Storage.Backend == "s3" {
		s3Storage, err := storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:    cfg.Storage.S3.Bucket,
			Region:    cfg.Storage.S3.Region,
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Prefix:    cfg.Storage.S3.Prefix,
		})
		if err != nil {
			log.Fatalf("Unable to initialize S3 storage: %v", err)
		}
		log.WithField("bucket", cfg.Storage.S3.Bucket).Info("Encrypted files will be stored in S3")
		return s3Storage
	}

	localStorage, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Unable to initialize local storage: %v", err)
	}
	log.WithField("path", cfg.Storage.Path).Info("Encrypted files will be stored on disk")
	return localStorage
}

func newMailer(cfg *config.Config) service.Mailer {
	if cfg.SMTP.Host == "" {
		log.Warn("smtp.host is empty, one-time codes are only written to the log")
		return notify.LogSender{}
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

func newScanner(cfg *config.Config) service.Scanner {
	if cfg.Scanner.Disabled {
		log.Warn("scanner.disabled is set, uploads are accepted without malware scanning")
		return &scanner.Disabled{}
	}
	return scanner.NewHTTPScanner(cfg.Scanner.URL, cfg.Scanner.APIKey, cfg.Scanner.Timeout)
}

func newLimiter(ctx context.Context, cfg *config.Config) ratelimit.Limiter {
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryLimiter()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unreachable at startup, rate limiting will fail open until it recovers")
	}
	return ratelimit.NewRedisLimiter(client, "securesend:ratelimit")
}
