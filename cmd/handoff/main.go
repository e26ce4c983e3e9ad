package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/handoff/internal/adapter/driven/identity"
	"github.com/ericfisherdev/handoff/internal/adapter/driven/notify"
	sqliteadapter "github.com/ericfisherdev/handoff/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/handoff/internal/adapter/driving/http"
	"github.com/ericfisherdev/handoff/internal/application"
	"github.com/ericfisherdev/handoff/internal/config"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
	"github.com/ericfisherdev/handoff/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"outbox_interval", cfg.OutboxInterval,
		"identity_webhook", cfg.IdentityWebhookEnabled(),
		"notify_webhook", cfg.NotifyWebhookURL != "",
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	reads := driven.Stores{
		Listings:    sqliteadapter.NewListingRepo(db),
		Credentials: sqliteadapter.NewCredentialRepo(db, cfg.SecretKey),
		Outbox:      sqliteadapter.NewOutboxRepo(db),
		Orders:      sqliteadapter.NewOrderRepo(db),
		Users:       sqliteadapter.NewUserRepo(db),
	}
	tx := sqliteadapter.NewTransactor(db, cfg.SecretKey)
	verifier := identity.NewJWTVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	reg := metrics.New()

	var channel driven.NotificationChannel
	if cfg.NotifyWebhookURL != "" {
		channel = notify.NewWebhookChannel(cfg.NotifyWebhookURL, nil)
	} else {
		slog.Info("no notification webhook configured, notifications will be logged")
		channel = notify.NewLogChannel(slog.Default())
	}

	// 6. Create and start the outbox worker.
	outboxSvc := application.NewOutboxService(reads, channel, application.OutboxConfig{
		Interval:    cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		Lease:       cfg.OutboxLease,
	}, reg)
	var workers sync.WaitGroup
	workers.Go(func() { outboxSvc.Start(ctx) })

	// 7. Create application services.
	services := httphandler.Services{
		Listings:  application.NewListingService(tx, reads.Listings, reads.Users, reg, cfg.FreeListingLimit),
		Lifecycle: application.NewLifecycleService(tx, reg, outboxSvc),
		Orders:    application.NewOrderService(tx, reads, reg),
		Outbox:    outboxSvc,
		UserSync:  application.NewUserSyncService(tx),
	}

	// 8. Create HTTP handler and register routes.
	apiHandler := httphandler.NewHandler(services, verifier, reads.Users, cfg.WebhookSecret, slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, apiHandler)
	mux.Handle("GET /metrics", reg.Handler())

	// Apply middleware.
	handler := httphandler.ApplyMiddleware(mux, slog.Default(), reg)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("handoff started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// The worker must finish recording outcomes before the database closes.
	workers.Wait()

	slog.Info("shutdown complete")
	return nil
}
