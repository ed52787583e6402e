package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	postgresadapter "github.com/ericfisherdev/certregistry/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/certregistry/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/certregistry/internal/adapter/driving/http"
	"github.com/ericfisherdev/certregistry/internal/application"
	"github.com/ericfisherdev/certregistry/internal/config"
	"github.com/ericfisherdev/certregistry/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// stores bundles the driven ports of whichever database backend is configured.
type stores struct {
	certificates driven.CertificateStore
	credentials  driven.CredentialStore
	close        func() error
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"postgres", cfg.UsesPostgres(),
		"timestamp_window", cfg.TimestampWindow,
		"max_attempts", cfg.MaxAttempts,
		"lock_duration", cfg.LockDuration,
		"password_hash", cfg.PasswordHash,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the database and run migrations.
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Wire application services.
	hasher, err := application.NewPasswordHasher(cfg.PasswordHash)
	if err != nil {
		return err
	}

	guard, err := application.NewLockoutGuard(st.credentials, hasher, application.LockoutPolicy{
		MaxAttempts:   cfg.MaxAttempts,
		LockDuration:  cfg.LockDuration,
		DefaultSecret: cfg.DefaultAppSecret,
	}, slog.Default())
	if err != nil {
		return err
	}

	verifier := application.NewSignatureVerifier(cfg.APIKey, cfg.HMACSecret, cfg.TimestampWindow)
	certSvc := application.NewCertificateService(st.certificates, slog.Default())

	// 5. Create HTTP handler with middleware.
	apiHandler := httphandler.NewHandler(
		certSvc,
		guard,
		verifier,
		httphandler.NewRateLimiter(cfg.LookupRatePerMinute, cfg.LookupBurst, cfg.TrustProxy),
		httphandler.NewMetrics(),
		cfg.CORSOrigins,
		slog.Default(),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
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

	slog.Info("certregistry started", "listen_addr", cfg.ListenAddr)

	// 6. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 7. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// openStores connects to PostgreSQL when a database URL is configured and to
// the embedded SQLite file otherwise, applying migrations either way.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.UsesPostgres() {
		db, err := postgresadapter.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		version, err := postgresadapter.RunMigrations(db.Pool)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		slog.Info("postgres ready", "schema_version", version)
		return &stores{
			certificates: postgresadapter.NewCertificateRepo(db),
			credentials:  postgresadapter.NewCredentialRepo(db),
			close:        db.Close,
		}, nil
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("sqlite ready", "path", cfg.DBPath, "schema_version", version)
	return &stores{
		certificates: sqliteadapter.NewCertificateRepo(db),
		credentials:  sqliteadapter.NewCredentialRepo(db),
		close:        db.Close,
	}, nil
}
