package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"financas.org/internal/audit"
	"financas.org/internal/auth"
	"financas.org/internal/httpapi"
	"financas.org/internal/obs"
)

var (
	version = "1.0.0"
	commit  = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	obs.InitLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("FINANCAS_PG_DSN")
	if dsn == "" {
		logger.Fatal("missing FINANCAS_PG_DSN")
	}
	secret := os.Getenv("FINANCAS_AUTH_SECRET")
	if secret == "" {
		logger.Fatal("missing FINANCAS_AUTH_SECRET")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	tokens, err := auth.NewTokenService(secret,
		auth.WithAccessTokenTTL(durationEnv("FINANCAS_ACCESS_TTL", 24*time.Hour)),
		auth.WithRefreshTokenTTL(durationEnv("FINANCAS_REFRESH_TTL", 7*24*time.Hour)),
	)
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}

	store := auth.NewPGStore(db)
	svc, err := auth.NewService(store, tokens)
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}
	recorder := audit.NewRecorder(store.Audit(context.Background()), logger)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, store, recorder)

	addr := os.Getenv("FINANCAS_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting financas-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
	)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go retentionSweeper(sweepCtx, store, logger)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	logger.Info("stopped")
}

// retentionSweeper purges expired refresh tokens and aged audit rows on a
// low-priority cadence. Token and lock validity are always decided by
// wall-clock comparison at use time; nothing depends on this running.
func retentionSweeper(ctx context.Context, store auth.Store, logger *zap.Logger) {
	interval := durationEnv("FINANCAS_RETENTION_INTERVAL", time.Hour)
	auditKeep := durationEnv("FINANCAS_AUDIT_RETENTION", 90*24*time.Hour)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		now := time.Now().UTC()
		if n, err := store.RefreshTokens(ctx).PurgeExpired(ctx, now); err != nil {
			logger.Warn("refresh token purge failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("purged refresh tokens", zap.Int64("rows", n))
		}
		if n, err := store.Audit(ctx).PurgeOlderThan(ctx, now.Add(-auditKeep)); err != nil {
			logger.Warn("audit purge failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("purged audit rows", zap.Int64("rows", n))
		}
	}
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
