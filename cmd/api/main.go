package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/transfer-service/internal/auth"
	"github.com/ledgerline/transfer-service/internal/config"
	"github.com/ledgerline/transfer-service/internal/handler"
	"github.com/ledgerline/transfer-service/internal/logging"
	"github.com/ledgerline/transfer-service/internal/middleware"
	"github.com/ledgerline/transfer-service/internal/migrations"
	"github.com/ledgerline/transfer-service/internal/repository"
	"github.com/ledgerline/transfer-service/internal/service"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

const idempotencySweepEvery = time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(serviceName, cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	db, err := repository.NewPostgresDB(connectCtx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, time.Second)
	cancel()
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		applied, err := migrations.Up(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("migrations checked", "applied", applied)
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiry)
	accounts := repository.NewAccountRepository(db)
	transactions := repository.NewTransactionRepository(db)
	entries := repository.NewLedgerRepository(db)

	engine := ledger.NewEngine(
		repository.NewUnitOfWork(db),
		transactions,
		ledger.WithListLimits(cfg.ListDefaultLimit, cfg.ListMaxLimit),
	)

	health := handler.NewHealthHandler(db)

	idempotent, closeStore, err := idempotencyMiddleware(ctx, cfg, db, health)
	if err != nil {
		return err
	}
	defer closeStore()

	h := handlers{
		auth:         handler.NewAuthHandler(service.NewIdentityService(accounts, cfg.BcryptCost), tokens),
		accounts:     handler.NewAccountHandler(service.NewAccountService(accounts, entries, cfg.ListDefaultLimit, cfg.ListMaxLimit)),
		transactions: handler.NewTransactionHandler(engine),
		health:       health,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(h, middleware.Auth(tokens), idempotent),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// idempotencyMiddleware picks the response cache. Redis is used when
// REDIS_URL is set; otherwise entries live in Postgres and expired rows are
// swept periodically.
func idempotencyMiddleware(ctx context.Context, cfg *config.Config, db *sql.DB, health *handler.HealthHandler) (func(http.Handler) http.Handler, func(), error) {
	if cfg.RedisURL == "" {
		repo := repository.NewIdempotencyRepository(db)
		go sweepIdempotency(ctx, repo, idempotencySweepEvery)
		return middleware.Idempotency(repo), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	store := repository.NewRedisIdempotencyStore(client)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	health.WithCheck("redis", store.Ping)
	slog.Info("idempotency cache using redis", "addr", opts.Addr)

	return middleware.Idempotency(store), func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}, nil
}

func sweepIdempotency(ctx context.Context, repo *repository.IdempotencyRepository, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Warn("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("idempotency entries expired", "removed", n)
			}
		}
	}
}
