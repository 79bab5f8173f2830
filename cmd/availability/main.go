package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/delivery-availability/internal/application"
	"github.com/example/delivery-availability/internal/config"
	httptransport "github.com/example/delivery-availability/internal/http"
	"github.com/example/delivery-availability/internal/locker"
	"github.com/example/delivery-availability/internal/logging"
	"github.com/example/delivery-availability/internal/persistence"
	"github.com/example/delivery-availability/internal/persistence/memory"
	"github.com/example/delivery-availability/internal/persistence/postgres"
	"github.com/example/delivery-availability/internal/persistence/sqlite"
	"github.com/example/delivery-availability/internal/persistence/sqlite/migration"
	"github.com/example/delivery-availability/internal/retention"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Environment: cfg.Environment})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("availability service stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

// store bundles a repository with its health check and shutdown.
type store interface {
	persistence.AvailabilityRepository
	persistence.Pinger
	Close() error
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	repo, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			logger.Error("failed to close storage", zap.Error(cerr))
		}
	}()

	locks, closeLocks, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocks()

	service := application.NewAvailabilityServiceWithLogger(
		newScheduleRepositoryAdapter(repo),
		locks,
		uuid.NewString,
		time.Now,
		logger,
	).WithMaxRangeDays(cfg.MaxRangeDays)

	if cfg.RetentionCron != "" {
		worker := retention.NewWorker(service, locks, retention.Options{
			Spec:          cfg.RetentionCron,
			RetentionDays: cfg.RetentionDays,
		}, logger)
		worker.Start(ctx)
		defer worker.Stop()
		logger.Info("retention worker scheduled", zap.String("spec", cfg.RetentionCron), zap.Int("retention_days", cfg.RetentionDays))
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Availability:       httptransport.NewAvailabilityHandler(service, logger),
		Health:             repo,
		Logger:             logger,
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", zap.Error(err))
		}
	}()

	logger.Info("availability API listening", zap.String("addr", server.Addr), zap.String("storage", cfg.StorageDriver))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, error) {
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage; schedules are lost on restart")
		return memory.New(), nil
	case "sqlite":
		pool, err := sqlite.NewConnectionPool(migration.DefaultSQLiteConfig(cfg.SQLiteDSN), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := sqlite.Migrate(ctx, pool, logger); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqliteStore{AvailabilityRepository: sqlite.NewAvailabilityRepository(pool), pool: pool}, nil
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// sqliteStore closes the pool the repository was built on.
type sqliteStore struct {
	*sqlite.AvailabilityRepository
	pool *sqlite.ConnectionPool
}

func (s sqliteStore) Close() error {
	return s.pool.Close()
}

// lockProvider is what both the service and the retention worker need.
type lockProvider interface {
	application.UserLocker
	retention.LeaderLocker
}

func newLocker(ctx context.Context, cfg config.Config, logger *zap.Logger) (lockProvider, func(), error) {
	if cfg.RedisAddr == "" {
		return locker.NewLocal(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("using redis locker", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.LockTTL))

	locks := locker.NewRedis(client, locker.RedisOptions{Prefix: "availability:lock:", TTL: cfg.LockTTL}, logger)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return locks, closeFn, nil
}
