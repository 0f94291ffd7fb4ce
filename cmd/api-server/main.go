package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-slot-ledger/internal/api"
	"github.com/hackgods/clinic-slot-ledger/internal/appointment"
	"github.com/hackgods/clinic-slot-ledger/internal/config"
	"github.com/hackgods/clinic-slot-ledger/internal/db"
	redisclient "github.com/hackgods/clinic-slot-ledger/internal/redis"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "api-server",
		Short: "Clinic slot ledger API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			autoMigrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(autoMigrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger, 0)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			logger.Info().Strs("applied", applied).Msgf("applied %d migration(s)", len(applied))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List embedded migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations, err := db.LoadMigrations()
			if err != nil {
				return err
			}
			for _, m := range migrations {
				fmt.Printf("%-6d %s\n", m.Version, m.Name)
			}
			return nil
		},
	})

	return cmd
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}

func runServer(autoMigrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load error: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("lock_backend", cfg.LockBackend).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger, cfg.SlowQuery)
	cancelPg()
	if err != nil {
		return fmt.Errorf("postgres connection error: %w", err)
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	if autoMigrate {
		applied, err := db.Migrate(rootCtx, pgPool)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Strs("applied", applied).Msg("migrations up to date")
	}

	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connection error: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Msg("connected to Redis")
		locker = redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait)
	default:
		logger.Warn().Msg("using in-process day locks; run a single replica")
		locker = redisclient.NewLocalDayLocker(cfg.LockWait)
	}

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		appointment.NewPgDirectory(pgPool),
		locker,
		cfg,
		logger,
	)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Metrics: api.NewMetrics(),
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-rootCtx.Done():
	}

	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info().Msg("api-server stopped")
	return nil
}
