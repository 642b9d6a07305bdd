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

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/UkralStul/watchedit/internal/auth"
	"github.com/UkralStul/watchedit/internal/config"
	"github.com/UkralStul/watchedit/internal/db"
	"github.com/UkralStul/watchedit/internal/events"
	"github.com/UkralStul/watchedit/internal/httpapi"
	"github.com/UkralStul/watchedit/internal/moviedata"
	"github.com/UkralStul/watchedit/internal/movieapi"
	"github.com/UkralStul/watchedit/internal/postdata"
	"github.com/UkralStul/watchedit/internal/storage"
	"github.com/UkralStul/watchedit/internal/storage/gormstore"
	"github.com/UkralStul/watchedit/internal/storage/inmemory"
	"github.com/UkralStul/watchedit/internal/userdata"
)

const (
	shutdownTimeout   = 5 * time.Second
	limiterCleanup    = time.Minute
	limiterIdleExpiry = 3 * time.Minute
	hubBuffer         = 16
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "watchedit",
		Short:         "Movie review web application",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindEnv(v); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				log.Error().Err(err).Msg("invalid configuration")
				return err
			}
			setupLogger(cfg.Log)
			if err := run(cmd.Context(), cfg); err != nil {
				log.Error().Err(err).Msg("server stopped with error")
				return err
			}
			return nil
		},
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("failed to load .env")
	}
	config.SetDefaults(v)
	if err := config.RegisterFlags(v, cmd.Flags()); err != nil {
		log.Fatal().Err(err).Msg("failed to register flags")
	}
	return cmd
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, closeStore, health, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Seed {
		if err := seed(ctx, store, auth.NewHasher(cfg.BcryptCost)); err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
	}

	revocations, closeRedis := openRevocations(cfg)
	defer closeRedis()

	hub := events.NewHub(hubBuffer)
	publisher := events.Multi{hub}
	if cfg.Kafka.Brokers != "" {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := kp.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close kafka writer")
			}
		}()
		publisher = append(publisher, kp)
		log.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing events to kafka")
	}

	movies := movieapi.New(movieapi.Options{
		BaseURL: cfg.MovieAPI.BaseURL,
		Key:     cfg.MovieAPI.Key,
		Timeout: cfg.MovieAPI.Timeout,
	})
	if cfg.MovieAPI.Key == "" {
		log.Warn().Msg("movie api key is empty, movie pages will use the fallback movie")
	}

	limiter := httpapi.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	router, err := httpapi.NewRouter(httpapi.Deps{
		Store:       store,
		Users:       userdata.New(store, cfg.QueryTimeout),
		Posts:       postdata.New(store, publisher, cfg.QueryTimeout),
		Movies:      moviedata.New(movies, store, cfg.QueryTimeout),
		Auth:        auth.NewService(store, auth.NewHasher(cfg.BcryptCost), publisher, cfg.QueryTimeout),
		Sessions:    auth.NewSessions(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.SecureCookie, revocations),
		Hub:         hub,
		RateLimiter: limiter,
		StaticDir:   cfg.StaticDir,
		HealthCheck: health,
	})
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go cleanupLimiter(ctx, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.Storage).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

// openStore выбирает хранилище. Для sql возвращает функцию закрытия пула и проверку соединения.
func openStore(cfg *config.Config) (storage.Storage, func(), func(context.Context) error, error) {
	if cfg.Storage == config.StorageInMemory {
		log.Info().Msg("using in-memory storage")
		return inmemory.New(), func() {}, nil, nil
	}

	gdb, err := db.Open(cfg.DatabaseURL, db.Options{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		Debug:           cfg.Log.Level == "debug",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	store, err := gormstore.New(gdb)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := sqlDB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
	return store, closeFn, sqlDB.PingContext, nil
}

func openRevocations(cfg *config.Config) (auth.RevocationStore, func()) {
	if cfg.RedisAddr == "" {
		return auth.NewMemoryRevocations(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.Info().Str("addr", cfg.RedisAddr).Msg("storing revoked sessions in redis")
	return auth.NewRedisRevocations(rdb), func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}

func cleanupLimiter(ctx context.Context, limiter *httpapi.IPRateLimiter) {
	ticker := time.NewTicker(limiterCleanup)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Cleanup(limiterIdleExpiry); n > 0 {
				log.Debug().Int("removed", n).Msg("rate limiter cleanup")
			}
		}
	}
}
