package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"deskline/internal/api"
	"deskline/internal/cache"
	"deskline/internal/config"
	"deskline/internal/connectivity"
	"deskline/internal/events"
	"deskline/internal/gateway"
	"deskline/internal/kvstore"
	"deskline/internal/logging"
	"deskline/internal/metrics"
	"deskline/internal/queue"
	"deskline/internal/service"
	"deskline/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareStorageDir(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := kvstore.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer kv.Close()
	logger.Info().Str("driver", cfg.Storage.Driver).Str("path", cfg.Storage.Path).Msg("Local store opened")

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	cacheStore := cache.New(kv, &logger)
	outbox := queue.NewOutbox(kv, &logger)
	deadLetters := queue.NewDeadLetters(redisClient, kv, &logger)

	gw := gateway.NewHTTP(cfg.Gateway.BaseURL, gateway.StaticToken(cfg.Gateway.Token), cfg.Gateway.Timeout(), &logger)

	bus := events.NewBus()
	metrics.Register()

	orch := worker.NewOrchestrator(outbox, cacheStore, gw, deadLetters, bus, worker.Options{
		MaxAttempts:  cfg.Sync.MaxAttempts,
		TriggerRate:  rate.Limit(cfg.Sync.TriggerRPS),
		TriggerBurst: cfg.Sync.TriggerBurst,
	}, &logger)

	probe := connectivity.NewProbeProvider(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval(), &logger)
	monitor := connectivity.NewMonitor(probe, bus, &logger)
	monitor.OnOnline(func() {
		go orch.Trigger(ctx)
	})
	monitor.Start()
	defer monitor.Stop()
	go probe.Start(ctx)

	offline := service.NewOffline(cacheStore, outbox, deadLetters, monitor, orch, gw, &logger)

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, offline, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	logger.Info().Msg("deskline started")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "desklined").Logger()

	return cfg, logger, closer, nil
}

func prepareStorageDir(cfg *config.Config) error {
	if cfg.Storage.Path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755)
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("Redis unavailable, dead letters fall back to local store")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("Redis connected")
	}
	return client
}
