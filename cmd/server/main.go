package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/signup-portal/internal/api"
	"github.com/ignite/signup-portal/internal/cache"
	"github.com/ignite/signup-portal/internal/config"
	"github.com/ignite/signup-portal/internal/media"
	"github.com/ignite/signup-portal/internal/monitoring"
	"github.com/ignite/signup-portal/internal/notify"
	"github.com/ignite/signup-portal/internal/pkg/logger"
)

func fatal(msg string, fields ...any) {
	logger.Error(msg, fields...)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal("failed to load config", "path", *configPath, "error", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedact(cfg.Log.RedactEnabled())

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", "error", err)
	}

	// Error monitoring: Sentry when a DSN is configured, structured logs otherwise.
	var sentrySink *monitoring.SentrySink
	if cfg.Monitoring.DSN != "" {
		sentrySink, err = monitoring.NewSentrySink(cfg.Monitoring)
		if err != nil {
			fatal("failed to initialize sentry", "error", err)
		}
		monitoring.SetSink(sentrySink)
		logger.Info("error monitoring enabled", "environment", cfg.Monitoring.Environment)
	} else {
		monitoring.SetSink(monitoring.LogSink{})
		logger.Warn("SENTRY_DSN not set, exceptions are only logged")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := cache.NewRedisClient(cfg.Cache.RedisURL)
	if err != nil {
		fatal("invalid redis url", "error", err)
	}
	defer redisClient.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed, cache invalidation will error until it recovers", "error", err)
	}
	pingCancel()
	tagStore := cache.NewTagStore(redisClient, cfg.Cache.KeyPrefix, cfg.Cache.DefaultTTL())

	// The notification client is built exactly once and shared for the
	// life of the process.
	notifier, err := notify.NewClientFromConfig(cfg.Notification)
	if err != nil {
		fatal("failed to create notification client", "error", err)
	}

	var images api.ImageStore
	if cfg.Storage.Enabled() {
		uploader, err := media.NewS3Uploader(ctx, cfg.Storage)
		if err != nil {
			fatal("failed to initialize image storage", "error", err)
		}
		images = uploader
		logger.Info("image storage ready", "bucket", cfg.Storage.S3Bucket, "cdn", cfg.Storage.CDNDomain)
	} else {
		logger.Warn("IMAGE_S3_BUCKET not set, image uploads disabled")
	}

	handlers := api.NewHandlers(tagStore, notifier, images)
	handlers.AddHealthCheck("cache", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.CaptureException(err)
			fatal("server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if sentrySink != nil && !sentrySink.Flush() {
		logger.Warn("sentry flush timed out")
	}
	logger.Info("server stopped")
}
