package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/concurhq/consent-exchange/internal/api"
	"github.com/concurhq/consent-exchange/internal/config"
	"github.com/concurhq/consent-exchange/internal/domain"
	"github.com/concurhq/consent-exchange/internal/engine"
	"github.com/concurhq/consent-exchange/internal/reconcile"
	"github.com/concurhq/consent-exchange/internal/signature"
	"github.com/concurhq/consent-exchange/internal/store"
	"github.com/concurhq/consent-exchange/internal/transport"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Mongo is mandatory; an unreachable store at startup is fatal.
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	mongoStore, err := store.NewMongo(connectCtx, cfg.MongoURI, cfg.DBName)
	cancel()
	if err != nil {
		logger.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoStore.Close(closeCtx)
	}()
	logger.Info("connected to MongoDB", "db", cfg.DBName)

	// Redis is optional: without it the rate limiter and peer health
	// tracker are simply disabled.
	var rateLimiter *engine.RateLimiter
	var peerHealth *engine.PeerHealth
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		rateLimiter = engine.NewRateLimiter(redisClient, logger)
		peerHealth = engine.NewPeerHealth(redisClient, logger)
		logger.Info("connected to Redis")
	}

	signer := signature.New(cfg.Secrets())

	targets := map[domain.AckKind]string{
		domain.KindConsentAck:      cfg.CMSAckURL,
		domain.KindVerificationAck: cfg.VerificationAckURL,
		domain.KindErasureAck:      cfg.ErasureAckURL,
	}

	ackClient := transport.NewAckClient(signer, "CMP_WEBHOOK_SECRET", logger)
	reconciler := reconcile.New(mongoStore, ackClient, targets, logger, cfg.ReconcileInterval, cfg.AckFanout)
	if peerHealth != nil {
		reconciler.WithHealth(peerHealth)
	}
	go reconciler.Run(ctx)

	router := api.NewRouter(api.RouterDeps{
		Webhooks:    api.NewWebhookHandler(mongoStore, signer, logger),
		Health:      api.HealthHandler(cfg.ServiceName, targets, peerHealth),
		RateLimiter: rateLimiter,
		RateLimit:   cfg.RateLimitPerSecond,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	// In-flight ACK sends get up to their transport timeout to drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
