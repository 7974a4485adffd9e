package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"calorieai/internal/config"
	"calorieai/internal/events"
	"calorieai/internal/gateway"
	"calorieai/internal/ratelimit"
	"calorieai/internal/server"
	"calorieai/internal/session"
	"calorieai/internal/util"
	"calorieai/pkg/storage"
	"calorieai/pkg/vision"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var gw gateway.Gateway
	if cfg.DatabaseURL != "" {
		gw, err = gateway.NewGormGateway(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init database: %v", err)
		}
	} else {
		slog.Warn("no databaseURL configured, using in-memory storage")
		gw = gateway.NewMemoryGateway()
	}

	sessions, err := session.New(cfg.SessionSecret, cfg.SessionTTLDuration(), cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}
	defer sessions.Close()

	srvCfg := server.Config{
		Gateway:   gw,
		Sessions:  sessions,
		Vision:    vision.New(cfg.VisionBaseURL, cfg.VisionAPIKey, cfg.VisionModel),
		APIKeyDir: cfg.APIKeyDir,
	}

	if cfg.AuthRateLimit > 0 {
		srvCfg.AuthLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "calorieai:ratelimit:auth", cfg.AuthRateLimit, time.Minute)
		if err != nil {
			log.Fatalf("failed to init auth rate limiter: %v", err)
		}
	}
	if cfg.AnalyzeRateLimit > 0 {
		srvCfg.AnalyzeLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "calorieai:ratelimit:analyze", cfg.AnalyzeRateLimit, time.Minute)
		if err != nil {
			log.Fatalf("failed to init analyze rate limiter: %v", err)
		}
	}

	if cfg.MinioEndpoint != "" {
		photos, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init photo storage: %v", err)
		}
		srvCfg.Photos = photos
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer publisher.Close()
		srvCfg.Events = publisher
	}

	httpServer := server.New(srvCfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("calorieai server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
