package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Akmalwizdom/onyx-shortener/internal/config"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/chain"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/db"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/logger"
	"github.com/Akmalwizdom/onyx-shortener/internal/infrastructure/telemetry"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/clicks"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/gate"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/links"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/quota"
	"github.com/Akmalwizdom/onyx-shortener/internal/processing/safety"
	kafkaStorage "github.com/Akmalwizdom/onyx-shortener/internal/storage/kafka"
	"github.com/Akmalwizdom/onyx-shortener/internal/storage/mongo"
	redisStorage "github.com/Akmalwizdom/onyx-shortener/internal/storage/redis"
	httpTransport "github.com/Akmalwizdom/onyx-shortener/internal/transport/http"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
	)

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		var err error
		shutdownTracer, err = telemetry.InitTracer(cfg.OTel.Endpoint, cfg.App.Name, cfg.App.Version)
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracer initialized", zap.String("endpoint", cfg.OTel.Endpoint))
		}
	}

	mongoConn, err := db.ConnectMongo(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() { _ = mongoConn.Disconnect() }()

	linkRepo, err := mongo.NewLinksRepository(mongoConn)
	if err != nil {
		logger.Fatal("Failed to initialize links repository", zap.Error(err))
	}
	clicksRepo, err := mongo.NewClicksRepository(mongoConn)
	if err != nil {
		logger.Fatal("Failed to initialize clicks repository", zap.Error(err))
	}

	// Quota counters. A missing or unreachable Redis is not fatal: the
	// admitter fails open and creation proceeds unmetered.
	var quotaStore quota.CounterStore
	if cfg.Redis.Addr != "" {
		redisClient, err := redisStorage.New(redisStorage.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("Failed to connect to Redis, rate limiting disabled", zap.Error(err))
		} else {
			defer func() { _ = redisClient.Close() }()
			quotaStore = redisClient
		}
	} else {
		logger.Warn("Redis address not configured, rate limiting disabled")
	}

	admitter := quota.NewService(quotaStore,
		quota.Tier{DailyLimit: int64(cfg.Quota.AnonDailyLimit), MinuteLimit: int64(cfg.Quota.AnonMinuteLimit)},
		quota.Tier{DailyLimit: int64(cfg.Quota.WalletDailyLimit), MinuteLimit: int64(cfg.Quota.WalletMinuteLimit)},
	)

	var publisher clicks.Publisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := kafkaStorage.NewClickPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kafkaPublisher.Close() }()
		publisher = kafkaPublisher
		logger.Info("Kafka click publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	recorder := clicks.NewRecorder(linkRepo, clicksRepo, publisher)

	chainClient := chain.New(cfg.Chain.RPCURL, cfg.Chain.Timeout)
	verifier := gate.NewVerifier(chainClient)

	checker := safety.NewChecker(cfg.Safety, cfg.App.Version)

	linkSvc := links.NewService(
		linkRepo,
		links.NewCryptoCodeGenerator(),
		admitter,
		checker,
		verifier,
		recorder,
		cfg.Shortener.CodeLength,
		cfg.Shortener.DefaultExpiryDays,
	)

	router := httpTransport.NewRouter(cfg, linkSvc)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if shutdownTracer != nil {
			_ = shutdownTracer(shutdownCtx)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("Server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.App.Env),
		zap.String("address", fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
