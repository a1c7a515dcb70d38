package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/audit"
	"github.com/yourorg/payment-gateway/internal/config"
	"github.com/yourorg/payment-gateway/internal/executor"
	"github.com/yourorg/payment-gateway/internal/gateway"
	"github.com/yourorg/payment-gateway/internal/idempotency"
	"github.com/yourorg/payment-gateway/internal/mapping"
	"github.com/yourorg/payment-gateway/internal/monitor"
	"github.com/yourorg/payment-gateway/internal/profile"
	"github.com/yourorg/payment-gateway/internal/reporting"
	"github.com/yourorg/payment-gateway/internal/request"
	"github.com/yourorg/payment-gateway/internal/response"
	"github.com/yourorg/payment-gateway/internal/telemetry"
	"github.com/yourorg/payment-gateway/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := telemetry.InitTracing(serviceName, os.Stdout)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	prof, err := profile.Resolve(cfg.Profile)
	if err != nil {
		logger.Fatal("Failed to load gateway profile", zap.String("profile", cfg.Profile), zap.Error(err))
	}

	testURL, liveURL := cfg.TestURL, cfg.LiveURL
	if testURL == "" {
		testURL = prof.TestURL
	}
	if liveURL == "" {
		liveURL = prof.LiveURL
	}
	breaker := transport.NewBreaker(transport.BreakerConfig{
		FailureThreshold:  cfg.BreakerFailureThreshold,
		OpenTimeout:       cfg.BreakerOpenTimeout,
		HalfOpenSuccesses: cfg.BreakerHalfOpenSuccesses,
		HalfOpenMaxCalls:  cfg.BreakerHalfOpenMaxCalls,
	})
	client, err := transport.NewHTTPClient(transport.Config{
		TestURL:    testURL,
		LiveURL:    liveURL,
		Test:       cfg.Test,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Timeout:    cfg.HTTPTimeout,
		UserAgent:  serviceName,
	}, transport.WithBreaker(breaker), transport.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create gateway transport", zap.Error(err))
	}

	exec, err := executor.New(prof, client,
		executor.WithLogger(logger),
		executor.WithRegisterer(prometheus.DefaultRegisterer))
	if err != nil {
		logger.Fatal("Failed to create executor", zap.Error(err))
	}

	ctx := context.Background()
	entries := audit.NewMemoryStore(cfg.AuditMemoryEntries)
	recorders := audit.Fanout{entries}

	if cfg.DatabaseURL != "" {
		db, err := audit.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		store := audit.NewPostgresStore(db)
		if err := store.InitSchema(ctx); err != nil {
			logger.Fatal("Failed to initialize audit schema", zap.Error(err))
		}
		recorders = append(recorders, store)
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		recorders = append(recorders, publisher)
	}

	var idem idempotency.Store = idempotency.NewMemoryStore(nil)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid redis URL", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		idem = idempotency.NewRedisStore(redisClient)
	}

	verifyAmount, err := decimal.NewFromString(cfg.VerifyAmount)
	if err != nil {
		logger.Fatal("Invalid verify amount", zap.String("amount", cfg.VerifyAmount), zap.Error(err))
	}
	gw, err := gateway.New(exec, gateway.Config{
		Mapper:       mapping.Envelope{MerchantAccount: cfg.MerchantAccount},
		VerifyAmount: request.Money{Amount: verifyAmount, Currency: cfg.VerifyCurrency},
		Recorder:     recorders,
		Logger:       logger,
		Registerer:   prometheus.DefaultRegisterer,
		OnDanglingAuthorization: func(_ context.Context, authorization string, _ *response.Response, _ error) {
			logger.Error("Verification authorization requires manual void", zap.String("authorization", authorization))
		},
	})
	if err != nil {
		logger.Fatal("Failed to create gateway", zap.Error(err))
	}

	contract, err := monitor.NewContractMonitor()
	if err != nil {
		logger.Fatal("Failed to compile request contracts", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(&server{
		gw:       gw,
		contract: contract,
		entries:  entries,
		reporter: reporting.NewRetrospectiveReporter(),
		logger:   logger,
	}, routerDeps{
		idempotency:    idem,
		idempotencyTTL: cfg.IdempotencyTTL,
		gatherer:       prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting payment gateway",
			zap.String("port", cfg.Port),
			zap.String("profile", prof.Name),
			zap.Bool("test", cfg.Test))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
