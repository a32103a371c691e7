package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-ingestion-service/config"
	"github.com/fekuna/omnipos-ingestion-service/internal/orderapi"
	"github.com/fekuna/omnipos-ingestion-service/internal/webhook"
	"github.com/fekuna/omnipos-ingestion-service/pkg/broker"
	"github.com/fekuna/omnipos-ingestion-service/pkg/cache"
	"github.com/fekuna/omnipos-ingestion-service/pkg/logger"
	"github.com/fekuna/omnipos-ingestion-service/pkg/postgres"
	"github.com/fekuna/omnipos-ingestion-service/pkg/search"

	credRepoPkg "github.com/fekuna/omnipos-ingestion-service/internal/credential/repository"
	eventRepoPkg "github.com/fekuna/omnipos-ingestion-service/internal/event/repository"
	ledgerRepoPkg "github.com/fekuna/omnipos-ingestion-service/internal/ledger/repository"
	ledgerUCPkg "github.com/fekuna/omnipos-ingestion-service/internal/ledger/usecase"
	mapRepoPkg "github.com/fekuna/omnipos-ingestion-service/internal/mapping/repository"
	whH "github.com/fekuna/omnipos-ingestion-service/internal/webhook/handler"
	whUCPkg "github.com/fekuna/omnipos-ingestion-service/internal/webhook/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     false,
		DisableStacktrace: false,
	}

	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = cfg.Logger.Encoding
		logConfig.Level = cfg.Logger.Level
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Redis (counter locks)
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. Initialize Kafka Producer (decrement fan-out)
	kafkaProducer := broker.NewProducer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	defer kafkaProducer.Close()
	appLogger.Info("Connected to Kafka Producer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))

	// 5.5 Initialize Elasticsearch (audit index for the reporting views)
	var indexer webhook.Indexer
	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch (audit search will be limited)", zap.Error(err))
	} else {
		indexer = esClient
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	// 6. Resolve the store timezone (operational day boundary)
	location, err := time.LoadLocation(cfg.Store.Timezone)
	if err != nil {
		appLogger.Fatal("Invalid store timezone", zap.String("timezone", cfg.Store.Timezone), zap.Error(err))
	}

	// 7. Initialize Repositories
	credRepo := credRepoPkg.NewPGRepository(db)
	eventRepo := eventRepoPkg.NewPGRepository(db)
	mapRepo := mapRepoPkg.NewPGRepository(db)
	ledgerRepo := ledgerRepoPkg.NewPGRepository(db)

	// 8. Initialize UseCases
	fetcher := orderapi.NewClient(
		cfg.Upstream.SandboxBaseURL,
		cfg.Upstream.ProductionBaseURL,
		cfg.Upstream.RequestTimeout,
		appLogger,
	)
	ledgerUC := ledgerUCPkg.NewLedgerUseCase(ledgerRepo, redisClient, location, appLogger)
	webhookUC := whUCPkg.NewWebhookUseCase(credRepo, eventRepo, mapRepo, fetcher, ledgerUC, kafkaProducer, indexer, appLogger)

	// 9. Initialize Handlers
	webhookHandler := whH.NewWebhookHandler(webhookUC, appLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/orders", webhookHandler.Handle)
	mux.HandleFunc("/healthz", whH.Health)

	// 10. Start HTTP Server
	port := cfg.Server.HTTPPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	server := &http.Server{
		Addr:         port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	appLogger.Info("Starting HTTP server", zap.String("port", port))

	// Graceful Shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	appLogger.Info("Server stopped")
}
