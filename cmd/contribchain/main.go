package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dotrep/contribchain/internal/config"
	"github.com/dotrep/contribchain/pkg/anchor"
	"github.com/dotrep/contribchain/pkg/broadcast"
	"github.com/dotrep/contribchain/pkg/contentstore"
	"github.com/dotrep/contribchain/pkg/ingest"
	"github.com/dotrep/contribchain/pkg/ledger"
	"github.com/dotrep/contribchain/pkg/proofs"
	"github.com/dotrep/contribchain/pkg/provider/github"
	"github.com/dotrep/contribchain/pkg/queue"
	"github.com/dotrep/contribchain/pkg/repository"
	"github.com/dotrep/contribchain/pkg/repository/mongodb"
	"github.com/dotrep/contribchain/pkg/verify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := buildLogger(cfg)
	defer logger.Sync()

	shutdownOrchestrator := broadcast.NewErrorWaitChannel()

	db := connectMongo(cfg, logger)
	repo := buildRepository(logger.With(zap.String("module", "repository")), db)

	ingestQueue, err := queue.NewLevelDBIngestQueue(cfg.Queue.IngestPath)
	if err != nil {
		logger.Fatal("Failed to open ingest queue", zap.Error(err))
	}
	defer ingestQueue.Close(context.Background())

	stagingQueue, err := queue.NewLevelDBStagingQueue(cfg.Queue.StagingPath)
	if err != nil {
		logger.Fatal("Failed to open staging queue", zap.Error(err))
	}
	defer stagingQueue.Close(context.Background())

	contentStore := buildContentStore(cfg, logger.With(zap.String("module", "content_store")))
	ledgerClient := buildLedgerClient(cfg, logger.With(zap.String("module", "ledger")))

	verifier := verify.NewVerifier(logger.With(zap.String("module", "verifier")), repo.Contributors())
	builder := proofs.NewBuilder()

	worker := ingest.NewWorker(
		cfg,
		logger.With(zap.String("module", "ingest_worker")),
		ingestQueue,
		stagingQueue,
		verifier,
		builder,
		repo,
	)
	worker.Run()

	anchorAgent := anchor.NewAgent(
		cfg,
		logger.With(zap.String("module", "anchor_agent")),
		stagingQueue,
		contentStore,
		ledgerClient,
		repo,
	)
	go anchorAgent.StartLoop(shutdownOrchestrator.Subscribe())

	if cfg.GitHub.Token != "" {
		logger.Info("Starting GitHub contribution poller", zap.Strings("logins", cfg.GitHub.Logins))

		pollerLogger := logger.With(zap.String("module", "github_poller"))
		poller := github.NewPoller(cfg.GitHub, pollerLogger, github.NewClient(pollerLogger, cfg.GitHub), ingestQueue)
		go poller.StartLoop(shutdownOrchestrator.Subscribe())
	} else {
		logger.Info("No GitHub token configured, poller disabled")
	}

	if cfg.Metrics.Enabled {
		go runMetricsServer(cfg, logger)
	}

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	<-stop

	// Shutdown gracefully
	logger.Info("Received shutdown signal!")

	if err := worker.Shutdown(); err != nil {
		logger.Error("Failed to shutdown ingest workers", zap.Error(err))
	} else {
		logger.Info("Ingest workers shutdown successfully")
	}

	if err := shutdownOrchestrator.Await(time.Second * 5); err != nil {
		logger.Error("Failed to shutdown background loops", zap.Error(err))
	} else {
		logger.Info("Background loops shutdown successfully")
	}
}

func buildLogger(cfg config.Config) *zap.Logger {
	var logCfg zap.Config
	if cfg.Production {
		logCfg = zap.NewProductionConfig()

		if cfg.PrettyLogs {
			logCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			logCfg.Encoding = "console"
		}
	} else {
		logCfg = zap.NewDevelopmentConfig()
		logCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "error":
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	case "warn":
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "info":
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "debug":
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	default:
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := logCfg.Build()
	if err != nil {
		panic(err)
	}

	return logger
}

func connectMongo(cfg config.Config, logger *zap.Logger) *mongo.Database {
	opts := options.Client().
		ApplyURI(cfg.MongoDB.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))

	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}

	// Ping server
	if err := client.Ping(context.Background(), nil); err != nil {
		logger.Fatal("failed to ping MongoDB server", zap.Error(err))
	}

	return client.Database(cfg.MongoDB.DatabaseName)
}

func buildRepository(logger *zap.Logger, db *mongo.Database) repository.Repository {
	repo := mongodb.NewMongoRepository(logger, db)
	if err := repo.InitSchema(context.Background()); err != nil {
		logger.Fatal("failed to initialize MongoDB schema", zap.Error(err))
	}

	return repo
}

func buildContentStore(cfg config.Config, logger *zap.Logger) contentstore.Store {
	if cfg.ContentStore.Endpoint == "" {
		if cfg.Production {
			logger.Fatal("content store endpoint is required in production")
		}

		logger.Warn("No content store endpoint configured, using in-memory store")
		return contentstore.NewMemoryStore()
	}

	return contentstore.NewHTTPStore(
		logger,
		cfg.ContentStore.Endpoint,
		cfg.ContentStore.Timeout.Duration(),
		cfg.ContentStore.MaxAttempts,
	)
}

func buildLedgerClient(cfg config.Config, logger *zap.Logger) ledger.Client {
	if cfg.Ledger.Endpoint == "" {
		logger.Info("No ledger endpoint configured, chain anchoring disabled")
		return nil
	}

	return ledger.NewHTTPClient(
		logger,
		cfg.Ledger.Endpoint,
		cfg.Ledger.Timeout.Duration(),
		cfg.Ledger.MaxAttempts,
	)
}

func runMetricsServer(cfg config.Config, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info("Starting metrics server", zap.String("address", cfg.Metrics.Address))
	if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
		logger.Error("Metrics server stopped", zap.Error(err))
	}
}
