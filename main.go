package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/audit"
	"github.com/lorekeep/lorekeep-engine/pkg/auth"
	"github.com/lorekeep/lorekeep-engine/pkg/config"
	"github.com/lorekeep/lorekeep-engine/pkg/database"
	"github.com/lorekeep/lorekeep-engine/pkg/handlers"
	"github.com/lorekeep/lorekeep-engine/pkg/llm"
	"github.com/lorekeep/lorekeep-engine/pkg/middleware"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
	"github.com/lorekeep/lorekeep-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Database),
		zap.String("ai_provider", cfg.AI.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := migrate(cfg, logger); err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	schemaVersion, err := database.DetectSchemaVersion(ctx, db, logger)
	if err != nil {
		return err
	}

	topicRepo := repositories.NewTopicRepository()
	noteRepo := repositories.NewNoteRepository()
	memberRepo := repositories.NewMemberRepository(schemaVersion)
	eventRepo := repositories.NewEventRepository()
	graphRepo := repositories.NewGraphRepository()

	llmClient, err := llm.NewClient(&llm.Config{
		Provider: cfg.AI.Provider,
		Endpoint: cfg.AI.BaseURL,
		Model:    cfg.AI.Model,
		APIKey:   cfg.AI.APIKey,
		Timeout:  time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return err
	}

	topicService := services.NewTopicService(db, topicRepo, memberRepo, eventRepo, logger)
	memberService := services.NewMemberService(db, topicRepo, noteRepo, memberRepo, logger)
	eventService := services.NewEventService(db, topicRepo, memberRepo, eventRepo, logger)
	mergeService := services.NewMergeService(db, topicRepo, memberRepo, eventRepo, eventService, logger)
	ingestService := services.NewIngestService(db, topicRepo, noteRepo, memberRepo, graphRepo, llmClient, cfg.Ingest.BatchSize, logger)
	reportService := services.NewReportService(db, topicRepo, memberRepo, llmClient, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return err
	}
	authMiddleware := auth.NewMiddleware(jwksClient, logger)

	auditor := audit.NewCurationAuditor(logger)

	mux := http.NewServeMux()
	handlers.NewTopicHandler(topicService, memberService, mergeService, reportService, auditor, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewGraphHandler(ingestService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewHealthHandler(db, cfg.Version, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting lorekeep-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("Server exited")
		return nil
	case err := <-errCh:
		return err
	}
}

// migrate applies pending schema migrations through database/sql; the pgx
// stdlib driver reuses the same connection settings as the pool.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
