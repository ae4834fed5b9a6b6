package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/ralphdg-dev/AI.ttorney-sub000/cmd/mainconfig"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/api/router"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/chat"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/compliance"
	appconfig "github.com/ralphdg-dev/AI.ttorney-sub000/internal/config"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/enforcement"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/http/handlers"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/observability/metrics"
	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/webchat"
	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting legal Q&A API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)
	llm := chat.NewBedrockLLMClient(bedrockClient)
	embedder := chat.NewBedrockEmbeddingClient(bedrockClient)

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = auditDB.Close() }()
	auditService := compliance.NewAuditService(auditDB)

	enforcementRepo := enforcement.NewPostgresRepository(pool, enforcement.Policy{
		StrikesForSuspension: cfg.StrikesForSuspension,
		SuspensionsForBan:    cfg.SuspensionsForBan,
		SuspensionDuration:   cfg.SuspensionDuration,
	})
	enforcementSvc := enforcement.NewService(enforcementRepo, auditService, logger)

	knowledgeRepo := chat.NewRedisKnowledgeRepository(rdb)
	ragStore := chat.NewMemoryRAGStore(embedder, cfg.BedrockEmbeddingModelID, cfg.EmbedTimeout, logger)
	retriever := chat.NewHydratingRetriever(ctx, knowledgeRepo, ragStore, logger)
	normalizer := chat.NewQueryNormalizer(llm, cfg.BedrockModelID, cfg.NormalizeTimeout, logger)
	gate := chat.NewRetrievalGate(retriever, normalizer,
		cfg.RetrievalTopK, cfg.RetrievalMinScore, cfg.RetrievalMinExcerpt, logger)

	var moderator chat.Moderator
	if cfg.OpenAIAPIKey != "" {
		moderator = chat.NewModerationAdapter(
			openai.NewClient(cfg.OpenAIAPIKey),
			cfg.OpenAIModerationModel,
			chat.DefaultModerationThresholds(),
			logger,
		)
	} else {
		logger.Warn("OPENAI_API_KEY not set, content moderation disabled")
	}

	pipelineMetrics := metrics.NewPipelineMetrics(nil)
	historyStore := chat.NewHistoryStore(rdb, cfg.MaxHistoryTurns, nil)
	exchangeStore := chat.NewExchangeStore(pool)

	orchestrator := chat.NewOrchestrator(chat.OrchestratorDeps{
		LLM:         llm,
		Model:       cfg.BedrockModelID,
		Gate:        gate,
		Moderator:   moderator,
		Enforcement: enforcementSvc,
		History:     historyStore,
		Exchanges:   exchangeStore,
		Auditor:     auditService,
		Metrics:     pipelineMetrics,
		Logger:      logger,
		Config:      cfg,
	})

	chatHandler := webchat.NewHandler(orchestrator, exchangeStore, logger)
	adminEnforcement := handlers.NewAdminEnforcementHandler(enforcementSvc, logger)

	r := router.New(&router.Config{
		Logger:           logger,
		ChatHandler:      chatHandler,
		AdminEnforcement: adminEnforcement,
		AdminAuthSecret:  cfg.AdminJWTSecret,
		MetricsHandler:   promhttp.Handler(),
		AnonRateLimit:    cfg.AnonRateLimitPerSec,
		AnonRateBurst:    cfg.AnonRateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // streaming answers outlive normal requests
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
