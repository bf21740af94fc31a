package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/api/handlers"
	"github.com/docqa/backend/internal/cache/redis"
	"github.com/docqa/backend/internal/feedback"
	"github.com/docqa/backend/internal/ingest"
	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/middleware/ratelimit"
	"github.com/docqa/backend/internal/middleware/security"
	"github.com/docqa/backend/internal/rag"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/config"
	appLogger "github.com/docqa/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting DocQA API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	// Redis is an accelerator, not a dependency. Without it rerank scores
	// and the document inventory are recomputed on every request.
	var (
		scoreCache  rag.ScoreCache
		invCache    rag.InventoryCache
		embedCache  rag.EmbeddingCache
		invalidator ingest.InventoryInvalidator
	)
	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, running without caches", zap.Error(err))
	} else {
		defer redisClient.Close()
		scoreCache = redisClient
		invCache = redisClient
		embedCache = redisClient
		invalidator = redisClient
	}

	llmClient, err := llm.NewClient(llm.Config{
		APIKeys:        cfg.LLM.APIKeys,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		RerankModel:    cfg.LLM.RerankModel,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Failed to create LLM gateway", zap.Error(err))
	}

	feedbackStore := feedback.NewStore(sqliteClient)

	tagger := ingest.NewTagger(llmClient, cfg.Ingest.MaxTags)
	jobs := ingest.NewJobStore()
	pipeline := ingest.NewPipeline(llmClient, milvusClient, sqliteClient, tagger, jobs, invalidator, cfg.Ingest)

	reranker := rag.NewReranker(
		llmClient,
		llmClient.RerankModel(),
		feedbackStore,
		scoreCache,
		rag.Weights{
			LLM:        cfg.Rerank.WeightLLM,
			Feedback:   cfg.Rerank.WeightFeedback,
			Tag:        cfg.Rerank.WeightTag,
			Similarity: cfg.Rerank.WeightSimilarity,
		},
		time.Duration(cfg.Rerank.CacheTTLSec)*time.Second,
	)

	inventory := rag.NewInventory(sqliteClient, invCache, time.Duration(cfg.Rerank.InventoryTTLSec)*time.Second)

	orchestrator := rag.NewOrchestrator(
		rag.NewClassifier(llmClient),
		rag.NewDecomposer(llmClient, cfg.Retrieval.MaxSubQueries),
		rag.NewExpander(llmClient, cfg.Retrieval.MaxExpansions),
		rag.NewRetriever(llmClient, milvusClient, embedCache, cfg.Retrieval.KPerVariant, cfg.Retrieval.MaxCandidates),
		reranker,
		rag.NewGenerator(llmClient),
		inventory,
		sqliteClient,
		cfg.Retrieval.TopK,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(security.Headers(security.Config{}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
	defer limiter.Stop()

	queryHandler := handlers.NewQueryHandler(orchestrator, sqliteClient)
	documentHandler := handlers.NewDocumentHandler(pipeline, sqliteClient, milvusClient, invalidator, cfg.Ingest)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackStore)
	statsHandler := handlers.NewStatsHandler(llmClient)
	wsHandler := handlers.NewWebSocketHandler(orchestrator)

	api := app.Group("/api/v1")

	api.Post("/query", limiter.Middleware(), queryHandler.HandleQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)

	api.Post("/documents", documentHandler.UploadDocuments)
	api.Get("/documents", documentHandler.ListDocuments)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)
	api.Get("/jobs/:id", documentHandler.GetJobStatus)

	api.Post("/feedback", feedbackHandler.SubmitVote)
	api.Get("/feedback/:id", feedbackHandler.GetFeedback)

	api.Get("/stats/llm", statsHandler.GetSlotStats)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/query", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
