package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/rag"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/logger"
)

type QueryHandler struct {
	orchestrator *rag.Orchestrator
	registry     *sqlite.Client
}

func NewQueryHandler(orchestrator *rag.Orchestrator, registry *sqlite.Client) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		registry:     registry,
	}
}

type queryRequest struct {
	Question string   `json:"question"`
	UserID   string   `json:"user_id"`
	Team     string   `json:"team"`
	Tags     []string `json:"tags"`
	TopK     int      `json:"top_k"`
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req queryRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question is required",
		})
	}

	started := time.Now()
	result, err := h.orchestrator.Answer(c.Context(), rag.Request{
		Question: req.Question,
		UserID:   req.UserID,
		Scope:    rag.Scope{Owner: req.UserID, Team: req.Team},
		Tags:     req.Tags,
		TopK:     req.TopK,
	}, nil, nil)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		logger.Error("Failed to answer question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to answer question",
		})
	}

	metrics.QueryTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.WithLabelValues(result.Intent.Type).Observe(time.Since(started).Seconds())

	return c.JSON(result)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)

	records, err := h.registry.ListQueryHistory(userID, limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}
