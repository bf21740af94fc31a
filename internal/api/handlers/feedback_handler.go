package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/feedback"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/pkg/logger"
)

type FeedbackHandler struct {
	store *feedback.Store
}

func NewFeedbackHandler(store *feedback.Store) *FeedbackHandler {
	return &FeedbackHandler{
		store: store,
	}
}

func (h *FeedbackHandler) SubmitVote(c *fiber.Ctx) error {
	var req struct {
		ChunkID  string `json:"chunk_id"`
		Positive *bool  `json:"positive"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.ChunkID == "" || req.Positive == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chunk_id and positive are required",
		})
	}

	fb, factor, err := h.store.Vote(req.ChunkID, *req.Positive)
	if err != nil {
		logger.Error("Failed to record vote", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record vote",
		})
	}

	direction := "down"
	if *req.Positive {
		direction = "up"
	}
	metrics.FeedbackVotes.WithLabelValues(direction).Inc()

	return c.JSON(fiber.Map{
		"chunk_id":     fb.ChunkID,
		"positive":     fb.Positive,
		"negative":     fb.Negative,
		"boost_factor": factor,
	})
}

func (h *FeedbackHandler) GetFeedback(c *fiber.Ctx) error {
	chunkID := c.Params("id")
	if chunkID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chunk id is required",
		})
	}

	fb, factor, err := h.store.Get(chunkID)
	if err != nil {
		logger.Error("Failed to load feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load feedback",
		})
	}

	return c.JSON(fiber.Map{
		"chunk_id":     chunkID,
		"positive":     fb.Positive,
		"negative":     fb.Negative,
		"boost_factor": factor,
	})
}
