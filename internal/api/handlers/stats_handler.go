package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docqa/backend/internal/llm"
)

type StatsHandler struct {
	gateway *llm.Client
}

func NewStatsHandler(gateway *llm.Client) *StatsHandler {
	return &StatsHandler{
		gateway: gateway,
	}
}

// GetSlotStats exposes the per-credential request counters of the gateway.
func (h *StatsHandler) GetSlotStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"slots":          h.gateway.Stats(),
		"total_requests": h.gateway.TotalRequests(),
	})
}
