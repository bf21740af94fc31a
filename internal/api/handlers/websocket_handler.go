package handlers

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/rag"
	"github.com/docqa/backend/pkg/logger"
)

type WebSocketHandler struct {
	orchestrator *rag.Orchestrator
}

func NewWebSocketHandler(orchestrator *rag.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{
		orchestrator: orchestrator,
	}
}

// HandleConnection serves one client connection. Each inbound "question"
// message runs the full pipeline; stage and token frames stream back as the
// pipeline progresses, ending with a "complete" frame or an "error" frame.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	// Pipeline work is scoped to the connection: once the client is gone,
	// in-flight stages stop at their next context check.
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type     string   `json:"type"`
			Question string   `json:"question"`
			UserID   string   `json:"user_id"`
			Team     string   `json:"team"`
			Tags     []string `json:"tags"`
			TopK     int      `json:"top_k"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "question" || msg.Question == "" {
			continue
		}

		logger.Info("Processing WebSocket question", zap.String("user_id", msg.UserID))

		req := rag.Request{
			Question: msg.Question,
			UserID:   msg.UserID,
			Scope:    rag.Scope{Owner: msg.UserID, Team: msg.Team},
			Tags:     msg.Tags,
			TopK:     msg.TopK,
		}

		if err := h.streamAnswer(ctx, c, req); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.sendError(c, "Failed to answer question")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(ctx context.Context, c *websocket.Conn, req rag.Request) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()

	// A failed frame write means the client disconnected; cancelling lets
	// stages that have not reached the socket yet stop early.
	onStage := func(stage, message string) {
		if err := c.WriteJSON(map[string]interface{}{
			"type":    "stage",
			"stage":   stage,
			"message": message,
		}); err != nil {
			cancel()
		}
	}

	onToken := func(token string) error {
		err := c.WriteJSON(map[string]interface{}{
			"type":  "token",
			"token": token,
		})
		if err != nil {
			cancel()
		}
		return err
	}

	result, err := h.orchestrator.Answer(ctx, req, onStage, onToken)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.QueryTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.WithLabelValues(result.Intent.Type).Observe(time.Since(started).Seconds())

	return c.WriteJSON(map[string]interface{}{
		"type":   "complete",
		"result": result,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
