package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/pkg/logger"
)

// confidenceFloor is the threshold below which classification degrades to a
// plain info_request instead of trusting a shaky read.
const confidenceFloor = 0.7

const intentSystemPrompt = `You classify a user question into exactly one intent.

1. doc_request: the user wants to find or open a document itself
   ("find the leave policy document", "where can I see the HR manual")
2. info_request: the user wants a specific answer
   ("how many days of annual leave do I get", "how do I apply for sick leave")
3. multi_step: document lookup combined with a follow-up ask
   ("find the leave policy and summarize it")

Respond with JSON only:
{"type": "doc_request" | "info_request" | "multi_step",
 "confidence": 0.0-1.0,
 "reasoning": "one sentence"}

When unsure, classify as info_request.`

// Classifier decides how a question should be handled before any retrieval
// runs.
type Classifier struct {
	llm Completer
}

func NewClassifier(client Completer) *Classifier {
	return &Classifier{llm: client}
}

// Classify returns the question's intent. Every failure path, including low
// model confidence, degrades to info_request so the pipeline always has a
// workable plan.
func (c *Classifier) Classify(ctx context.Context, question, inventory string) IntentResult {
	userPrompt := fmt.Sprintf("User question: %q\n\nClassify this question's intent.", question)
	if inventory != "" {
		userPrompt = inventory + "\n\n" + userPrompt
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: intentSystemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.01,
		JSONMode:     true,
	})
	if err != nil {
		logger.Warn("Intent classification failed, defaulting to info_request", zap.Error(err))
		return fallbackIntent("classification error: " + err.Error())
	}

	var result IntentResult
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &result); err != nil {
		logger.Warn("Intent response unparseable, defaulting to info_request",
			zap.String("content", resp.Content),
			zap.Error(err),
		)
		return fallbackIntent("unparseable classification")
	}

	switch result.Type {
	case IntentDocRequest, IntentInfoRequest, IntentMultiStep:
	default:
		return fallbackIntent("unknown intent type " + result.Type)
	}

	if result.Confidence < confidenceFloor {
		logger.Info("Intent confidence below floor, degrading to info_request",
			zap.String("type", result.Type),
			zap.Float64("confidence", result.Confidence),
		)
		return IntentResult{
			Type:       IntentInfoRequest,
			Confidence: 0.5,
			Reasoning:  fmt.Sprintf("low confidence (%.2f): %s", result.Confidence, result.Reasoning),
		}
	}

	logger.Debug("Intent classified",
		zap.String("type", result.Type),
		zap.Float64("confidence", result.Confidence),
	)
	return result
}

func fallbackIntent(reason string) IntentResult {
	return IntentResult{Type: IntentInfoRequest, Confidence: 0.5, Reasoning: reason}
}

// stripCodeFence removes a surrounding markdown code block, which some
// models emit even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
