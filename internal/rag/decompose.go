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

const decomposeSystemPrompt = `You split a user question into search-optimized sub-queries.

Rules:
1. Each sub-query carries exactly one intent.
2. Use concrete, searchable keywords.
3. Produce at most %d sub-queries; do not over-split.
4. Keep the core intent of the original question.

Priorities: 1 = essential, 2 = supporting, 3 = optional.

Output a JSON array only:
[{"text": "...", "focus": "2-3 words", "priority": 1}]

Example:
Question: "How many days of annual leave do I get and how do I apply?"
[{"text": "annual leave entitlement days", "focus": "entitlement", "priority": 1},
 {"text": "annual leave application procedure", "focus": "application", "priority": 1}]`

// Decomposer splits compound questions into focused sub-queries.
type Decomposer struct {
	llm           Completer
	maxSubQueries int
}

func NewDecomposer(client Completer, maxSubQueries int) *Decomposer {
	if maxSubQueries <= 0 {
		maxSubQueries = 5
	}
	return &Decomposer{llm: client, maxSubQueries: maxSubQueries}
}

// Decompose returns the sub-queries for a question. Document requests and
// simple single-intent questions pass through unsplit; any failure returns
// the original question as the only sub-query.
func (d *Decomposer) Decompose(ctx context.Context, question string, intent IntentResult, inventory string) []SubQuery {
	single := []SubQuery{{Text: question, Focus: extractFocus(question), Priority: 1}}

	if intent.Type == IntentDocRequest {
		return single
	}
	if isSimpleQuestion(question) {
		return single
	}

	systemPrompt := fmt.Sprintf(decomposeSystemPrompt, d.maxSubQueries)
	if inventory != "" {
		systemPrompt = inventory + "\n\n" + systemPrompt
	}

	resp, err := d.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("User question: %q\n\nOutput the JSON array only.", question),
		Temperature:  0.1,
	})
	if err != nil {
		logger.Warn("Query decomposition failed, using original question", zap.Error(err))
		return single
	}

	var subqueries []SubQuery
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &subqueries); err != nil {
		logger.Warn("Decomposition response unparseable",
			zap.String("content", resp.Content),
			zap.Error(err),
		)
		return single
	}

	valid := subqueries[:0]
	for _, sq := range subqueries {
		if strings.TrimSpace(sq.Text) == "" {
			continue
		}
		if sq.Priority < 1 || sq.Priority > 3 {
			sq.Priority = 1
		}
		valid = append(valid, sq)
	}
	if len(valid) == 0 {
		return single
	}
	if len(valid) > d.maxSubQueries {
		logger.Debug("Sub-query count capped",
			zap.Int("produced", len(valid)),
			zap.Int("cap", d.maxSubQueries),
		)
		valid = valid[:d.maxSubQueries]
	}

	logger.Debug("Question decomposed", zap.Int("subqueries", len(valid)))
	return valid
}

// isSimpleQuestion filters out questions too short or too singular to be
// worth an extra model call.
func isSimpleQuestion(question string) bool {
	if len([]rune(question)) >= 50 || strings.Count(question, "?") > 1 {
		return false
	}
	for _, marker := range []string{" and ", ", ", " also ", " plus ", "그리고", "하고", "또"} {
		if strings.Contains(strings.ToLower(question), marker) {
			return false
		}
	}
	return true
}

// extractFocus picks the first few content words as a label for the
// sub-query. Heuristic only; used for logging and stage reporting.
func extractFocus(question string) string {
	cleaned := strings.NewReplacer("?", "", "!", "", ".", "", ",", "").Replace(question)

	stopwords := map[string]bool{
		"how": true, "what": true, "when": true, "where": true, "why": true,
		"who": true, "which": true, "many": true, "much": true, "do": true,
		"does": true, "is": true, "are": true, "the": true, "a": true,
		"an": true, "i": true, "my": true, "can": true,
	}

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if stopwords[strings.ToLower(w)] {
			continue
		}
		words = append(words, w)
		if len(words) == 3 {
			break
		}
	}
	if len(words) == 0 {
		return "general"
	}
	return strings.Join(words, " ")
}
