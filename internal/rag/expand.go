package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/pkg/logger"
)

var numberedLineRe = regexp.MustCompile(`^\d+\.\s*(.+)$`)

// Expander rewrites one query into several phrasings to raise recall over
// inconsistently worded source documents.
type Expander struct {
	llm           Completer
	maxExpansions int
}

func NewExpander(client Completer, maxExpansions int) *Expander {
	if maxExpansions <= 0 {
		maxExpansions = 3
	}
	return &Expander{llm: client, maxExpansions: maxExpansions}
}

// Expand returns the original query followed by up to maxExpansions distinct
// variants. On any failure, only the original query is returned so retrieval
// always has at least one query to run.
func (e *Expander) Expand(ctx context.Context, query string, docTitles []string) []string {
	docSummary := strings.Join(truncateList(docTitles, 10), ", ")

	prompt := fmt.Sprintf(`Rewrite the following question in %d different ways.

Original question: %s

Available documents: %s

Requirements:
1. Fix typos if any.
2. Use synonyms for key terms (e.g. "annual leave" -> "vacation days").
3. Include one variant with alternate spacing of the key noun phrases, since
   scanned documents may have irregular spacing.
4. Keep the meaning identical.

Output one variant per line, numbered:
1. [variant]
2. [variant]
3. [variant]`, e.maxExpansions, query, docSummary)

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  prompt,
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		logger.Warn("Query expansion failed, using original only", zap.Error(err))
		return []string{query}
	}

	result := []string{query}
	for _, variant := range parseExpansions(resp.Content, e.maxExpansions) {
		if !contains(result, variant) {
			result = append(result, variant)
		}
	}

	logger.Debug("Query expanded",
		zap.String("query", query),
		zap.Int("variants", len(result)-1),
	)
	return result
}

// parseExpansions accepts numbered lines, bullet lines, or bare lines.
func parseExpansions(content string, maxCount int) []string {
	var expanded []string
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var query string
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			query = strings.TrimSpace(m[1])
		} else if strings.HasPrefix(line, "- ") {
			query = strings.TrimSpace(line[2:])
		} else {
			query = line
		}

		runes := len([]rune(query))
		if runes > 5 && runes < 100 {
			expanded = append(expanded, query)
		}
		if len(expanded) >= maxCount {
			break
		}
	}
	return expanded
}

func truncateList(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return append(items[:max:max], fmt.Sprintf("and %d more", len(items)-max))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
