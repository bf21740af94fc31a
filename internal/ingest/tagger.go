package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/pkg/logger"
)

// DefaultTag is attached when tag generation fails or yields nothing, so
// every chunk stays filterable by tag.
const DefaultTag = "general"

const taggerSystemPrompt = "You are a concise taxonomy/tag generator. " +
	"Respond ONLY with a JSON array of strings."

// Tagger derives topic tags for a document from its title and a content
// sample.
type Tagger struct {
	llm     *llm.Client
	maxTags int
}

func NewTagger(client *llm.Client, maxTags int) *Tagger {
	if maxTags <= 0 {
		maxTags = 6
	}
	return &Tagger{llm: client, maxTags: maxTags}
}

// Tags generates up to maxTags lowercase hyphenated tags. Any failure in
// the model call or its output degrades to the default tag rather than
// failing ingestion.
func (t *Tagger) Tags(ctx context.Context, title, sample string) []string {
	prompt := fmt.Sprintf(
		"Generate at most %d short topic tags for the following document.\n"+
			"- lowercase, hyphenated, no spaces\n"+
			"- output a JSON array of strings only, no explanation\n\n"+
			"Title: %s\n\nContent sample:\n%s",
		t.maxTags, title, sample,
	)

	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: taggerSystemPrompt,
		UserPrompt:   prompt,
		Temperature:  0.01,
	})
	if err != nil {
		logger.Debug("Tag generation failed", zap.String("title", title), zap.Error(err))
		return []string{DefaultTag}
	}

	tags := parseTags(resp.Content, t.maxTags)
	if len(tags) == 0 {
		return []string{DefaultTag}
	}
	return tags
}

// parseTags accepts a JSON array, falling back to comma splitting for
// models that ignore the format instruction.
func parseTags(content string, maxTags int) []string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw []string
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		trimmed := strings.Trim(content, "[] \n\"'")
		for _, part := range strings.Split(trimmed, ",") {
			raw = append(raw, strings.Trim(part, " \"'"))
		}
	}

	seen := make(map[string]bool)
	var tags []string
	for _, t := range raw {
		v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "-")
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		tags = append(tags, v)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
