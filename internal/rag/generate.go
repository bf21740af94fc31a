package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/pkg/logger"
)

const generateSystemPrompt = `You answer questions using only the provided document passages.

Rules:
1. Base every statement on the passages; never invent facts.
2. Cite passages inline as [1], [2] matching their numbering.
3. When the passages do not contain the answer, say so plainly and name the
   closest document instead of guessing.
4. Quote concrete figures, conditions and deadlines exactly as written.
5. Answer in the language of the question.`

// Generator produces the final answer from the reranked passages.
type Generator struct {
	llm Streamer
}

func NewGenerator(client Streamer) *Generator {
	return &Generator{llm: client}
}

// Generate returns a complete answer in one call.
func (g *Generator) Generate(ctx context.Context, question string, passages []Candidate) (string, error) {
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: generateSystemPrompt,
		UserPrompt:   buildGenerationPrompt(question, passages),
		Temperature:  0.2,
	})
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	return resp.Content, nil
}

// GenerateStream streams the answer token by token through onToken and
// returns the full accumulated text. onToken returning an error aborts the
// stream, which covers disconnected clients.
func (g *Generator) GenerateStream(ctx context.Context, question string, passages []Candidate, onToken func(token string) error) (string, error) {
	stream, err := g.llm.Stream(ctx, llm.CompletionRequest{
		SystemPrompt: generateSystemPrompt,
		UserPrompt:   buildGenerationPrompt(question, passages),
		Temperature:  0.2,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open answer stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("answer stream failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		full.WriteString(token)
		if err := onToken(token); err != nil {
			logger.Debug("Token consumer aborted stream", zap.Error(err))
			return full.String(), err
		}
	}

	return full.String(), nil
}

func buildGenerationPrompt(question string, passages []Candidate) string {
	var sb strings.Builder
	sb.WriteString("Passages:\n\n")

	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s", i+1, p.DocTitle)
		if p.SectionTitle != "" {
			fmt.Fprintf(&sb, ", %s", p.SectionTitle)
		}
		if p.PageStart > 0 {
			if p.PageEnd > p.PageStart {
				fmt.Fprintf(&sb, " (pages %d-%d)", p.PageStart, p.PageEnd)
			} else {
				fmt.Fprintf(&sb, " (page %d)", p.PageStart)
			}
		}
		sb.WriteString("\n")
		sb.WriteString(p.Content)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n", question)
	return sb.String()
}
