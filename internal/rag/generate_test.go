package rag

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/llm"
)

type mockStreamer struct {
	mockCompleter
}

func (m *mockStreamer) Stream(_ context.Context, _ llm.CompletionRequest) (*openai.ChatCompletionStream, error) {
	return nil, errors.New("streaming not supported in tests")
}

func TestGenerateUsesPassages(t *testing.T) {
	mock := &mockStreamer{mockCompleter{responses: []string{"You get 15 days [1]."}}}
	g := NewGenerator(mock)

	passages := []Candidate{
		{ChunkID: "c1", DocTitle: "Leave Policy", SectionTitle: "제15조 (연차휴가)", Content: "연차는 15일이다.", PageStart: 3, PageEnd: 4},
	}

	answer, err := g.Generate(context.Background(), "how many vacation days?", passages)
	require.NoError(t, err)
	assert.Equal(t, "You get 15 days [1].", answer)

	assert.Contains(t, mock.lastPrompt, "[1] Leave Policy, 제15조 (연차휴가) (pages 3-4)")
	assert.Contains(t, mock.lastPrompt, "연차는 15일이다.")
	assert.Contains(t, mock.lastPrompt, "Question: how many vacation days?")
}

func TestGenerateErrorPropagates(t *testing.T) {
	mock := &mockStreamer{mockCompleter{err: errors.New("upstream down")}}
	g := NewGenerator(mock)

	_, err := g.Generate(context.Background(), "q", nil)
	require.Error(t, err)
}

func TestBuildGenerationPromptSinglePage(t *testing.T) {
	prompt := buildGenerationPrompt("q", []Candidate{
		{DocTitle: "Handbook", Content: "text", PageStart: 7, PageEnd: 7},
	})
	assert.Contains(t, prompt, "[1] Handbook (page 7)")
}

func TestBuildGenerationPromptNoPages(t *testing.T) {
	prompt := buildGenerationPrompt("q", []Candidate{
		{DocTitle: "Wiki Export", Content: "text"},
	})
	assert.Contains(t, prompt, "[1] Wiki Export\n")
	assert.NotContains(t, prompt, "page")
}
