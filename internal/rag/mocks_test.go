package rag

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/vector/milvus"
)

type mockCompleter struct {
	mu         sync.Mutex
	responses  []string
	idx        int
	err        error
	failCall   int
	calls      int
	lastPrompt string
}

func (m *mockCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastPrompt = req.UserPrompt

	if m.err != nil {
		return nil, m.err
	}
	if m.failCall != 0 && m.calls == m.failCall {
		return nil, errors.New("completion unavailable")
	}

	i := m.idx
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.idx++
	return &llm.CompletionResponse{Content: m.responses[i]}, nil
}

func (m *mockCompleter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockEmbedder struct {
	mu         sync.Mutex
	err        error
	failOnText string
	seen       []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.failOnText != "" && text == m.failOnText {
		return nil, errEmbedFail
	}
	m.seen = append(m.seen, text)
	return []float32{float32(len(text)), 1}, nil
}

var errEmbedFail = errors.New("embedding unavailable")

type mockSearcher struct {
	mu      sync.Mutex
	byQuery map[int][]milvus.SearchResult
	results []milvus.SearchResult
	err     error
	calls   int
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, _ int, _ string) ([]milvus.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := m.calls
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if m.byQuery != nil {
		return m.byQuery[call], nil
	}
	return m.results, nil
}

type mockBooster struct {
	boosts map[string]float64
	err    error
}

func (m *mockBooster) BoostMap(ids []string) (map[string]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		if f, ok := m.boosts[id]; ok {
			out[id] = f
		} else {
			out[id] = 1.0
		}
	}
	return out, nil
}

type mockEmbedCache struct {
	mu     sync.Mutex
	stored map[string][]float32
	reads  int
	writes int
}

func newMockEmbedCache() *mockEmbedCache {
	return &mockEmbedCache{stored: make(map[string][]float32)}
}

func (m *mockEmbedCache) GetEmbedding(_ context.Context, textHash string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	embedding, ok := m.stored[textHash]
	return embedding, ok, nil
}

func (m *mockEmbedCache) SetEmbedding(_ context.Context, textHash string, embedding []float32, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.stored[textHash] = embedding
	return nil
}

type mockScoreCache struct {
	mu     sync.Mutex
	stored map[string]map[string]float64
	reads  int
	writes int
}

func newMockScoreCache() *mockScoreCache {
	return &mockScoreCache{stored: make(map[string]map[string]float64)}
}

func (m *mockScoreCache) GetRerankScores(_ context.Context, key string) (map[string]float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	scores, ok := m.stored[key]
	return scores, ok, nil
}

func (m *mockScoreCache) SetRerankScores(_ context.Context, key string, scores map[string]float64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.stored[key] = scores
	return nil
}
