package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/vector/milvus"
)

func newTestRegistry(t *testing.T) *sqlite.Client {
	t.Helper()

	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	return db
}

func newTestOrchestrator(t *testing.T, searcher Searcher, answer string) (*Orchestrator, *sqlite.Client) {
	t.Helper()
	registry := newTestRegistry(t)

	classifier := NewClassifier(&mockCompleter{responses: []string{
		`{"type": "info_request", "confidence": 0.9}`,
	}})
	decomposer := NewDecomposer(&mockCompleter{responses: []string{"[]"}}, 5)
	expander := NewExpander(&mockCompleter{responses: []string{"1. vacation days allowance"}}, 3)
	retriever := NewRetriever(&mockEmbedder{}, searcher, nil, 30, 50)
	reranker := NewReranker(&mockCompleter{responses: []string{
		`{"scores": [{"chunk_index": 0, "relevance": 0.9}]}`,
	}}, "rerank-model", &mockBooster{}, nil, DefaultWeights, time.Hour)
	generator := NewGenerator(&mockStreamer{mockCompleter{responses: []string{answer}}})
	inventory := NewInventory(registry, nil, time.Minute)

	return NewOrchestrator(
		classifier, decomposer, expander, retriever, reranker, generator,
		inventory, registry, 5,
	), registry
}

func TestAnswerEndToEnd(t *testing.T) {
	searcher := &mockSearcher{results: []milvus.SearchResult{
		{ChunkID: "c1", Content: "연차는 15일이다.", DocTitle: "Leave Policy", Similarity: 0.8},
	}}
	o, registry := newTestOrchestrator(t, searcher, "You get 15 days [1].")

	var stages []string
	result, err := o.Answer(context.Background(), Request{
		Question: "how many vacation days?",
		UserID:   "alice",
		Scope:    Scope{Owner: "alice"},
	}, func(stage, _ string) { stages = append(stages, stage) }, nil)

	require.NoError(t, err)
	assert.Equal(t, "You get 15 days [1].", result.Answer)
	assert.Equal(t, IntentInfoRequest, result.Intent.Type)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "c1", result.Passages[0].ChunkID)
	assert.NotEmpty(t, result.QueryID)
	assert.Equal(t, []string{StageIntent, StageExpand, StageSearch, StageRerank, StageGenerate}, stages)

	// The answered query lands in history.
	history, err := registry.ListQueryHistory("alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"c1"}, history[0].Sources)
	assert.Equal(t, "You get 15 days [1].", history[0].Response)
}

func TestAnswerStopsAfterCancel(t *testing.T) {
	searcher := &mockSearcher{results: []milvus.SearchResult{
		{ChunkID: "c1", Content: "연차는 15일이다.", DocTitle: "Leave Policy", Similarity: 0.8},
	}}
	o, _ := newTestOrchestrator(t, searcher, "unused")

	ctx, cancel := context.WithCancel(context.Background())

	// The client goes away mid-pipeline; later stages must not run.
	var stages []string
	onStage := func(stage, _ string) {
		stages = append(stages, stage)
		if stage == StageSearch {
			cancel()
		}
	}

	result, err := o.Answer(ctx, Request{
		Question: "how many vacation days?",
		UserID:   "alice",
		Scope:    Scope{Owner: "alice"},
	}, onStage, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.NotContains(t, stages, StageRerank)
	assert.NotContains(t, stages, StageGenerate)
}

func TestAnswerNoCandidates(t *testing.T) {
	searcher := &mockSearcher{}
	o, _ := newTestOrchestrator(t, searcher, "unused")

	result, err := o.Answer(context.Background(), Request{
		Question: "how many vacation days?",
		UserID:   "alice",
	}, nil, nil)

	require.NoError(t, err)
	assert.Contains(t, result.Answer, "could not find")
	assert.Empty(t, result.Passages)
}
