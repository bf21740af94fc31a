package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateSet(similarities map[string]float64) []Candidate {
	var out []Candidate
	for id, sim := range similarities {
		out = append(out, Candidate{ChunkID: id, Content: "content " + id, Similarity: sim})
	}
	return out
}

func newTestReranker(mock *mockCompleter, booster Booster, cache ScoreCache) *Reranker {
	return NewReranker(mock, "rerank-model", booster, cache, DefaultWeights, time.Hour)
}

func TestRerankCombinesWeightedScores(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		`{"scores": [
			{"chunk_index": 0, "relevance": 1.0, "reason": "direct answer"},
			{"chunk_index": 1, "relevance": 0.2, "reason": "barely related"}]}`,
	}}
	r := newTestReranker(mock, &mockBooster{}, nil)

	candidates := []Candidate{
		{ChunkID: "c1", Content: "a", Similarity: 0.6},
		{ChunkID: "c2", Content: "b", Similarity: 0.9},
	}

	ranked, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	// 0.5*llm + 0.2*feedback(neutral 0.5) + 0.15*tag(0) + 0.15*similarity
	assert.InDelta(t, 0.5*1.0+0.2*0.5+0.15*0.6, ranked[0].FinalScore, 1e-9)
	assert.Equal(t, "c1", ranked[0].ChunkID)
	assert.InDelta(t, 0.5*0.2+0.2*0.5+0.15*0.9, ranked[1].FinalScore, 1e-9)
}

func TestRerankFeedbackMonotonic(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		`{"scores": [
			{"chunk_index": 0, "relevance": 0.5},
			{"chunk_index": 1, "relevance": 0.5}]}`,
	}}
	booster := &mockBooster{boosts: map[string]float64{"liked": 1.5, "disliked": 0.5}}
	r := newTestReranker(mock, booster, nil)

	candidates := []Candidate{
		{ChunkID: "disliked", Content: "a", Similarity: 0.7},
		{ChunkID: "liked", Content: "b", Similarity: 0.7},
	}

	ranked, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "liked", ranked[0].ChunkID)
	assert.Greater(t, ranked[0].FinalScore, ranked[1].FinalScore)
	assert.Equal(t, 1.0, ranked[0].Scores.Feedback)
	assert.Equal(t, 0.0, ranked[1].Scores.Feedback)
}

func TestRerankTagOverlap(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		`{"scores": [
			{"chunk_index": 0, "relevance": 0.5},
			{"chunk_index": 1, "relevance": 0.5}]}`,
	}}
	r := newTestReranker(mock, &mockBooster{}, nil)

	candidates := []Candidate{
		{ChunkID: "c1", Content: "a", Similarity: 0.7, Tags: []string{"hr", "leave"}},
		{ChunkID: "c2", Content: "b", Similarity: 0.7, Tags: []string{"finance"}},
	}

	ranked, err := r.Rerank(context.Background(), "question", candidates, []string{"hr", "leave"}, 5)
	require.NoError(t, err)

	assert.Equal(t, "c1", ranked[0].ChunkID)
	assert.Equal(t, 1.0, ranked[0].Scores.Tag)
	assert.Equal(t, 0.0, ranked[1].Scores.Tag)
}

func TestRerankDegradedFallsBackToSimilarity(t *testing.T) {
	mock := &mockCompleter{err: errors.New("upstream down")}
	r := newTestReranker(mock, &mockBooster{}, nil)

	candidates := []Candidate{
		{ChunkID: "low", Content: "a", Similarity: 0.3},
		{ChunkID: "high", Content: "b", Similarity: 0.9},
	}

	ranked, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, "high", ranked[0].ChunkID)
	assert.Equal(t, 0.9, ranked[0].FinalScore)
	assert.Equal(t, 0.3, ranked[1].FinalScore)
}

func TestRerankUnparseableBatchScoresNeutral(t *testing.T) {
	mock := &mockCompleter{responses: []string{"this is not json"}}
	r := newTestReranker(mock, &mockBooster{}, nil)

	candidates := []Candidate{{ChunkID: "c1", Content: "a", Similarity: 0.6}}

	ranked, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)
	require.Len(t, ranked, 1)

	// Parse failure is not degradation: the weighted combination still runs
	// with the neutral relevance score.
	assert.Equal(t, 0.5, ranked[0].Scores.LLM)
	assert.InDelta(t, 0.5*0.5+0.2*0.5+0.15*0.6, ranked[0].FinalScore, 1e-9)
}

func TestRerankSkippedChunkGetsSimilarityDerivedScore(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		`{"scores": [{"chunk_index": 0, "relevance": 0.9}]}`,
	}}
	r := newTestReranker(mock, &mockBooster{}, nil)

	candidates := []Candidate{
		{ChunkID: "scored", Content: "a", Similarity: 0.6},
		{ChunkID: "skipped", Content: "b", Similarity: 0.8},
	}

	ranked, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)

	byID := make(map[string]Candidate)
	for _, c := range ranked {
		byID[c.ChunkID] = c
	}
	assert.Equal(t, 0.9, byID["scored"].Scores.LLM)
	assert.InDelta(t, 0.7*0.8, byID["skipped"].Scores.LLM, 1e-9)
}

func TestRerankCacheSkipsModelCall(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		`{"scores": [{"chunk_index": 0, "relevance": 0.9}]}`,
	}}
	cache := newMockScoreCache()
	r := newTestReranker(mock, &mockBooster{}, cache)

	candidates := []Candidate{{ChunkID: "c1", Content: "a", Similarity: 0.6}}

	first, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)
	require.Equal(t, 1, mock.callCount())
	require.Equal(t, 1, cache.writes)

	second, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)

	// Second pass served from cache: no further model calls, same order.
	assert.Equal(t, 1, mock.callCount())
	assert.Equal(t, first[0].FinalScore, second[0].FinalScore)
}

func TestRerankPartialBatchFailureNotCached(t *testing.T) {
	// Six candidates go out as batches of five and one; the first batch
	// fails, the second parses.
	mock := &mockCompleter{
		failCall:  1,
		responses: []string{`{"scores": [{"chunk_index": 0, "relevance": 0.9}]}`},
	}
	cache := newMockScoreCache()
	r := newTestReranker(mock, &mockBooster{}, cache)

	var candidates []Candidate
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6"} {
		candidates = append(candidates, Candidate{ChunkID: id, Content: "content " + id, Similarity: 0.6})
	}

	ranked, err := r.Rerank(context.Background(), "question", candidates, nil, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 6)
	require.Equal(t, 2, mock.callCount())

	// Placeholder scores from the failed batch must not be frozen for the
	// cache TTL; only fully scored sets are written.
	assert.Zero(t, cache.writes)

	byID := make(map[string]Candidate)
	for _, c := range ranked {
		byID[c.ChunkID] = c
	}
	assert.Equal(t, 0.9, byID["c6"].Scores.LLM)
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		assert.Equal(t, 0.5, byID[id].Scores.LLM)
	}
	// One scored batch means the weighted combination still applies.
	assert.InDelta(t, 0.5*0.9+0.2*0.5+0.15*0.6, byID["c6"].FinalScore, 1e-9)
}

func TestRerankDegradedResultNotCached(t *testing.T) {
	mock := &mockCompleter{err: errors.New("upstream down")}
	cache := newMockScoreCache()
	r := newTestReranker(mock, &mockBooster{}, cache)

	candidates := []Candidate{{ChunkID: "c1", Content: "a", Similarity: 0.6}}

	_, err := r.Rerank(context.Background(), "question", candidates, nil, 5)
	require.NoError(t, err)
	assert.Zero(t, cache.writes)
}

func TestRerankTopKCap(t *testing.T) {
	mock := &mockCompleter{responses: []string{
		`{"scores": []}`,
	}}
	r := newTestReranker(mock, &mockBooster{}, nil)

	candidates := candidateSet(map[string]float64{
		"c1": 0.9, "c2": 0.8, "c3": 0.7, "c4": 0.6,
	})

	ranked, err := r.Rerank(context.Background(), "question", candidates, nil, 2)
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := newTestReranker(&mockCompleter{responses: []string{"unused"}}, &mockBooster{}, nil)

	ranked, err := r.Rerank(context.Background(), "question", nil, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestOptimalBatchSize(t *testing.T) {
	assert.Equal(t, 3, optimalBatchSize(4))
	assert.Equal(t, 5, optimalBatchSize(10))
	assert.Equal(t, 7, optimalBatchSize(15))
	assert.Equal(t, 10, optimalBatchSize(40))
}
