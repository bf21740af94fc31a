package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/vector/milvus"
)

func hit(chunkID string, similarity float64) milvus.SearchResult {
	return milvus.SearchResult{ChunkID: chunkID, Content: "content " + chunkID, Similarity: similarity}
}

func TestRetrieveMultiKeepsMaxSimilarity(t *testing.T) {
	searcher := &mockSearcher{byQuery: map[int][]milvus.SearchResult{
		0: {hit("c1", 0.4), hit("c2", 0.9)},
		1: {hit("c1", 0.8), hit("c3", 0.5)},
	}}
	r := NewRetriever(&mockEmbedder{}, searcher, nil, 30, 50)

	candidates, err := r.RetrieveMulti(context.Background(), []string{"variant a", "variant b"}, "")
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	byID := make(map[string]Candidate)
	for _, c := range candidates {
		byID[c.ChunkID] = c
	}
	assert.Equal(t, 0.8, byID["c1"].Similarity)
	assert.Equal(t, 0.9, byID["c2"].Similarity)
	assert.Equal(t, 0.5, byID["c3"].Similarity)

	// Sorted by similarity descending.
	assert.Equal(t, "c2", candidates[0].ChunkID)
}

func TestRetrieveMultiCapsCandidates(t *testing.T) {
	var results []milvus.SearchResult
	for i := 0; i < 80; i++ {
		results = append(results, hit(fmt.Sprintf("c%03d", i), float64(i)/100))
	}
	searcher := &mockSearcher{results: results}
	r := NewRetriever(&mockEmbedder{}, searcher, nil, 30, 50)

	candidates, err := r.RetrieveMulti(context.Background(), []string{"only"}, "")
	require.NoError(t, err)
	assert.Len(t, candidates, 50)
	assert.Equal(t, "c079", candidates[0].ChunkID)
}

func TestRetrieveMultiRecordsVariant(t *testing.T) {
	searcher := &mockSearcher{byQuery: map[int][]milvus.SearchResult{
		0: {hit("c1", 0.4)},
		1: {hit("c1", 0.8), hit("c2", 0.5)},
	}}
	embedder := &mockEmbedder{}
	r := NewRetriever(embedder, searcher, nil, 30, 50)

	// Variants run one at a time so the searcher's call order is stable.
	first, err := r.RetrieveMulti(context.Background(), []string{"variant a"}, "")
	require.NoError(t, err)
	second, err := r.RetrieveMulti(context.Background(), []string{"variant b"}, "")
	require.NoError(t, err)

	// Each candidate names the variant that produced its winning hit.
	assert.Equal(t, "variant a", first[0].Variant)
	for _, c := range second {
		assert.Equal(t, "variant b", c.Variant)
	}
}

func TestRetrieveMultiUsesEmbeddingCache(t *testing.T) {
	searcher := &mockSearcher{results: []milvus.SearchResult{hit("c1", 0.7)}}
	embedder := &mockEmbedder{}
	cache := newMockEmbedCache()
	r := NewRetriever(embedder, searcher, cache, 30, 50)

	_, err := r.RetrieveMulti(context.Background(), []string{"what is the leave policy"}, "")
	require.NoError(t, err)
	require.Len(t, embedder.seen, 1)
	require.Equal(t, 1, cache.writes)

	// The repeated variant is served from cache without touching the model.
	_, err = r.RetrieveMulti(context.Background(), []string{"what is the leave policy"}, "")
	require.NoError(t, err)
	assert.Len(t, embedder.seen, 1)
	assert.Equal(t, 1, cache.writes)
	assert.Equal(t, 2, cache.reads)
}

func TestRetrieveMultiToleratesPartialFailure(t *testing.T) {
	searcher := &mockSearcher{results: []milvus.SearchResult{hit("c1", 0.7)}}
	embedder := &mockEmbedder{failOnText: "broken variant"}
	r := NewRetriever(embedder, searcher, nil, 30, 50)

	candidates, err := r.RetrieveMulti(context.Background(), []string{"good variant", "broken variant"}, "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "c1", candidates[0].ChunkID)
}

func TestRetrieveMultiAllVariantsFailed(t *testing.T) {
	searcher := &mockSearcher{err: errors.New("index unavailable")}
	r := NewRetriever(&mockEmbedder{}, searcher, nil, 30, 50)

	_, err := r.RetrieveMulti(context.Background(), []string{"a", "b"}, "")
	require.Error(t, err)
}

func TestRetrieveMultiEmptyQueries(t *testing.T) {
	r := NewRetriever(&mockEmbedder{}, &mockSearcher{}, nil, 30, 50)

	candidates, err := r.RetrieveMulti(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRetrieveMultiDeterministicTiebreak(t *testing.T) {
	searcher := &mockSearcher{results: []milvus.SearchResult{
		hit("c_b", 0.5), hit("c_a", 0.5),
	}}
	r := NewRetriever(&mockEmbedder{}, searcher, nil, 30, 50)

	candidates, err := r.RetrieveMulti(context.Background(), []string{"q"}, "")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "c_a", candidates[0].ChunkID)
	assert.Equal(t, "c_b", candidates[1].ChunkID)
}
