package rag

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/utils"
)

const embeddingCacheTTL = 30 * time.Minute

// Retriever fans retrieval out over query variants and merges the hits into
// one deduplicated candidate pool.
type Retriever struct {
	embedder      QueryEmbedder
	searcher      Searcher
	embedCache    EmbeddingCache
	kPerVariant   int
	maxCandidates int
}

func NewRetriever(embedder QueryEmbedder, searcher Searcher, embedCache EmbeddingCache, kPerVariant, maxCandidates int) *Retriever {
	if kPerVariant <= 0 {
		kPerVariant = 30
	}
	if maxCandidates <= 0 {
		maxCandidates = 50
	}
	return &Retriever{
		embedder:      embedder,
		searcher:      searcher,
		embedCache:    embedCache,
		kPerVariant:   kPerVariant,
		maxCandidates: maxCandidates,
	}
}

// embed resolves a query embedding through the cache when one is configured.
// Cache failures fall through to the model.
func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	if r.embedCache == nil {
		return r.embedder.Embed(ctx, query)
	}

	key := utils.HashString(query)[:16]
	if cached, ok, err := r.embedCache.GetEmbedding(ctx, key); err == nil && ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return cached, nil
	} else if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if err := r.embedCache.SetEmbedding(ctx, key, embedding, embeddingCacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return embedding, nil
}

// RetrieveMulti runs every query variant concurrently and merges results by
// chunk ID, keeping the maximum similarity a chunk achieved across variants.
// A variant that fails only shrinks the pool; retrieval errors out only when
// every variant failed.
func (r *Retriever) RetrieveMulti(ctx context.Context, queries []string, expr string) ([]Candidate, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		merged   = make(map[string]Candidate)
		failures int
		lastErr  error
	)

	for _, query := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()

			embedding, err := r.embed(ctx, q)
			if err != nil {
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				logger.Warn("Query embedding failed", zap.String("query", q), zap.Error(err))
				return
			}

			results, err := r.searcher.Search(ctx, embedding, r.kPerVariant, expr)
			if err != nil {
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				logger.Warn("Vector search failed", zap.String("query", q), zap.Error(err))
				return
			}

			mu.Lock()
			for _, res := range results {
				existing, ok := merged[res.ChunkID]
				if !ok || res.Similarity > existing.Similarity {
					merged[res.ChunkID] = candidateFromSearch(res, q)
				}
			}
			mu.Unlock()
		}(query)
	}
	wg.Wait()

	if failures == len(queries) {
		return nil, lastErr
	}

	candidates := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	if len(candidates) > r.maxCandidates {
		candidates = candidates[:r.maxCandidates]
	}
	metrics.CandidateCount.Observe(float64(len(candidates)))

	logger.Debug("Multi-query retrieval merged",
		zap.Int("variants", len(queries)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}
