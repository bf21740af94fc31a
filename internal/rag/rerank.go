package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/utils"
)

// Weights combine the rerank score components. They should sum to 1.0.
type Weights struct {
	LLM        float64
	Feedback   float64
	Tag        float64
	Similarity float64
}

// DefaultWeights favor the model's relevance judgment while letting user
// feedback and metadata nudge the order.
var DefaultWeights = Weights{LLM: 0.5, Feedback: 0.2, Tag: 0.15, Similarity: 0.15}

// parseFailScore is assigned to every chunk of a batch whose model response
// could not be parsed.
const parseFailScore = 0.5

// Reranker reorders retrieval candidates by combining model relevance
// judgments with feedback, tag overlap, and vector similarity.
type Reranker struct {
	llm      Completer
	model    string
	booster  Booster
	cache    ScoreCache
	weights  Weights
	cacheTTL time.Duration
}

func NewReranker(client Completer, model string, booster Booster, cache ScoreCache, weights Weights, cacheTTL time.Duration) *Reranker {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	if sum := weights.LLM + weights.Feedback + weights.Tag + weights.Similarity; sum < 0.99 || sum > 1.01 {
		logger.Warn("Rerank weights do not sum to 1.0", zap.Float64("sum", sum))
	}
	return &Reranker{
		llm:      client,
		model:    model,
		booster:  booster,
		cache:    cache,
		weights:  weights,
		cacheTTL: cacheTTL,
	}
}

// Rerank scores candidates and returns the top-K by final score. Relevance
// scores are cached per (question, candidate set); when the model is
// unreachable for every batch the order degrades to similarity alone.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []Candidate, queryTags []string, topK int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}

	llmScores, degraded := r.relevanceScores(ctx, question, candidates, ids)

	boosts := map[string]float64{}
	if r.booster != nil {
		var err error
		boosts, err = r.booster.BoostMap(ids)
		if err != nil {
			logger.Warn("Feedback boost lookup failed, treating all as neutral", zap.Error(err))
			boosts = map[string]float64{}
		}
	}

	scored := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Scores.Similarity = c.Similarity
		c.Scores.LLM = llmScores[c.ChunkID]
		c.Scores.Feedback = feedbackScore(boosts, c.ChunkID)
		c.Scores.Tag = tagScore(c.Tags, queryTags)

		if degraded {
			// Similarity-only fallback: no usable model judgment at all.
			c.FinalScore = c.Similarity
		} else {
			c.FinalScore = r.weights.LLM*c.Scores.LLM +
				r.weights.Feedback*c.Scores.Feedback +
				r.weights.Tag*c.Scores.Tag +
				r.weights.Similarity*c.Scores.Similarity
		}
		scored[i] = c
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		return scored[i].ChunkID < scored[j].ChunkID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}

	logger.Info("Reranking completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(scored)),
		zap.Bool("degraded", degraded),
	)
	return scored, nil
}

// relevanceScores returns model relevance per chunk ID, via cache when the
// same question hit the same candidate set recently. degraded is true only
// when every batch failed outright.
func (r *Reranker) relevanceScores(ctx context.Context, question string, candidates []Candidate, ids []string) (map[string]float64, bool) {
	cacheKey := utils.CacheKey(question, ids)

	if r.cache != nil {
		if scores, ok, err := r.cache.GetRerankScores(ctx, cacheKey); err == nil && ok {
			logger.Debug("Rerank cache hit", zap.String("key", cacheKey))
			metrics.CacheHits.WithLabelValues("rerank").Inc()
			return scores, false
		} else if err != nil {
			logger.Warn("Rerank cache read failed", zap.Error(err))
		}
		metrics.CacheMisses.WithLabelValues("rerank").Inc()
	}

	scores := make(map[string]float64, len(candidates))
	batchSize := optimalBatchSize(len(candidates))
	failedBatches, totalBatches := 0, 0

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		totalBatches++

		batchScores, err := r.evaluateBatch(ctx, question, candidates[start:end])
		if err != nil {
			failedBatches++
			logger.Warn("Rerank batch evaluation failed", zap.Error(err))
			for _, c := range candidates[start:end] {
				scores[c.ChunkID] = parseFailScore
			}
			continue
		}
		for id, s := range batchScores {
			scores[id] = s
		}
	}

	// Only fully scored sets are cached; a partial failure cached for the
	// TTL would freeze placeholder scores a fresh call could replace.
	degraded := failedBatches == totalBatches
	if failedBatches == 0 && r.cache != nil {
		if err := r.cache.SetRerankScores(ctx, cacheKey, scores, r.cacheTTL); err != nil {
			logger.Warn("Rerank cache write failed", zap.Error(err))
		}
	}
	return scores, degraded
}

// optimalBatchSize trades latency against per-call quality: small candidate
// sets go out in small batches, large sets in batches of up to 10.
func optimalBatchSize(n int) int {
	switch {
	case n <= 5:
		return 3
	case n <= 10:
		return 5
	case n <= 20:
		return 7
	default:
		return 10
	}
}

type relevanceItem struct {
	ChunkIndex int     `json:"chunk_index"`
	Relevance  float64 `json:"relevance"`
	Reason     string  `json:"reason"`
}

type relevanceResponse struct {
	Scores []relevanceItem `json:"scores"`
}

func (r *Reranker) evaluateBatch(ctx context.Context, question string, batch []Candidate) (map[string]float64, error) {
	var sb strings.Builder
	for i, c := range batch {
		title := c.DocTitle
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&sb, "Chunk %d (document: %s):\n%s\n\n", i, title, truncateRunes(c.Content, 800))
	}

	prompt := fmt.Sprintf(`Question: %s

Chunks (%d total):
%s
Score every chunk from 0.0 to 1.0 by whether it actually answers the question.

- 1.0: contains specific information that directly answers the question
- 0.7-0.9: relevant, partial answer
- 0.4-0.6: loosely related, limited help
- 0.1-0.3: barely related; empty forms, tables of contents, keyword-only matches
- 0.0: completely unrelated

Score concrete figures, conditions and procedures high; score blank templates
and index pages low even when keywords match.

Respond with JSON only, scoring all %d chunks:
{"scores": [{"chunk_index": 0, "relevance": 0.9, "reason": "..."}]}`,
		question, len(batch), sb.String(), len(batch))

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  prompt,
		Model:       r.model,
		Temperature: 0.01,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(batch))

	var parsed relevanceResponse
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &parsed); err != nil || len(parsed.Scores) == 0 {
		// Unparseable judgment: neutral score for the whole batch.
		logger.Warn("Rerank response unparseable, scoring batch neutral",
			zap.String("content", truncateRunes(resp.Content, 200)),
		)
		for _, c := range batch {
			scores[c.ChunkID] = parseFailScore
		}
		return scores, nil
	}

	for _, item := range parsed.Scores {
		if item.ChunkIndex < 0 || item.ChunkIndex >= len(batch) {
			continue
		}
		scores[batch[item.ChunkIndex].ChunkID] = clamp01(item.Relevance)
	}

	// Chunks the model skipped get a conservative similarity-derived score.
	for _, c := range batch {
		if _, ok := scores[c.ChunkID]; !ok {
			scores[c.ChunkID] = 0.7 * c.Similarity
		}
	}
	return scores, nil
}

// feedbackScore maps a boost factor in [0.5, 1.5] onto [0, 1], neutral 0.5
// for unvoted chunks.
func feedbackScore(boosts map[string]float64, chunkID string) float64 {
	factor, ok := boosts[chunkID]
	if !ok {
		return 0.5
	}
	return clamp01(factor - 0.5)
}

// tagScore is the fraction of query tags present on the chunk. With no
// query tags every candidate scores zero, which leaves the order unchanged.
func tagScore(chunkTags, queryTags []string) float64 {
	if len(queryTags) == 0 || len(chunkTags) == 0 {
		return 0
	}

	set := make(map[string]bool, len(chunkTags))
	for _, t := range chunkTags {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}

	overlap := 0
	for _, t := range queryTags {
		if set[strings.ToLower(strings.TrimSpace(t))] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTags))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
