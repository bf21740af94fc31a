package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docqa_stage_duration_seconds",
			Help:    "Per-stage pipeline duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	LLMSlotRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_llm_slot_requests_total",
			Help: "Upstream requests per credential slot",
		},
		[]string{"slot", "outcome"},
	)

	CandidateCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docqa_retrieval_candidates",
			Help:    "Merged candidate count per query",
			Buckets: []float64{0, 5, 10, 20, 30, 40, 50},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_documents_ingested_total",
			Help: "Total documents ingested",
		},
	)

	DocumentsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_documents_skipped_total",
			Help: "Total duplicate uploads skipped",
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docqa_chunks_indexed_total",
			Help: "Total chunks written to the vector index",
		},
	)

	FeedbackVotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docqa_feedback_votes_total",
			Help: "Total feedback votes recorded",
		},
		[]string{"direction"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(LLMSlotRequests)
	prometheus.MustRegister(CandidateCount)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(DocumentsSkipped)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(FeedbackVotes)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
