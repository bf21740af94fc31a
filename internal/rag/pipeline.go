package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/pkg/logger"
)

// Pipeline stages reported to streaming clients, in execution order.
const (
	StageIntent   = "intent"
	StageExpand   = "expand"
	StageSearch   = "search"
	StageRerank   = "rerank"
	StageGenerate = "generate"
)

// StageFunc receives progress notifications. It may be nil.
type StageFunc func(stage, message string)

// TokenFunc receives answer tokens as they stream. It may be nil, in which
// case the answer is generated in one call.
type TokenFunc func(token string) error

// Request is one question with its caller scope.
type Request struct {
	Question string
	UserID   string
	Scope    Scope
	Tags     []string
	TopK     int
}

// Timings breaks the end-to-end latency down per stage, in milliseconds.
type Timings struct {
	IntentMs    int64 `json:"intent_ms"`
	RetrievalMs int64 `json:"retrieval_ms"`
	RerankMs    int64 `json:"rerank_ms"`
	GenerateMs  int64 `json:"generate_ms"`
	TotalMs     int64 `json:"total_ms"`
}

// Result is the full pipeline output for one question.
type Result struct {
	QueryID    string       `json:"query_id"`
	Answer     string       `json:"answer"`
	Intent     IntentResult `json:"intent"`
	SubQueries []SubQuery   `json:"sub_queries"`
	Passages   []Candidate  `json:"passages"`
	Timings    Timings      `json:"timings"`
}

// Orchestrator wires the pipeline stages: classify, decompose, expand,
// retrieve, rerank, generate.
type Orchestrator struct {
	classifier *Classifier
	decomposer *Decomposer
	expander   *Expander
	retriever  *Retriever
	reranker   *Reranker
	generator  *Generator
	inventory  *Inventory
	registry   *sqlite.Client
	topK       int
}

func NewOrchestrator(
	classifier *Classifier,
	decomposer *Decomposer,
	expander *Expander,
	retriever *Retriever,
	reranker *Reranker,
	generator *Generator,
	inventory *Inventory,
	registry *sqlite.Client,
	topK int,
) *Orchestrator {
	if topK <= 0 {
		topK = 5
	}
	return &Orchestrator{
		classifier: classifier,
		decomposer: decomposer,
		expander:   expander,
		retriever:  retriever,
		reranker:   reranker,
		generator:  generator,
		inventory:  inventory,
		registry:   registry,
		topK:       topK,
	}
}

// Answer runs the full pipeline for one question. Stage notifications fire
// before each phase; tokens stream through onToken when it is non-nil.
func (o *Orchestrator) Answer(ctx context.Context, req Request, onStage StageFunc, onToken TokenFunc) (*Result, error) {
	started := time.Now()
	notify := func(stage, message string) {
		if onStage != nil {
			onStage(stage, message)
		}
	}

	result := &Result{QueryID: uuid.NewString()}

	// Intent + decomposition, against the visible corpus.
	notify(StageIntent, "Working out what you are asking for")
	tIntent := time.Now()

	docContext := o.inventory.Context(ctx, req.Scope)
	result.Intent = o.classifier.Classify(ctx, req.Question, docContext.Summary)
	result.SubQueries = o.decomposer.Decompose(ctx, req.Question, result.Intent, docContext.Summary)
	result.Timings.IntentMs = time.Since(tIntent).Milliseconds()
	metrics.StageDuration.WithLabelValues(StageIntent).Observe(time.Since(tIntent).Seconds())

	logger.Info("Question classified",
		zap.String("query_id", result.QueryID),
		zap.String("intent", result.Intent.Type),
		zap.Int("subqueries", len(result.SubQueries)),
	)

	// Expansion + multi-query retrieval. The original question always
	// searches as-is, since decomposition and expansion can drift from it.
	notify(StageExpand, "Finding better search phrasings")
	tRetrieve := time.Now()

	expr := BuildFilterExpr(result.Intent.Type, req.Scope, docContext.Titles)

	queries := []string{req.Question}
	for _, sq := range result.SubQueries {
		if sq.Text == req.Question {
			continue
		}
		queries = append(queries, o.expander.Expand(ctx, sq.Text, docContext.Titles)...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notify(StageSearch, "Searching the documents")
	candidates, err := o.retriever.RetrieveMulti(ctx, queries, expr)
	if err != nil {
		return nil, err
	}
	result.Timings.RetrievalMs = time.Since(tRetrieve).Milliseconds()
	metrics.StageDuration.WithLabelValues(StageSearch).Observe(time.Since(tRetrieve).Seconds())

	if len(candidates) == 0 {
		result.Answer = "I could not find anything relevant in the available documents."
		result.Timings.TotalMs = time.Since(started).Milliseconds()
		o.recordHistory(req, result)
		return result, nil
	}

	// Rerank down to the passages that feed generation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notify(StageRerank, "Picking the most relevant passages")
	tRerank := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = o.topK
	}
	passages, err := o.reranker.Rerank(ctx, req.Question, candidates, req.Tags, topK)
	if err != nil {
		return nil, err
	}
	result.Passages = passages
	result.Timings.RerankMs = time.Since(tRerank).Milliseconds()
	metrics.StageDuration.WithLabelValues(StageRerank).Observe(time.Since(tRerank).Seconds())

	// Generation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notify(StageGenerate, "Writing the answer")
	tGenerate := time.Now()

	var answer string
	if onToken != nil {
		answer, err = o.generator.GenerateStream(ctx, req.Question, passages, onToken)
	} else {
		answer, err = o.generator.Generate(ctx, req.Question, passages)
	}
	if err != nil {
		return nil, err
	}
	result.Answer = answer
	result.Timings.GenerateMs = time.Since(tGenerate).Milliseconds()
	result.Timings.TotalMs = time.Since(started).Milliseconds()
	metrics.StageDuration.WithLabelValues(StageGenerate).Observe(time.Since(tGenerate).Seconds())

	logger.Info("Question answered",
		zap.String("query_id", result.QueryID),
		zap.Int("passages", len(passages)),
		zap.Int64("total_ms", result.Timings.TotalMs),
	)

	o.recordHistory(req, result)
	return result, nil
}

// recordHistory persists the answered query. Failures are logged, not
// surfaced: history is bookkeeping, not part of the answer path.
func (o *Orchestrator) recordHistory(req Request, result *Result) {
	if o.registry == nil {
		return
	}

	sources := make([]string, 0, len(result.Passages))
	for _, p := range result.Passages {
		sources = append(sources, p.ChunkID)
	}

	err := o.registry.InsertQueryRecord(&models.QueryRecord{
		ID:        result.QueryID,
		UserID:    req.UserID,
		QueryText: req.Question,
		Intent:    result.Intent.Type,
		Response:  result.Answer,
		Sources:   sources,
		LatencyMs: result.Timings.TotalMs,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record query history", zap.Error(err))
	}
}
