package rag

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/vector/milvus"
)

// Intent types for a user question.
const (
	IntentDocRequest  = "doc_request"
	IntentInfoRequest = "info_request"
	IntentMultiStep   = "multi_step"
)

// IntentResult is the classified intent with the model's confidence.
type IntentResult struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// SubQuery is one single-intent search query decomposed from the question.
type SubQuery struct {
	Text     string `json:"text"`
	Focus    string `json:"focus"`
	Priority int    `json:"priority"`
}

// ScoreBreakdown holds the rerank score components, each in [0, 1].
type ScoreBreakdown struct {
	LLM        float64 `json:"llm"`
	Feedback   float64 `json:"feedback"`
	Tag        float64 `json:"tag"`
	Similarity float64 `json:"similarity"`
}

// Candidate is one retrieved chunk moving through retrieval and reranking.
type Candidate struct {
	ChunkID      string         `json:"chunk_id"`
	Content      string         `json:"content"`
	DocID        string         `json:"doc_id"`
	DocTitle     string         `json:"doc_title"`
	DocType      string         `json:"doc_type"`
	Tags         []string       `json:"tags,omitempty"`
	SectionTitle string         `json:"section_title,omitempty"`
	ArticleNo    int64          `json:"article_no,omitempty"`
	PageStart    int64          `json:"page_start,omitempty"`
	PageEnd      int64          `json:"page_end,omitempty"`
	Variant      string         `json:"variant,omitempty"`
	Similarity   float64        `json:"similarity"`
	Scores       ScoreBreakdown `json:"scores"`
	FinalScore   float64        `json:"final_score"`
}

// Completer is the completion surface the pipeline stages use. Satisfied by
// *llm.Client; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Streamer opens a token stream for answer generation.
type Streamer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	Stream(ctx context.Context, req llm.CompletionRequest) (*openai.ChatCompletionStream, error)
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs one filtered ANN query against the vector index.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, expr string) ([]milvus.SearchResult, error)
}

// Booster resolves per-chunk feedback boost factors.
type Booster interface {
	BoostMap(ids []string) (map[string]float64, error)
}

// ScoreCache caches rerank score maps keyed by question and candidate set.
type ScoreCache interface {
	GetRerankScores(ctx context.Context, key string) (map[string]float64, bool, error)
	SetRerankScores(ctx context.Context, key string, scores map[string]float64, ttl time.Duration) error
}

// EmbeddingCache caches query embeddings by text hash. Expanded variants of
// popular questions repeat often enough to make the round trips worth saving.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

func candidateFromSearch(r milvus.SearchResult, variant string) Candidate {
	return Candidate{
		ChunkID:      r.ChunkID,
		Content:      r.Content,
		DocID:        r.DocID,
		DocTitle:     r.DocTitle,
		DocType:      r.DocType,
		Tags:         r.Tags,
		SectionTitle: r.SectionTitle,
		ArticleNo:    r.ArticleNo,
		PageStart:    r.PageStart,
		PageEnd:      r.PageEnd,
		Variant:      variant,
		Similarity:   r.Similarity,
	}
}
