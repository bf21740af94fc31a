package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/metrics"
	"github.com/docqa/backend/pkg/circuitbreaker"
	"github.com/docqa/backend/pkg/logger"
	"github.com/docqa/backend/pkg/retry"
)

// api is the slice of the OpenAI SDK surface the gateway uses. Satisfied by
// *openai.Client; tests substitute a fake.
type api interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// slot is one credential in the pool with its usage counters.
type slot struct {
	api        api
	requests   atomic.Int64
	errors     atomic.Int64
	rateLimits atomic.Int64
}

// SlotStats is a point-in-time snapshot of one pool slot.
type SlotStats struct {
	Slot       int   `json:"slot"`
	Requests   int64 `json:"requests"`
	Errors     int64 `json:"errors"`
	RateLimits int64 `json:"rate_limit_hits"`
}

// Client is the pooled, retrying gateway to the LLM/embedding service. Every
// component that needs a completion or embedding goes through it; nothing
// talks to the upstream service directly.
type Client struct {
	slots          []*slot
	next           atomic.Uint64
	model          string
	rerankModel    string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float32
	MaxTokens    int
	JSONMode     bool
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Config struct {
	APIKeys        []string
	BaseURL        string
	Model          string
	RerankModel    string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	Timeout        time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("gateway requires at least one API key")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	slots := make([]*slot, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		clientCfg := openai.DefaultConfig(key)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		slots = append(slots, &slot{api: openai.NewClientWithConfig(clientCfg)})
	}

	cb := circuitbreaker.NewCircuitBreaker("llm-gateway", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxRetries:     3,
		InitialDelay:   time.Second,
		MaxDelay:       60 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		RetryIf:        IsRetryable,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM gateway initialized",
		zap.Int("slots", len(slots)),
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		slots:          slots,
		model:          cfg.Model,
		rerankModel:    cfg.RerankModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}, nil
}

// IsRetryable classifies upstream errors. Rate limits, 5xx responses and
// timeouts are transient; any other HTTP status is a permanent input error
// and is never retried.
func IsRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Transport-level failures (connection reset, deadline) have no status.
	return true
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429
	}
	return false
}

// acquire assigns the next slot in round-robin order. One logical call keeps
// its slot across retries.
func (c *Client) acquire() (*slot, int) {
	idx := int((c.next.Add(1) - 1) % uint64(len(c.slots)))
	return c.slots[idx], idx
}

// call runs fn against one slot with circuit breaking, retry and counter
// upkeep.
func (c *Client) call(ctx context.Context, fn func(api) error) error {
	s, idx := c.acquire()

	slotLabel := strconv.Itoa(idx)
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			s.requests.Add(1)
			err := fn(s.api)
			if err != nil {
				s.errors.Add(1)
				if isRateLimit(err) {
					s.rateLimits.Add(1)
					metrics.LLMSlotRequests.WithLabelValues(slotLabel, "rate_limited").Inc()
				} else {
					metrics.LLMSlotRequests.WithLabelValues(slotLabel, "error").Inc()
				}
			} else {
				metrics.LLMSlotRequests.WithLabelValues(slotLabel, "ok").Inc()
			}
			return err
		})
	})

	if err != nil {
		logger.Debug("Gateway call failed",
			zap.Int("slot", idx),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	chatReq := c.buildChatRequest(req)

	var result *CompletionResponse
	err := c.call(ctx, func(a api) error {
		resp, err := a.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("completion returned no choices")
		}

		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LLMTokensUsed.WithLabelValues(chatReq.Model, "prompt").Add(float64(result.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(chatReq.Model, "completion").Add(float64(result.Usage.CompletionTokens))

	logger.Debug("LLM completion generated",
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
	)
	return result, nil
}

// Stream opens a token stream for answer generation. Retry applies only to
// opening the stream; once tokens flow, a failure surfaces to the consumer.
func (c *Client) Stream(ctx context.Context, req CompletionRequest) (*openai.ChatCompletionStream, error) {
	chatReq := c.buildChatRequest(req)
	chatReq.Stream = true

	var stream *openai.ChatCompletionStream
	err := c.call(ctx, func(a api) error {
		var err error
		stream, err = a.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return fmt.Errorf("failed to open completion stream: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *Client) buildChatRequest(req CompletionRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return chatReq
}

// RerankModel returns the model name reserved for relevance judgments.
func (c *Client) RerankModel() string {
	return c.rerankModel
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	const batchSize = 100
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		err := c.call(ctx, func(a api) error {
			resp, err := a.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: batch,
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}
			if len(resp.Data) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch))
			}
			for _, data := range resp.Data {
				vec := make([]float32, len(data.Embedding))
				copy(vec, data.Embedding)
				embeddings = append(embeddings, vec)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))
	return embeddings, nil
}

// Stats snapshots the per-slot usage counters for operational inspection.
func (c *Client) Stats() []SlotStats {
	stats := make([]SlotStats, len(c.slots))
	for i, s := range c.slots {
		stats[i] = SlotStats{
			Slot:       i,
			Requests:   s.requests.Load(),
			Errors:     s.errors.Load(),
			RateLimits: s.rateLimits.Load(),
		}
	}
	return stats
}

// TotalRequests sums requests across all slots. Used by tests and metrics to
// observe whether a cached path skipped the upstream call.
func (c *Client) TotalRequests() int64 {
	var total int64
	for _, s := range c.slots {
		total += s.requests.Load()
	}
	return total
}
