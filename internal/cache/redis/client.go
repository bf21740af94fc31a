package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/logger"
)

// Client caches rerank score maps, embeddings and the document inventory.
// The cache is advisory: callers treat any error as a miss and recompute.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetRerankScores caches the per-chunk relevance scores for one reranked
// candidate set. key is derived from the question and the sorted chunk IDs.
func (c *Client) SetRerankScores(ctx context.Context, key string, scores map[string]float64, ttl time.Duration) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("failed to marshal rerank scores: %w", err)
	}

	err = c.client.Set(ctx, "rerank:"+key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set rerank cache: %w", err)
	}

	logger.Debug("Rerank scores cached", zap.String("key", key), zap.Int("chunks", len(scores)))
	return nil
}

func (c *Client) GetRerankScores(ctx context.Context, key string) (map[string]float64, bool, error) {
	data, err := c.client.Get(ctx, "rerank:"+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rerank cache: %w", err)
	}

	var scores map[string]float64
	err = json.Unmarshal(data, &scores)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal rerank scores: %w", err)
	}

	logger.Debug("Rerank cache hit", zap.String("key", key))
	return scores, true, nil
}

// SetInventory caches the rendered document inventory used as intent
// classification context.
func (c *Client) SetInventory(ctx context.Context, userKey string, inventory interface{}, ttl time.Duration) error {
	data, err := json.Marshal(inventory)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory: %w", err)
	}

	err = c.client.Set(ctx, "inventory:"+userKey, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set inventory cache: %w", err)
	}
	return nil
}

func (c *Client) GetInventory(ctx context.Context, userKey string, inventory interface{}) (bool, error) {
	data, err := c.client.Get(ctx, "inventory:"+userKey).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get inventory cache: %w", err)
	}

	err = json.Unmarshal(data, inventory)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal inventory: %w", err)
	}
	return true, nil
}

// InvalidateInventory drops every cached inventory view. Called after any
// ingestion or deletion changes the corpus.
func (c *Client) InvalidateInventory(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "inventory:*", 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Debug("Inventory cache invalidated")
	return nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, "embedding:"+textHash, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, "embedding:"+textHash).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	err = json.Unmarshal(data, &embedding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return embedding, true, nil
}
