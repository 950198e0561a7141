package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"animalfaces-api/internal/vision"
)

// PredictionCache stores results by image digest. Inference is deterministic
// for fixed weights and preprocessing, so the model version and the
// preprocessing fingerprint are part of the key.
type PredictionCache struct {
	client       *redisv9.Client
	modelVersion string
	fingerprint  string
	ttl          time.Duration
}

func NewPredictionCache(client *redisv9.Client, modelVersion, fingerprint string, ttl time.Duration) *PredictionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PredictionCache{
		client:       client,
		modelVersion: modelVersion,
		fingerprint:  fingerprint,
		ttl:          ttl,
	}
}

func (c *PredictionCache) Get(ctx context.Context, digest string) (*vision.Result, bool, error) {
	raw, err := c.client.Get(ctx, c.key(digest)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get prediction failed: %w", err)
	}

	var result vision.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached prediction failed: %w", err)
	}
	return &result, true, nil
}

func (c *PredictionCache) Set(ctx context.Context, digest string, result *vision.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal prediction cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(digest), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set prediction failed: %w", err)
	}
	return nil
}

func (c *PredictionCache) key(digest string) string {
	return Key(c.modelVersion, c.fingerprint, digest)
}

func Key(modelVersion, fingerprint, digest string) string {
	return fmt.Sprintf("predict:%s:%s:%s", modelVersion, fingerprint, digest)
}
