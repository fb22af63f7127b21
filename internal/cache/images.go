// Package cache keeps recently uploaded receipt images in Redis so job
// retries do not refetch them from object storage.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
)

const keyPrefix = "receipt:"

// Key returns the Redis key for an extraction's image.
func Key(extractionID string) string {
	return keyPrefix + extractionID
}

// ImageCache stores raw image bytes with a fixed TTL. Every operation is best
// effort: failures are logged and reported as a miss or ignored.
type ImageCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *slog.Logger
}

// NewImageCache builds an ImageCache. A nil logger uses slog.Default.
func NewImageCache(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *ImageCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageCache{client: client, ttl: ttl, log: logger}
}

// Set stores data under the extraction's key.
func (c *ImageCache) Set(ctx context.Context, extractionID string, data []byte) {
	if err := c.set(ctx, extractionID, data); err != nil {
		c.log.Warn("cache.set_failed", "extraction_id", extractionID, "error", err)
	}
}

// Get returns the cached bytes and true, or nil and false on a miss or error.
func (c *ImageCache) Get(ctx context.Context, extractionID string) ([]byte, bool) {
	data, err := c.get(ctx, extractionID)
	if err != nil {
		c.log.Warn("cache.get_failed", "extraction_id", extractionID, "error", err)
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	return data, true
}

// Delete removes the extraction's image.
func (c *ImageCache) Delete(ctx context.Context, extractionID string) {
	if err := c.client.Del(ctx, Key(extractionID)).Err(); err != nil {
		c.log.Warn("cache.delete_failed", "extraction_id", extractionID, "error", apperr.Cache("redis del", err))
	}
}

func (c *ImageCache) set(ctx context.Context, extractionID string, data []byte) error {
	if extractionID == "" {
		return apperr.Cache("key cannot be empty", nil)
	}
	if err := c.client.Set(ctx, Key(extractionID), data, c.ttl).Err(); err != nil {
		return apperr.Cache("redis set", err)
	}
	return nil
}

func (c *ImageCache) get(ctx context.Context, extractionID string) ([]byte, error) {
	if extractionID == "" {
		return nil, apperr.Cache("key cannot be empty", nil)
	}
	data, err := c.client.Get(ctx, Key(extractionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperr.Cache("redis get", err)
	}
	return data, nil
}
