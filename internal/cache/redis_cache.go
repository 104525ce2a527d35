package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AyanDgr8/wa-prod/internal/model"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ StatusStore = (*RedisCache)(nil)

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func statusKey(tenantID string, messageID int64) string {
	return fmt.Sprintf("msg:%s:%d", tenantID, messageID)
}

// StoreStatus overwrites the cached entry for the message. Statuses are
// reported externally in their public form, so a transient sending state
// is mirrored as pending.
func (c *RedisCache) StoreStatus(ctx context.Context, tenantID string, messageID int64, status model.Status, transportMessageID string) {
	entry := StatusEntry{
		Status:             status.External(),
		TransportMessageID: transportMessageID,
		UpdatedAt:          time.Now().UTC(),
	}

	b, err := json.Marshal(entry)
	if err != nil {
		slog.Error("failed to encode status entry", "message_id", messageID, "error", err)
		return
	}

	if err := c.rdb.Set(ctx, statusKey(tenantID, messageID), b, c.ttl).Err(); err != nil {
		slog.Warn("failed to mirror status to redis", "message_id", messageID, "error", err)
	}
}

// Lookup returns the cached entry, or nil when the key is absent or
// expired. Callers fall back to the ledger on nil.
func (c *RedisCache) Lookup(ctx context.Context, tenantID string, messageID int64) (*StatusEntry, error) {
	raw, err := c.rdb.Get(ctx, statusKey(tenantID, messageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: lookup %d: %w", messageID, err)
	}

	var entry StatusEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("cache: decode %d: %w", messageID, err)
	}
	return &entry, nil
}
