package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anhbaysgalan1/potledger/internal/engine"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SettlementCache caches computed settlement results for ended sessions.
// An ended session is terminal, so a cached result can never go stale; the
// TTL just bounds memory.
type SettlementCache struct {
	client *redis.Client
}

// NewSettlementCache creates a new settlement cache instance
func NewSettlementCache(client *redis.Client) *SettlementCache {
	return &SettlementCache{
		client: client,
	}
}

const (
	settlementCachePrefix = "settlement:"
	settlementTTL         = 24 * time.Hour
)

// Set caches the settlement result for a session
func (sc *SettlementCache) Set(ctx context.Context, sessionID uuid.UUID, result *engine.SettlementResult) error {
	key := settlementCachePrefix + sessionID.String()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement result: %w", err)
	}

	if err := sc.client.Set(ctx, key, data, settlementTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache settlement result: %w", err)
	}

	return nil
}

// Get retrieves a cached settlement result, or nil on a miss.
func (sc *SettlementCache) Get(ctx context.Context, sessionID uuid.UUID) (*engine.SettlementResult, error) {
	key := settlementCachePrefix + sessionID.String()

	data, err := sc.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get cached settlement result: %w", err)
	}

	var result engine.SettlementResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settlement result: %w", err)
	}

	return &result, nil
}
