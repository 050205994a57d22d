package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/stock-dashboard/internal/models"
)

const latestKeyPrefix = "quote:latest:"

// QuoteCache keeps the most recently persisted quote per symbol in Redis
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQuoteCache creates a cache on top of an existing client
func NewQuoteCache(client *redis.Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{client: client, ttl: ttl}
}

// Connect creates a client for addr and verifies it with a ping
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func latestKey(symbol string) string {
	return latestKeyPrefix + strings.ToUpper(symbol)
}

// SetLatest stores q as the latest quote for its symbol unless a newer day
// is already cached
func (c *QuoteCache) SetLatest(ctx context.Context, q *models.Quote) error {
	current, found, err := c.Latest(ctx, q.Symbol)
	if err != nil {
		return err
	}
	if found && current.Date.After(q.Date) {
		return nil
	}

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := c.client.Set(ctx, latestKey(q.Symbol), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache quote for %s: %w", q.Symbol, err)
	}
	return nil
}

// Latest returns the cached quote for symbol. found is false on a miss.
func (c *QuoteCache) Latest(ctx context.Context, symbol string) (*models.Quote, bool, error) {
	data, err := c.client.Get(ctx, latestKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached quote for %s: %w", symbol, err)
	}

	var q models.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached quote for %s: %w", symbol, err)
	}
	return &q, true, nil
}
