package fxrate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const cacheKeyPrefix = "fx:rate:"

// RateCache is a same-day cache for resolved rates, backed by Redis with an
// explicit TTL. It is constructor-injected so the resolver carries no hidden
// process-wide state; lookups are best-effort and never mask a failed fetch.
type RateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRateCache builds the cache helper.
func NewRateCache(client *redis.Client, ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RateCache{client: client, ttl: ttl}
}

type cachedRate struct {
	Value     decimal.Decimal `json:"value"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Get returns the cached rate for a date, if present.
func (c *RateCache) Get(ctx context.Context, day time.Time) (Rate, bool) {
	if c == nil || c.client == nil {
		return Rate{}, false
	}
	raw, err := c.client.Get(ctx, cacheKeyPrefix+day.Format("2006-01-02")).Bytes()
	if err != nil {
		return Rate{}, false
	}
	var entry cachedRate
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Rate{}, false
	}
	return Rate{Date: day, Value: entry.Value, Source: entry.Source, FetchedAt: entry.FetchedAt}, true
}

// Put stores a resolved rate, best-effort.
func (c *RateCache) Put(ctx context.Context, rate Rate) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(cachedRate{Value: rate.Value, Source: rate.Source, FetchedAt: rate.FetchedAt})
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKeyPrefix+rate.Date.Format("2006-01-02"), raw, c.ttl).Err()
}
