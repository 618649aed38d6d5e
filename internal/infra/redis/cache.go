package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Markhorcapital/ledger-listener/internal/platform/pricing"
	"github.com/Markhorcapital/ledger-listener/pkg/logger"
)

const (
	// DefaultKey is the hash holding one field per asset
	DefaultKey = "ledger-listener:price:last_known"

	// StaleTTL bounds how old a persisted price may get before redis drops it
	StaleTTL = 7 * 24 * time.Hour
)

// PriceStore persists last-known prices in a redis hash
type PriceStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *logger.Logger
}

// NewClient connects to the redis URL and pings it once
func NewClient(ctx context.Context, url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewPriceStore creates a new price store
func NewPriceStore(client *redis.Client, log *logger.Logger) *PriceStore {
	return &PriceStore{
		client: client,
		key:    DefaultKey,
		ttl:    StaleTTL,
		logger: log.WithComponent("price_store"),
	}
}

// cachedPrice is the JSON stored per asset
type cachedPrice struct {
	Price     string    `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveLastKnown writes prices into the hash and refreshes its expiry
func (s *PriceStore) SaveLastKnown(ctx context.Context, prices map[string]pricing.Price) error {
	if len(prices) == 0 {
		return nil
	}

	fields := make(map[string]any, len(prices))
	for asset, p := range prices {
		data, err := json.Marshal(cachedPrice{Price: p.Value.String(), UpdatedAt: p.At.UTC()})
		if err != nil {
			return fmt.Errorf("failed to marshal price for %s: %w", asset, err)
		}
		fields[asset] = data
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key, fields)
	pipe.Expire(ctx, s.key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("cache error", "operation", "save", "error", err)
		return fmt.Errorf("failed to save last-known prices: %w", err)
	}
	return nil
}

// LoadLastKnown reads every stored price. Corrupt fields are skipped.
func (s *PriceStore) LoadLastKnown(ctx context.Context) (map[string]pricing.Price, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load last-known prices: %w", err)
	}

	out := make(map[string]pricing.Price, len(vals))
	for asset, raw := range vals {
		var cached cachedPrice
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			s.logger.Warn("skipping corrupt cached price", "asset", asset, "error", err)
			continue
		}
		v, err := decimal.NewFromString(cached.Price)
		if err != nil {
			s.logger.Warn("skipping corrupt cached price", "asset", asset, "error", err)
			continue
		}
		out[asset] = pricing.Price{Value: v, Origin: pricing.OriginLastKnown, At: cached.UpdatedAt}
	}

	s.logger.Debug("last-known prices loaded", "count", len(out))
	return out, nil
}

var _ pricing.Store = (*PriceStore)(nil)
