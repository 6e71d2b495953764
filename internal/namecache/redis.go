package namecache

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"alertlens/pkg/models"
)

// RedisConfig configures the shared Redis cache tier.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisTier stores resolved NameInfo values in Redis as JSON, keyed by
// prefix+id, so multiple replicas share one resolution. Entries carry
// no TTL; the same weak-staleness contract as the in-process map
// applies (flush the key space to refresh).
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier creates the shared tier.
func NewRedisTier(cfg RedisConfig) (*RedisTier, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("namecache: redis addr is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "alertlens:name:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisTier{client: client, prefix: cfg.KeyPrefix}, nil
}

// Get fetches a cached resolution. The second return value reports
// whether the key was present.
func (t *RedisTier) Get(ctx context.Context, id string) (models.NameInfo, bool, error) {
	val, err := t.client.Get(ctx, t.prefix+id).Result()
	if err == redis.Nil {
		return models.NameInfo{}, false, nil
	}
	if err != nil {
		return models.NameInfo{}, false, err
	}

	var info models.NameInfo
	if err := json.Unmarshal([]byte(val), &info); err != nil {
		return models.NameInfo{}, false, fmt.Errorf("namecache: decoding cached entry %s: %w", id, err)
	}
	return info, true, nil
}

// Set stores a resolution.
func (t *RedisTier) Set(ctx context.Context, id string, info models.NameInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("namecache: encoding entry %s: %w", id, err)
	}
	return t.client.Set(ctx, t.prefix+id, data, 0).Err()
}

// Close closes the Redis connection.
func (t *RedisTier) Close() error {
	return t.client.Close()
}
