package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/infra/storage"
)

// DefaultKey is the key holding the snapshot when none is configured.
const DefaultKey = "botkeeper:snapshot"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
}

// Client stores the session snapshot as a single JSON value.
type Client struct {
	rdb *redis.Client
	key string
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg.Key), nil
}

func newClient(rdb *redis.Client, key string) *Client {
	if key == "" {
		key = DefaultKey
	}
	return &Client{rdb: rdb, key: key}
}

// Save overwrites the snapshot key.
func (c *Client) Save(ctx context.Context, params []domain.Params) error {
	data, err := storage.Encode(params)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Load reads the snapshot key.
func (c *Client) Load(ctx context.Context) ([]domain.Params, error) {
	data, err := c.rdb.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return storage.Decode(data)
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
