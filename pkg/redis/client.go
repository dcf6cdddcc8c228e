package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/onurcolak/collections-worker/environments"
	"github.com/onurcolak/collections-worker/pkg/logger"
)

type Client struct {
	client valkey.Client
}

// releaseScript deletes the key only while it still holds the caller's token.
// KEYS[1] = lock key
// ARGV[1] = token written by SetNX
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

// SetNX atomically stores value under key only if the key is absent, with expiry.
// It reports whether the key was written.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	seconds := int64(math.Ceil(ttl.Seconds()))
	if seconds < 1 {
		seconds = 1
	}

	err := c.client.Do(ctx, c.client.B().Set().Key(key).Value(value).Nx().ExSeconds(seconds).Build()).Error()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}

	return true, nil
}

// DeleteIfEquals removes key only when its current value equals value.
func (c *Client) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	deleted, err := releaseScript.Exec(ctx, c.client, []string{key}, []string{value}).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to release %s: %w", key, err)
	}

	return deleted == 1, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}

	return n > 0, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
