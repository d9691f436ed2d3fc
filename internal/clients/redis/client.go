package redis

import (
	"context"
	"fmt"
	"time"

	"educenter-server/internal/config"
	"educenter-server/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client with observability
type Client struct {
	client *redis.Client
	logger *observability.Logger
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig, logger *observability.Logger) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info(ctx, "successfully connected to Redis",
		observability.Field{Key: "host", Value: cfg.Host},
		observability.Field{Key: "port", Value: cfg.Port},
		observability.Field{Key: "db", Value: cfg.DB},
	)

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func dispatchLockKey(campaignID uuid.UUID) string {
	return "campaign:dispatch:lock:" + campaignID.String()
}

// AcquireDispatchLock takes the single-writer lock for a campaign dispatch.
// Returns a release token and false if another worker already holds the lock.
// The TTL bounds how long a crashed worker can block re-dispatch.
func (c *Client) AcquireDispatchLock(ctx context.Context, campaignID uuid.UUID, ttl time.Duration) (string, bool, error) {
	if c == nil || c.client == nil {
		return "", false, fmt.Errorf("Redis client not initialized")
	}

	token := uuid.New().String()
	ok, err := c.client.SetNX(ctx, dispatchLockKey(campaignID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire dispatch lock: %w", err)
	}
	return token, ok, nil
}

// releaseDispatchLockScript deletes the lock only while it still holds our
// token. The compare and the delete must be one atomic step: between a GET
// and a DEL the lock can expire and be re-acquired by another worker, and the
// DEL would then drop that worker's lock.
var releaseDispatchLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ReleaseDispatchLock releases the lock if this worker still holds it. A
// mismatched token means the lock expired and someone else took it; in that
// case the lock is left alone.
func (c *Client) ReleaseDispatchLock(ctx context.Context, campaignID uuid.UUID, token string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	released, err := releaseDispatchLockScript.Run(ctx, c.client, []string{dispatchLockKey(campaignID)}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release dispatch lock: %w", err)
	}
	if released == 0 {
		c.logger.Warn(ctx, "dispatch lock expired or held by another worker, not releasing",
			observability.Field{Key: "campaign_id", Value: campaignID.String()})
	}
	return nil
}
