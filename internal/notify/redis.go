package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/config"
)

// listPusher is the part of a Redis client the notifier needs
type listPusher interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// RedisNotifier pushes JSON encoded notifications onto a Redis list for downstream consumers
type RedisNotifier struct {
	client listPusher
	key    string
	clock  clock.Clock
}

// NewRedisNotifier creates a notifier pushing onto key
func NewRedisNotifier(client listPusher, key string, c clock.Clock) *RedisNotifier {
	if c == nil {
		c = clock.New()
	}
	return &RedisNotifier{client: client, key: key, clock: c}
}

// NewRedisClient connects to the configured Redis server and verifies the connection
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	password, err := cfg.GetPassword()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}

// NotifyWarning implements Notifier
func (r *RedisNotifier) NotifyWarning(ctx context.Context, connectionID, reason string) error {
	return r.push(ctx, newNotification(r.clock, KindWarning, connectionID, reason))
}

// NotifyDisabled implements Notifier
func (r *RedisNotifier) NotifyDisabled(ctx context.Context, connectionID, reason string) error {
	return r.push(ctx, newNotification(r.clock, KindDisabled, connectionID, reason))
}

func (r *RedisNotifier) push(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push notification for connection %s: %w", n.ConnectionID, err)
	}
	return nil
}
