package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "scry:tasks"

// Publisher is the subset of *redis.Client used to publish events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher is an EventHandler that publishes every event as JSON on a
// Redis channel so other instances can observe task progress.
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *slog.Logger
}

var _ EventHandler = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher on channel, or DefaultChannel when empty.
func NewRedisPublisher(client Publisher, channel string, logger *slog.Logger) *RedisPublisher {
	if client == nil {
		panic("redis publisher client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_publisher", "channel", channel),
	}
}

// HandleEvent publishes event.
func (p *RedisPublisher) HandleEvent(ctx context.Context, event *TaskEvent) error {
	raw, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode task event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, raw).Result()
	if err != nil {
		return fmt.Errorf("failed to publish task event: %w", err)
	}
	p.logger.Debug("task event published",
		"event_type", event.Type,
		"task_id", event.TaskID,
		"receivers", receivers)
	return nil
}

// Dial connects to Redis at addr and verifies the connection with a ping.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
