package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hmflow/gprs-puller/internal/config"
	"github.com/hmflow/gprs-puller/internal/models"
)

// RedisPublisher publishes readings on a pub/sub channel and keeps the most
// recent readings of each device in a capped list.
type RedisPublisher struct {
	client     *redis.Client
	channel    string
	historyLen int64
}

// NewRedisPublisher connects to Redis and checks the connection
func NewRedisPublisher(ctx context.Context, cfg *config.RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Redis connected")

	return &RedisPublisher{
		client:     client,
		channel:    cfg.Channel,
		historyLen: cfg.HistoryLen,
	}, nil
}

// RecentKey is the list holding the latest readings of portID
func RecentKey(channel, portID string) string {
	return fmt.Sprintf("%s:%s:recent", channel, portID)
}

// PublishTelemetry publishes msg and prepends it to the device's recent list
func (p *RedisPublisher) PublishTelemetry(ctx context.Context, msg *models.TelemetryMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	key := RecentKey(p.channel, msg.PortID)
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, p.historyLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to update recent readings")
	}

	return nil
}

// PublishStatus publishes msg on <channel>:status
func (p *RedisPublisher) PublishStatus(ctx context.Context, msg *models.StatusMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel+":status", data).Err(); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

// Recent returns up to n of the latest readings published for portID
func (p *RedisPublisher) Recent(ctx context.Context, portID string, n int64) ([]*models.TelemetryMessage, error) {
	raw, err := p.client.LRange(ctx, RecentKey(p.channel, portID), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}

	msgs := make([]*models.TelemetryMessage, 0, len(raw))
	for _, r := range raw {
		var m models.TelemetryMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode recent: %w", err)
		}
		msgs = append(msgs, &m)
	}

	return msgs, nil
}

// Close closes the client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
