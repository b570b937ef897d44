package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"archaeoscan-gateway/internal/config"
	"archaeoscan-gateway/internal/scoring"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisPublisher fans summaries out on a pub/sub channel and keeps the newest one under a
// short-lived key so late subscribers can catch up.
type RedisPublisher struct {
	client    redisClient
	channel   string
	latestKey string
	latestTTL time.Duration
}

func NewRedisPublisher(cfg config.RedisConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisPublisher(client, cfg)
}

func newRedisPublisher(client redisClient, cfg config.RedisConfig) *RedisPublisher {
	return &RedisPublisher{
		client:    client,
		channel:   cfg.Channel,
		latestKey: cfg.LatestKey,
		latestTTL: cfg.LatestTTL,
	}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, b scoring.BlockSummaries) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode summaries: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	if p.latestKey == "" {
		return nil
	}
	if err := p.client.Set(ctx, p.latestKey, body, p.latestTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.latestKey, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
