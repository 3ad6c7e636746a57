package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// redisClient is the subset of go-redis used by RedisWriter.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisWriter mirrors the latest snapshot into Redis: the JSON document is
// stored at a key and announced on a pub/sub channel.
type RedisWriter struct {
	client  redisClient
	key     string
	channel string
	log     *logger.Log
}

// NewRedisWriter connects and pings the configured server.
func NewRedisWriter(ctx context.Context, cfg appconfig.RedisConfig) (*RedisWriter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	w := newRedisWriter(rdb, cfg.Key, cfg.Channel)
	w.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"addr":    cfg.Addr,
		"key":     cfg.Key,
		"channel": cfg.Channel,
	}).Info("redis writer initialized")
	return w, nil
}

func newRedisWriter(client redisClient, key, channel string) *RedisWriter {
	return &RedisWriter{
		client:  client,
		key:     key,
		channel: channel,
		log:     logger.GetLogger(),
	}
}

// Publish stores and announces snap. Both steps are attempted even if the
// first fails.
func (w *RedisWriter) Publish(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot: %w", err)
	}

	var errs []error
	if w.key != "" {
		if err := w.client.Set(ctx, w.key, data, 0).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: set %s: %w", w.key, err))
		}
	}
	if w.channel != "" {
		if err := w.client.Publish(ctx, w.channel, data).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: publish %s: %w", w.channel, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	w.log.LogMetric("redis_writer", "snapshot_bytes", len(data), "gauge", logger.Fields{"sink": "redis"})
	return nil
}

func (w *RedisWriter) Close() error {
	return w.client.Close()
}
