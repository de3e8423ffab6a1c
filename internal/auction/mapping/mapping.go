// Package mapping publishes which worker serves an auction so a front end can
// route bidders to it.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auctionworker/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auction:worker:"

type Mapper interface {
	Create(ctx context.Context, auctionID, workerURL string) error
	Lookup(ctx context.Context, auctionID string) (string, bool, error)
	Delete(ctx context.Context, auctionID string) error
}

// cmdable is the part of *redis.Client the mapping uses.
type cmdable interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisMapper struct {
	rdb cmdable
	ttl time.Duration
	log *logger.Logger
}

// New returns the Redis mapper, or a no-op mapper when rdb is nil.
func New(rdb *redis.Client, ttl time.Duration, log *logger.Logger) Mapper {
	if rdb == nil {
		log.Info("Worker mapping disabled")
		return Noop{}
	}
	return newRedisMapper(rdb, ttl, log)
}

func newRedisMapper(rdb cmdable, ttl time.Duration, log *logger.Logger) *redisMapper {
	return &redisMapper{rdb: rdb, ttl: ttl, log: log}
}

func key(auctionID string) string {
	return keyPrefix + auctionID
}

func (m *redisMapper) Create(ctx context.Context, auctionID, workerURL string) error {
	if err := m.rdb.Set(ctx, key(auctionID), workerURL, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to create worker mapping: %w", err)
	}
	m.log.Info("Created worker mapping", logger.AuctionID, auctionID, "worker_url", workerURL)
	return nil
}

func (m *redisMapper) Lookup(ctx context.Context, auctionID string) (string, bool, error) {
	url, err := m.rdb.Get(ctx, key(auctionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read worker mapping: %w", err)
	}
	return url, true, nil
}

func (m *redisMapper) Delete(ctx context.Context, auctionID string) error {
	if err := m.rdb.Del(ctx, key(auctionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete worker mapping: %w", err)
	}
	m.log.Info("Deleted worker mapping", logger.AuctionID, auctionID)
	return nil
}

type Noop struct{}

func (Noop) Create(context.Context, string, string) error { return nil }

func (Noop) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }

func (Noop) Delete(context.Context, string) error { return nil }
