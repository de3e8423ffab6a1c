package client

import (
	"context"
	"time"

	"auctionworker/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// SetRedis connects to Redis. An unreachable server is logged and leaves
// c.Redis nil; callers degrade to running without the worker mapping.
func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis is unreachable, worker mapping disabled", "addr", addr, "error", err)
		_ = client.Close()
		return
	}

	log.Info("Successfully connected to Redis", "addr", addr)
	c.Redis = client
}
