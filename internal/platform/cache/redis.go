package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Options configures the shared Redis connection.
type Options struct {
	Addr        string
	DB          int
	PingTimeout time.Duration
}

// New creates a new Redis client and verifies it answers.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// AsynqOpt returns the queue connection for the same Redis instance.
func AsynqOpt(opts Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: opts.Addr, DB: opts.DB}
}
