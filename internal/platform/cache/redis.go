package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// ClientName is set on every connection opened by New.
const ClientName = "odyssey-fulfillment"

const pingTimeout = 5 * time.Second

// Options locates the Redis instance that holds order number counters and
// the job queue.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Asynq converts the options for the job client, server and inspector.
func (o Options) Asynq() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

// Client builds a client without checking connectivity.
func (o Options) Client() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       o.Addr,
		Password:   o.Password,
		DB:         o.DB,
		ClientName: ClientName,
	})
}

// New builds a client and pings it.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("platform/cache: address required")
	}
	client := opts.Client()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
