package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

const orderNumberPrefix = "ORD-"

// SequenceSource reports the highest numeric suffix among stored order numbers.
type SequenceSource interface {
	MaxOrderSequence(ctx context.Context) (int64, error)
}

// RedisNumberGenerator issues ORD-000123 style numbers from a Redis counter.
// A fresh counter is seeded from the stored orders; when Redis is unreachable
// the next number is derived from the stored orders directly.
type RedisNumberGenerator struct {
	client *redis.Client
	source SequenceSource
	logger *slog.Logger
	key    string
}

// NewRedisNumberGenerator constructs the generator.
func NewRedisNumberGenerator(client *redis.Client, source SequenceSource, logger *slog.Logger) *RedisNumberGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisNumberGenerator{client: client, source: source, logger: logger, key: shared.OrderSequenceKey}
}

// Next returns the next order number.
func (g *RedisNumberGenerator) Next(ctx context.Context) (string, error) {
	if g.client == nil {
		return g.fallback(ctx)
	}
	n, err := g.client.Incr(ctx, g.key).Result()
	if err != nil {
		g.logger.Warn("order sequence unavailable, scanning stored numbers", slog.Any("error", err))
		return g.fallback(ctx)
	}
	if n == 1 {
		seeded, err := g.seed(ctx)
		if err != nil {
			return "", err
		}
		n = seeded
	}
	return FormatOrderNumber(n), nil
}

// seed lifts a counter that was just created past the numbers already stored.
func (g *RedisNumberGenerator) seed(ctx context.Context) (int64, error) {
	max, err := g.source.MaxOrderSequence(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed order sequence: %w", err)
	}
	if max < 1 {
		return 1, nil
	}
	n, err := g.client.IncrBy(ctx, g.key, max).Result()
	if err != nil {
		return max + 1, nil
	}
	return n, nil
}

func (g *RedisNumberGenerator) fallback(ctx context.Context) (string, error) {
	max, err := g.source.MaxOrderSequence(ctx)
	if err != nil {
		return "", fmt.Errorf("scan order numbers: %w", err)
	}
	return FormatOrderNumber(max + 1), nil
}

// FormatOrderNumber renders n as ORD-%06d.
func FormatOrderNumber(n int64) string {
	return fmt.Sprintf("%s%06d", orderNumberPrefix, n)
}

// ParseOrderNumber extracts the numeric suffix of an order number.
func ParseOrderNumber(number string) (int64, bool) {
	if !strings.HasPrefix(number, orderNumberPrefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(number, orderNumberPrefix), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
