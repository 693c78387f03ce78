package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/cache"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 7*24*time.Hour, cfg.UnlockGrace)
	require.Equal(t, 15*time.Minute, cfg.ReconcileStaleAfter)
	require.False(t, cfg.KafkaEnabled())
	require.False(t, cfg.IsProduction())
	require.Equal(t, "info", cfg.LogLevel)
	require.EqualValues(t, 10, cfg.PGMaxConns)
	require.Equal(t, cache.Options{Addr: "127.0.0.1:6379"}, cfg.Redis())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("UNLOCK_GRACE", "48h")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("REDIS_PASSWORD", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.KafkaEnabled())
	require.Equal(t, 48*time.Hour, cfg.UnlockGrace)
	require.Equal(t, 4, cfg.Redis().Asynq().DB)
	require.Equal(t, "s3cret", cfg.Redis().Password)
}

func TestLoadConfigRejectsNonPositiveGrace(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("UNLOCK_GRACE", "0s")

	_, err := LoadConfig()
	require.Error(t, err)
}
