package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := FromEnv()
		assert.Equal(t, 5*time.Second, cfg.TxTimeout)
		assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, 100, cfg.Relay.BatchSize)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
		t.Setenv("TX_TIMEOUT", "2s")
		t.Setenv("RELAY_BATCH_SIZE", "25")
		t.Setenv("IDENTITY_CACHE_TTL", "not-a-duration")

		cfg := FromEnv()
		assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, 2*time.Second, cfg.TxTimeout)
		assert.Equal(t, 25, cfg.Relay.BatchSize)
		assert.Equal(t, time.Minute, cfg.Auth.IdentityCacheTTL)
	})
}
