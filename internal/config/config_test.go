package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("DEFAULT_CURRENCY", "")
	t.Setenv("SEED_DEMO", "")

	cfg := Load()

	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "XAF", cfg.DefaultCurrency)
	assert.False(t, cfg.SeedDemo)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("DEFAULT_CURRENCY", "usd")

	cfg := Load()

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
}
