package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("POLLBANK_TRUST_PROXY_HEADERS", "")

	cfg := FromEnv()
	assert.False(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, 20, cfg.Auth.LockoutIdentifierAttempts)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "123456", cfg.Auth.DefaultPIN)
	assert.Equal(t, "admin", cfg.Auth.BootstrapAdmin)
	assert.Empty(t, cfg.Database.DSN)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.Lookup.CacheTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("POLLBANK_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ROUTING_LOOKUP_TIMEOUT", "750ms")
	t.Setenv("DATABASE_AUTO_MIGRATE", "false")
	t.Setenv("REDIS_POOL_SIZE", "not-a-number")
	t.Setenv("POLLBANK_TRUST_PROXY_HEADERS", "true")
	t.Setenv("LOGIN_LOCKOUT_IDENTIFIER_ATTEMPTS", "50")

	cfg := FromEnv()
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, 50, cfg.Auth.LockoutIdentifierAttempts)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Lookup.Timeout)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}
