package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeatLockConfigDefaults(t *testing.T) {
	c := LoadSeatLockConfig()
	assert.Equal(t, 900*time.Second, c.LockTTL)
	assert.Equal(t, 1800*time.Second, c.BookingSessionTTL)
	assert.Equal(t, 3600*time.Second, c.UserSessionTTL)
	assert.Equal(t, 15*time.Minute, c.InactivityTimeout)
	assert.Equal(t, 30*time.Second, c.TabHiddenTimeout)
}

func TestLoadSeatLockConfigOverrides(t *testing.T) {
	t.Setenv("SEAT_LOCK_TTL", "20m")
	t.Setenv("BOOKING_SESSION_TTL", "10m")
	t.Setenv("TAB_HIDDEN_TIMEOUT", "not-a-duration")

	c := LoadSeatLockConfig()
	assert.Equal(t, 20*time.Minute, c.LockTTL)
	assert.Equal(t, 20*time.Minute, c.BookingSessionTTL, "registry must outlive locks")
	assert.Equal(t, 30*time.Second, c.TabHiddenTimeout)
}

func TestLoad(t *testing.T) {
	for k, v := range map[string]string{
		"APP_ENV": "test", "APP_PORT": "8080",
		"DB_USER": "root", "DB_HOST": "localhost", "DB_PORT": "3306", "DB_NAME": "flights",
		"AMQP_URL": "amqp://broker/",
	} {
		t.Setenv(k, v)
	}
	c := Load()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "amqp://broker/", c.RabbitURL)
	assert.Empty(t, c.JWTSecret)
	assert.Equal(t, "logs/finalized.log", c.AuditLogPath)
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "true")

	o := RedisOptions()
	assert.Equal(t, "cache:6380", o.Addr)
	assert.Equal(t, 2, o.DB)
	assert.NotNil(t, o.TLSConfig)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())

	client, err := NewRedisClient(context.Background())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = NewRedisClient(context.Background())
	require.Error(t, err)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	c := LoadRateLimitConfig()
	assert.False(t, c.Enabled)
	assert.Equal(t, 5, c.Capacity)
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, 2*time.Second, c.RefillInterval)
	assert.Equal(t, 10*time.Second, c.TTL)
	assert.Equal(t, "user_route", c.KeyStrategy)
}
