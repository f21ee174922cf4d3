package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REALTIME_RELAY_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Policy.Assignment)
	assert.Equal(t, int64(50*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 1, cfg.RateLimit.TicketCreateMax)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.TicketCreateWindow)
	assert.Equal(t, 1, cfg.RateLimit.LoginMax)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.LoginWindow)
	assert.Equal(t, 1, cfg.RateLimit.RegisterMax)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RegisterWindow)
	assert.Equal(t, 54*time.Second, cfg.Realtime.PingPeriod)
	assert.Equal(t, "@every 1m", cfg.Dashboard.RefreshSpec)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "250ms")
	t.Setenv("ASSIGNMENT_POLICY", "staff")
	t.Setenv("WS_SEND_BUFFER", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.Timeout)
	assert.Equal(t, "staff", cfg.Policy.Assignment)
	assert.Equal(t, 64, cfg.Realtime.SendBuffer)
}

func TestLoadRelayNeedsRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REALTIME_RELAY_ENABLED", "true")

	_, err := Load()
	assert.Error(t, err)
}
