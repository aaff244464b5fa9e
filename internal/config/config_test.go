package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NOTIFICATION_SIGNING_SECRET", "secret")

	cfg := Load()

	assert.Equal(t, 10, cfg.RateLimitCapacity)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "https://api.paystack.co", cfg.PaystackBaseURL)
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("D_GO", "1500ms")
	t.Setenv("D_SECONDS", "45")
	t.Setenv("D_BAD", "soon")

	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("D_GO", time.Second))
	assert.Equal(t, 45*time.Second, getEnvDuration("D_SECONDS", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("D_BAD", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("D_MISSING", time.Second))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("N_OK", "7")
	t.Setenv("N_BAD", "seven")

	assert.Equal(t, 7, getEnvInt("N_OK", 1))
	assert.Equal(t, 1, getEnvInt("N_BAD", 1))
}

func TestReadDoesNotRequireSecrets(t *testing.T) {
	t.Setenv("NOTIFICATION_SIGNING_SECRET", "")
	t.Setenv("PAYSTACK_BASE_URL", "http://localhost:9999/")

	cfg := Read()

	assert.Empty(t, cfg.NotificationSecret)
	assert.Equal(t, "http://localhost:9999", cfg.PaystackBaseURL)
}

func TestRateLimitFailOpenSwitch(t *testing.T) {
	assert.True(t, Read().RateLimitFailOpen)

	t.Setenv("RATE_LIMIT_FAIL_OPEN", "false")
	assert.False(t, Read().RateLimitFailOpen)

	t.Setenv("RATE_LIMIT_FAIL_OPEN", "sometimes")
	assert.True(t, Read().RateLimitFailOpen)
}
