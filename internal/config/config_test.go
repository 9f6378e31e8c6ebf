package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "LISTEN_ADDR", "CORS_ORIGINS", "AI_THINK_DELAY", "DATABASE_URL", "JWT_SECRET"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 800*time.Millisecond, cfg.Game.AIThinkDelay)
	assert.Equal(t, 5*time.Second, cfg.Glitch.CacheTTL)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Auth.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("AI_THINK_DELAY", "250")
	t.Setenv("GLITCH_CACHE_TTL", "2s")
	t.Setenv("WS_MESSAGE_RATE", "3.5")
	t.Setenv("HTTP_RATE_BURST", "not-a-number")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Game.AIThinkDelay)
	assert.Equal(t, 2*time.Second, cfg.Glitch.CacheTTL)
	assert.Equal(t, 3.5, cfg.Game.MessageRate)
	assert.Equal(t, DefaultRateLimit().Burst, cfg.RateLimit.Burst)
}
