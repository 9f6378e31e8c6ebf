// Package config reads process configuration from the environment. Each
// section has a Default* constructor and a *FromEnv variant that applies
// overrides on top of it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// SERVER
// =============================================================================

type ServerConfig struct {
	Addr            string
	CORSOrigins     []string
	ReadIdleTimeout time.Duration // websocket read idle limit
	ShutdownTimeout time.Duration
	Env             string // "production" | "development"
	LogLevel        string
}

func DefaultServer() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		CORSOrigins:     []string{"http://localhost:3000"},
		ReadIdleTimeout: 60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Env:             "development",
		LogLevel:        "info",
	}
}

func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Addr = ":" + strconv.Itoa(p)
	}
	if a := os.Getenv("LISTEN_ADDR"); a != "" {
		cfg.Addr = a
	}
	if origins := getEnvList("CORS_ORIGINS"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	cfg.ReadIdleTimeout = getEnvDuration("WS_READ_TIMEOUT", cfg.ReadIdleTimeout)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg
}

func (c ServerConfig) Production() bool { return c.Env == "production" }

// =============================================================================
// AUTH
// =============================================================================

type AuthConfig struct {
	JWTSecret    string // empty: websocket identities are trusted as sent
	AdminKeyHash string // bcrypt hash accepted in X-Admin-Key
}

func DefaultAuth() AuthConfig { return AuthConfig{} }

func AuthFromEnv() AuthConfig {
	cfg := DefaultAuth()
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.AdminKeyHash = os.Getenv("ADMIN_KEY_HASH")
	return cfg
}

// =============================================================================
// GAME
// =============================================================================

type GameConfig struct {
	AIThinkDelay time.Duration
	TickInterval time.Duration
	MessageRate  float64 // inbound websocket messages per second per connection
	MessageBurst int
}

func DefaultGame() GameConfig {
	return GameConfig{
		AIThinkDelay: 800 * time.Millisecond,
		TickInterval: time.Second,
		MessageRate:  10,
		MessageBurst: 20,
	}
}

func GameFromEnv() GameConfig {
	cfg := DefaultGame()

	cfg.AIThinkDelay = getEnvDuration("AI_THINK_DELAY", cfg.AIThinkDelay)
	cfg.TickInterval = getEnvDuration("ROOM_TICK_INTERVAL", cfg.TickInterval)
	if r := getEnvFloat("WS_MESSAGE_RATE", 0); r > 0 {
		cfg.MessageRate = r
	}
	if b := getEnvInt("WS_MESSAGE_BURST", 0); b > 0 {
		cfg.MessageBurst = b
	}

	return cfg
}

// =============================================================================
// STORAGE & COLLABORATORS
// =============================================================================

type DatabaseConfig struct {
	URL string // empty: in-memory settings
}

func DatabaseFromEnv() DatabaseConfig {
	return DatabaseConfig{URL: os.Getenv("DATABASE_URL")}
}

type GlitchConfig struct {
	CacheTTL time.Duration
}

func DefaultGlitch() GlitchConfig { return GlitchConfig{CacheTTL: 5 * time.Second} }

func GlitchFromEnv() GlitchConfig {
	cfg := DefaultGlitch()
	cfg.CacheTTL = getEnvDuration("GLITCH_CACHE_TTL", cfg.CacheTTL)
	return cfg
}

type ScoreServiceConfig struct {
	BaseURL string // empty: score crediting and team lookups are disabled
	Timeout time.Duration
}

func DefaultScoreService() ScoreServiceConfig {
	return ScoreServiceConfig{Timeout: 5 * time.Second}
}

func ScoreServiceFromEnv() ScoreServiceConfig {
	cfg := DefaultScoreService()
	cfg.BaseURL = os.Getenv("SCORE_SERVICE_URL")
	cfg.Timeout = getEnvDuration("SCORE_SERVICE_TIMEOUT", cfg.Timeout)
	return cfg
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
}

func RateLimitFromEnv() RateLimitConfig {
	cfg := DefaultRateLimit()
	if r := getEnvFloat("HTTP_RATE_LIMIT", 0); r > 0 {
		cfg.RequestsPerSecond = r
	}
	if b := getEnvInt("HTTP_RATE_BURST", 0); b > 0 {
		cfg.Burst = b
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

type AppConfig struct {
	Server    ServerConfig
	Auth      AuthConfig
	Game      GameConfig
	Database  DatabaseConfig
	Glitch    GlitchConfig
	Score     ScoreServiceConfig
	RateLimit RateLimitConfig
}

func Load() AppConfig {
	return AppConfig{
		Server:    ServerFromEnv(),
		Auth:      AuthFromEnv(),
		Game:      GameFromEnv(),
		Database:  DatabaseFromEnv(),
		Glitch:    GlitchFromEnv(),
		Score:     ScoreServiceFromEnv(),
		RateLimit: RateLimitFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration syntax ("800ms") or a bare number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
