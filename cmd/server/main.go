package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/glitch-battleship/internal/auth"
	"github.com/DoyleJ11/glitch-battleship/internal/config"
	"github.com/DoyleJ11/glitch-battleship/internal/httpapi"
	"github.com/DoyleJ11/glitch-battleship/internal/hub"
	"github.com/DoyleJ11/glitch-battleship/internal/room"
	"github.com/DoyleJ11/glitch-battleship/internal/scoring"
	"github.com/DoyleJ11/glitch-battleship/internal/settings"
	"github.com/DoyleJ11/glitch-battleship/internal/ws"
)

func main() {
	// Running from cmd/server during development leaves .env one level up.
	if err := godotenv.Load("../.env"); err != nil {
		_ = godotenv.Load(".env")
	}

	cfg := config.Load()

	logger, err := newLogger(cfg.Server)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func newLogger(cfg config.ServerConfig) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zc = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(cfg config.AppConfig, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store settings.Store = settings.NewMemoryStore()
	if cfg.Database.URL != "" {
		gs, err := settings.OpenGormStore(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		store = gs
		logger.Info("glitch override persisted in postgres")
	} else {
		logger.Warn("DATABASE_URL not set, glitch override kept in memory")
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	glitch := settings.NewOverrideCache(store, cfg.Glitch.CacheTTL, logger.Named("glitch"))

	var (
		awarder room.Awarder     = scoring.Noop{}
		teams   ws.TeamDirectory = scoring.Noop{}
	)
	if cfg.Score.BaseURL != "" {
		client := scoring.NewClient(cfg.Score.BaseURL, cfg.Score.Timeout, logger.Named("scoring"))
		awarder, teams = client, client
	} else {
		logger.Warn("SCORE_SERVICE_URL not set, placement points will not be credited")
	}

	h := hub.NewHub(ctx, room.Deps{
		Logger:       logger.Named("room"),
		Phases:       glitch,
		Awarder:      awarder,
		AIThinkDelay: cfg.Game.AIThinkDelay,
		TickInterval: cfg.Game.TickInterval,
	})

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	if !verifier.Enabled() {
		logger.Warn("JWT_SECRET not set, websocket identities are trusted as sent")
	}

	wsHandler := ws.Handler(h, ws.Config{
		Logger:         logger.Named("ws"),
		Verifier:       verifier,
		Teams:          teams,
		ReadTimeout:    cfg.Server.ReadIdleTimeout,
		MessageRate:    cfg.Game.MessageRate,
		MessageBurst:   cfg.Game.MessageBurst,
		OriginPatterns: originPatterns(cfg.Server.CORSOrigins),
	})

	limiter := httpapi.NewIPRateLimiter(httpapi.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Hub:         h,
		Glitch:      glitch,
		WS:          wsHandler,
		Logger:      logger.Named("http"),
		RateLimiter: limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Admin: httpapi.AdminGuard{
			Verifier: verifier,
			KeyHash:  cfg.Auth.AdminKeyHash,
			Open:     !cfg.Server.Production(),
		},
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return multierr.Combine(
			srv.Shutdown(shutdownCtx),
			h.Shutdown(shutdownCtx),
		)
	})
	return g.Wait()
}

// originPatterns turns CORS origins into the host patterns the websocket
// accept check matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}
