package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/glitch-battleship/internal/hub"
	"github.com/DoyleJ11/glitch-battleship/internal/metrics"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Hub    *hub.Hub
	Glitch GlitchControl

	// WS serves GET /ws. Nil leaves the route out.
	WS http.Handler

	Logger *zap.Logger

	// RateLimiter is used as-is when set; otherwise one is built from
	// RateLimitConfig, or DefaultRateLimitConfig.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	CORSOrigins []string
	Admin       AdminGuard

	DisableLogging bool
}

// NewRouter builds the router. It starts nothing besides the rate limiter's
// cleanup goroutine when it has to create one.
func NewRouter(cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if !cfg.DisableLogging {
		r.Use(requestLogger(log))
	}
	r.Use(middleware.Recoverer)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminKeyHeader},
		AllowCredentials: true,
	}))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", metrics.Handler())
	if cfg.WS != nil {
		r.Method(http.MethodGet, "/ws", cfg.WS)
	}

	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rlCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rlCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rlCfg)
	}

	h := &handlers{hub: cfg.Hub, glitch: cfg.Glitch, log: log.Named("admin")}

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(rateLimiter.Middleware)
		r.Use(cfg.Admin.Middleware)

		r.Get("/rooms", h.listRooms)
		r.Post("/rooms", h.createRoom)
		r.Post("/rooms/{roomId}/start", h.startRoom)
		r.Post("/rooms/{roomId}/stop", h.stopRoom)

		r.Get("/glitch", h.getGlitch)
		r.Post("/glitch", h.setGlitch)
		r.Delete("/glitch", h.clearGlitch)
	})

	return r
}
