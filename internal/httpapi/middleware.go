package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/glitch-battleship/internal/auth"
)

const AdminKeyHeader = "X-Admin-Key"

// requestLogger logs one line per request with the chi request id.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// AdminGuard admits a request carrying an admin session token or the admin
// key. With neither configured it admits everything only when open is set.
type AdminGuard struct {
	Verifier *auth.Verifier
	KeyHash  string
	Open     bool
}

func (g AdminGuard) allowed(r *http.Request) bool {
	if key := r.Header.Get(AdminKeyHeader); key != "" && g.KeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(g.KeyHash), []byte(key)) == nil
	}
	if g.Verifier.Enabled() {
		claims, err := g.Verifier.FromRequest(r)
		return err == nil && claims.IsAdmin
	}
	return g.Open && g.KeyHash == ""
}

func (g AdminGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.allowed(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
