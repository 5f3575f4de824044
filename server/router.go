// Package server assembles the HTTP surface: the WebDAV tree behind the
// authentication chain, plus health and metrics endpoints.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/ebogdum/davgate/auth"
	"github.com/ebogdum/davgate/config"
	"github.com/ebogdum/davgate/metrics"
	"github.com/ebogdum/davgate/server/handlers"
	davmiddleware "github.com/ebogdum/davgate/server/middleware"
	"github.com/ebogdum/davgate/session"
)

func init() {
	for _, method := range []string{"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK"} {
		chi.RegisterMethod(method)
	}
}

// NewRouter creates and configures the HTTP router. fs serves the WebDAV
// tree; sm authenticates each request into a slot of cache.
func NewRouter(
	fs webdav.FileSystem,
	sm auth.SecurityManager,
	cache *session.Cache,
	cfg *config.AppConfig,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(davmiddleware.RequestID())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(davmiddleware.SecurityHeaders())

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, http.StatusText(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("request_id", davmiddleware.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("user_agent", r.UserAgent()),
				zap.String("remote_addr", r.RemoteAddr))
		})
	})

	r.Get("/health", handlers.Health(logger))
	r.Handle("/metrics", promhttp.Handler())

	prefix := strings.TrimSuffix(cfg.Server.Prefix, "/")
	dav := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(req *http.Request, err error) {
			if err != nil {
				logger.Debug("WebDAV request failed",
					zap.String("method", req.Method),
					zap.String("path", req.URL.Path),
					zap.Error(err))
			}
		},
	}

	limiter := davmiddleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	r.Group(func(r chi.Router) {
		r.Use(davmiddleware.UnitOfWork(cache))
		r.Use(davmiddleware.RateLimit(limiter, logger))
		r.Use(davmiddleware.BasicAuth(sm, logger))
		r.Use(davmiddleware.Authorize(sm, logger))

		if prefix != "" {
			r.Handle(prefix, dav)
		}
		r.Handle(prefix+"/*", dav)
	})

	logger.Info("HTTP router configured", zap.String("prefix", cfg.Server.Prefix))

	return r
}

// NewMetricsRouter serves only /metrics, for a dedicated metrics listener.
func NewMetricsRouter() chi.Router {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}
