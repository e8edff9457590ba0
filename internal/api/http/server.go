package apihttp

import (
	"log/slog"
	"net/http"

	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultRateLimitRPS   = 100
	defaultRateLimitBurst = 200
)

// Server serves downloaded media and sibling subtitle files by absolute
// path. It keeps no state beyond the filesystem.
type Server struct {
	fs             afero.Fs
	logger         *slog.Logger
	allowedOrigins []string
	rps            float64
	burst          int

	handler http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFs replaces the filesystem files are served from.
func WithFs(fs afero.Fs) ServerOption {
	return func(s *Server) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithRateLimit sets the global token bucket. A non-positive rps disables it.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rps = rps
		s.burst = burst
	}
}

func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		fs:     afero.NewOsFs(),
		logger: slog.Default(),
		rps:    defaultRateLimitRPS,
		burst:  defaultRateLimitBurst,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/video", s.handleVideo)
	mux.HandleFunc("/vtt", s.handleVTT)
	mux.HandleFunc("/health", s.handleHealth)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "stream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	)
	var handler http.Handler = metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))
	if s.rps > 0 {
		handler = rateLimitMiddleware(s.rps, s.burst, handler)
	}
	s.handler = recoveryMiddleware(s.logger, requestIDMiddleware(handler))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
