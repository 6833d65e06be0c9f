// Package server exposes the perfect-number streams over HTTP: newline-
// delimited JSON, server-sent events and WebSocket, plus the small
// non-streaming query endpoints, session listing, health and metrics.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/perfect-stream/backend/internal/config"
	"github.com/perfect-stream/backend/internal/metrics"
	"github.com/perfect-stream/backend/internal/scheduler"
	"github.com/perfect-stream/backend/internal/session"
	"github.com/perfect-stream/backend/internal/stream"
)

// Deps are the collaborators a Server needs. External may be nil, which
// disables external mode.
type Deps struct {
	Store     *session.Store
	InProcess *scheduler.Scheduler
	External  stream.Producer
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

type Server struct {
	config         *config.Config
	store          *session.Store
	inProcess      *scheduler.Scheduler
	external       stream.Producer
	emitter        *stream.Emitter
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	logger         *slog.Logger
	limiter        *rate.Limiter
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	inProcess := deps.InProcess
	if inProcess == nil {
		inProcess = scheduler.New(scheduler.WithLogger(logger), scheduler.WithMetrics(deps.Metrics))
	}
	store := deps.Store
	if store == nil {
		store = session.NewStore()
	}

	s := &Server{
		config:         cfg,
		store:          store,
		inProcess:      inProcess,
		external:       deps.External,
		emitter:        &stream.Emitter{Logger: logger, Metrics: deps.Metrics},
		metrics:        deps.Metrics,
		gatherer:       deps.Gatherer,
		logger:         logger,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}

	if rl := cfg.Server.RateLimit; rl.RPS > 0 {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rl.RPS), burst)
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/perfect/stream", s.handleStream)
	mux.HandleFunc("/api/perfect/events", s.handleEvents)
	mux.HandleFunc("/api/perfect/list", s.handleList)
	mux.HandleFunc("/api/perfect/check", s.handleCheck)
	mux.HandleFunc("/ws/perfect", s.handleWS)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/health", s.handleHealth)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the routed handler wrapped in the server middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

// NewHTTPServer builds the listening server. No write timeout is set: streams
// are long-lived and each record write carries its own deadline instead.
func NewHTTPServer(host string, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// admit reports whether a new stream may start now.
func (s *Server) admit() bool {
	return s.limiter == nil || s.limiter.Allow()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requireGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
