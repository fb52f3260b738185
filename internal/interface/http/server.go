// Package http implements the REST API of PMCraft Hub.
// The API has two audiences: authenticated service-to-service writes from the
// identity provider and the content frontend, and unauthenticated reads used
// by the frontend to render stats and achievements.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pmcraft/pmcraft-hub/internal/application/command"
	"github.com/pmcraft/pmcraft-hub/internal/application/query"
	"github.com/pmcraft/pmcraft-hub/internal/interface/http/handlers"
	"github.com/pmcraft/pmcraft-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the HTTP listener and middleware settings. Zero values fall
// back to DefaultConfig in cmd/server, not here: NewServer trusts what it is
// given.
type Config struct {
	Host string
	Port int

	// net/http server timeouts.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Request size caps. MaxHeaderBytes is enforced by net/http itself,
	// MaxBodyBytes by the size-limit middleware.
	MaxHeaderBytes int
	MaxBodyBytes   int64

	// Браузерный фронтенд ходит с другого origin, поэтому CORS включён
	// по умолчанию.
	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute ограничивает запросы с одного IP. 0 выключает
	// лимитер совсем.
	RateLimitPerMinute int

	// Service-key auth for mutating endpoints. Hashes are bcrypt.
	ServiceKeyHeader string
	ServiceKeyHashes []string
}

// DefaultConfig returns the settings used when the environment overrides
// nothing.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 300,
		ServiceKeyHeader:   "X-Service-Key",
		ServiceKeyHashes:   []string{},
	}
}

// Address returns the host:port the server binds to.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRING
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies wires the application layer into the HTTP handlers. Any nil
// handler turns its endpoint into a 501 instead of a nil-pointer panic, so a
// partially configured server still starts.
type Dependencies struct {
	// Write side.
	CreateInitialProgressHandler   *command.CreateInitialProgressHandler
	RecordLessonEventHandler       *command.RecordLessonEventHandler
	RecordScenarioEventHandler     *command.RecordScenarioEventHandler
	AnalyzeScenarioResponseHandler *command.AnalyzeScenarioResponseHandler
	DeleteProgressHandler          *command.DeleteProgressHandler

	// Read side.
	GetStatsHandler        *query.GetStatsHandler
	GetAchievementsHandler *query.GetAchievementsHandler

	Logger        *logger.Logger
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server owns the listener, the route table, and the middleware chain.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	throttle *ipThrottle
	auth     *handlers.ServiceKeyAuth

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer assembles the router and middleware chain. The server does not
// listen until Start is called.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if config.RateLimitPerMinute > 0 {
		s.throttle = newIPThrottle(config.RateLimitPerMinute, time.Minute)
	}
	s.auth = handlers.NewServiceKeyAuth(config.ServiceKeyHeader, config.ServiceKeyHashes)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Здоровье и статус
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth) // Kubernetes alias
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Read Endpoints (frontend)
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /api/v1/progress/{userId}/stats", s.handleGetStats)
	s.router.HandleFunc("GET /api/v1/progress/{userId}/achievements", s.handleGetAchievements)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Write Endpoints (service-key authenticated)
	// ─────────────────────────────────────────────────────────────────────────
	s.authed("POST /api/v1/progress/{userId}", s.handleCreateProgress)
	s.authed("DELETE /api/v1/progress/{userId}", s.handleDeleteProgress)
	s.authed("POST /api/v1/progress/{userId}/lesson", s.handleRecordLesson)
	s.authed("POST /api/v1/progress/{userId}/scenario", s.handleRecordScenario)
	s.authed("POST /api/v1/progress/{userId}/scenario/analysis", s.handleAnalyzeScenario)
}

// authed registers a route behind the service-key middleware.
func (s *Server) authed(pattern string, handler http.HandlerFunc) {
	s.router.Handle(pattern, s.auth.Middleware(handler))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router. The slice is written outermost first:
// the rate limiter sees the request before anything else, the body cap last.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	var chain []func(http.Handler) http.Handler

	if s.throttle != nil {
		chain = append(chain, s.rateLimitMiddleware)
	}
	if s.config.EnableCORS {
		chain = append(chain, s.corsMiddleware)
	}
	chain = append(chain,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		s.requestIDMiddleware,
		handlers.SecurityHeadersMiddleware,
		// Progress data is per-user and changes on every event; intermediaries
		// must not cache it.
		handlers.NoCacheMiddleware,
	)
	if s.config.MaxBodyBytes > 0 {
		chain = append(chain, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	}

	h := handler
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// requestIDMiddleware tags the request with an ID, honoring one supplied by
// the caller so traces can span services.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

// loggingMiddleware emits one access-log line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Int64("duration_ms", time.Since(start).Milliseconds()),
			logger.String("ip", clientIP(r)),
			logger.String("request_id", getRequestID(r.Context())),
		)
	})
}

// recoveryMiddleware converts handler panics into a 500 instead of tearing
// down the connection.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			s.logger.Error("panic recovered",
				logger.Any("error", rec),
				logger.String("stack", string(debug.Stack())),
				logger.String("path", r.URL.Path),
				logger.String("request_id", getRequestID(r.Context())),
			)
			writeJSONError(w, http.StatusInternalServerError,
				"internal_server_error", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Service-Key, X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
		}

		// Preflight ends here regardless of origin.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.throttle.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests,
				"rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens and serves until Shutdown. It returns nil on a clean
// shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine and reports its outcome on the
// returned channel, which closes when the server stops.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx expires. Safe to call on a
// server that never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start has been called and Shutdown has not.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the server has been serving, zero when stopped.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the configured host:port.
func (s *Server) Address() string {
	return s.config.Address()
}

// Handler exposes the fully wrapped handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope every endpoint answers with. Exactly one of
// Data and Error is set.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError carries a machine-readable code alongside the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta is stamped onto every envelope.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, resp JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON answers with a success envelope around data.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, status, JSONResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
	})
}

// writeJSONError answers with an error envelope.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, JSONResponse{
		Error: &APIError{Code: code, Message: message},
		Meta:  &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// clientIP resolves the caller's address, trusting proxy headers first.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Первый адрес в цепочке - исходный клиент.
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// IP THROTTLE
// ══════════════════════════════════════════════════════════════════════════════

// ipThrottle is a fixed-window per-IP counter. When the window rolls over the
// whole map is dropped, so memory is bounded by the number of distinct IPs
// seen in one window and no cleanup goroutine is needed. A fixed window lets
// up to 2x the limit through at a window boundary, which is fine for an
// abuse guard.
type ipThrottle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration

	resetAt time.Time
	hits    map[string]int
}

func newIPThrottle(limit int, window time.Duration) *ipThrottle {
	return &ipThrottle{
		limit:   limit,
		window:  window,
		resetAt: time.Now().Add(window),
		hits:    make(map[string]int),
	}
}

// Allow counts one request from key and reports whether it is within the
// limit for the current window.
func (t *ipThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.After(t.resetAt) {
		t.hits = make(map[string]int)
		t.resetAt = now.Add(t.window)
	}

	t.hits[key]++
	return t.hits[key] <= t.limit
}
