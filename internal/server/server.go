package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jonathan/bookmeta/internal/catalog"
	"github.com/jonathan/bookmeta/internal/config"
	"github.com/jonathan/bookmeta/internal/server/middleware"
	"github.com/jonathan/bookmeta/internal/server/ratelimit"
	"github.com/jonathan/bookmeta/internal/source"
	"github.com/jonathan/bookmeta/internal/types"
)

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	source      *source.Source
	timeout     time.Duration
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	logger      *slog.Logger
	onShutdown  func()
}

// Config holds server configuration
type Config struct {
	Addr    string
	Source  *source.Source
	Timeout time.Duration // Per catalog round trip
	// JWT enables bearer authentication on lookup routes when non-nil.
	JWT *config.JWTConfig
	// RateLimit defaults to ratelimit.LoadConfig when nil.
	RateLimit *ratelimit.Config
	Logger    *slog.Logger
	// OnShutdown runs after the listener has drained.
	OnShutdown func()
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, errors.New("server requires a source")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = ratelimit.LoadConfig()
	}

	s := &Server{
		source:      cfg.Source,
		timeout:     cfg.Timeout,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		logger:      cfg.Logger,
		onShutdown:  cfg.OnShutdown,
	}
	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /identify", s.authenticated(s.handleIdentify))
	mux.Handle("GET /cover", s.authenticated(s.handleCover))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // A cascade can take several catalog round trips
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until ctx is cancelled or the process receives SIGINT or SIGTERM,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr, "auth", s.jwtService != nil)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.release()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.release()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) release() {
	s.rateLimiter.Stop()
	if s.onShutdown != nil {
		s.onShutdown()
	}
}

// authenticated wraps h with bearer authentication when JWT is configured.
func (s *Server) authenticated(h http.HandlerFunc) http.Handler {
	if s.jwtService == nil {
		return h
	}
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

// handleHealth returns server health and the source's declared capabilities
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"source":       catalog.SourceName,
		"capabilities": s.source.Capabilities(),
	})
}

// identifyResponse is the /identify response body.
type identifyResponse struct {
	Session string                `json:"session"`
	Record  *types.MetadataRecord `json:"record"`
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	req, err := parseIdentifyRequest(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	session := s.source.NewSession()
	record, err := session.Lookup(r.Context(), req, s.timeout)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, identifyResponse{Session: session.ID.String(), Record: record})
}

// handleCover resolves the book and streams its cover image. The lookup and the
// download share one session so the discovered cover URL is visible to the download.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	req, err := parseIdentifyRequest(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	session := s.source.NewSession()
	record, err := session.Lookup(r.Context(), req, s.timeout)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	data, err := session.FetchCover(r.Context(), record.Identifiers, s.timeout)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Catalog-Id", record.Identifier)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write cover", "error", err)
	}
}

// parseIdentifyRequest reads title, author (repeatable) and id query parameters.
func parseIdentifyRequest(r *http.Request) (types.IdentifyRequest, error) {
	q := r.URL.Query()

	req := types.IdentifyRequest{Title: strings.TrimSpace(q.Get("title"))}
	for _, a := range q["author"] {
		if a = strings.TrimSpace(a); a != "" {
			req.Authors = append(req.Authors, a)
		}
	}

	if id := strings.TrimSpace(q.Get("id")); id != "" {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return req, &ErrValidation{Field: "id", Message: "must be a numeric catalog id"}
		}
		req.Identifiers = map[string]string{types.IdentifierKey: id}
	}

	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse maps err to a status and writes a JSON error body
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status, code := HTTPStatus(err)
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request failed", "path", r.URL.Path, "status", status, "error", err)

	s.jsonResponse(w, status, map[string]string{"error": code, "message": err.Error()})
}

// clientID identifies the caller by remote IP.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}
	if info.RetryAfter > 0 {
		secs := int(math.Ceil(info.RetryAfter.Seconds()))
		response["retry_after"] = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	s.logger.Warn("rate limit exceeded", "client", clientID(r), "path", r.URL.Path, "limit", info.Limit)
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
