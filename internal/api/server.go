// Package api provides REST API endpoints for decoding BUFR bulletins.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"bufr_decoder/internal/bufr"
	"bufr_decoder/internal/metrics"
	"bufr_decoder/internal/storage"
)

// Server provides REST API access to the decoder.
type Server struct {
	dec         *bufr.Decoder
	store       storage.Store // Nil disables ?store=true.
	port        int
	maxBody     int64
	authEnabled bool
	apiKeys     map[string]bool // Simple API key auth (when enabled).
	log         logrus.FieldLogger
}

// Config holds configuration for the API server.
type Config struct {
	Port         int      `mapstructure:"port"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes"`
	AuthEnabled  bool     `mapstructure:"auth_enabled"`
	APIKeys      []string `mapstructure:"api_keys"` // List of valid API keys.
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		MaxBodyBytes: 16 << 20,
	}
}

// NewServer creates a new API server. store may be nil.
func NewServer(dec *bufr.Decoder, store storage.Store, cfg Config, log logrus.FieldLogger) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	return &Server{
		dec:         dec,
		store:       store,
		port:        cfg.Port,
		maxBody:     cfg.MaxBodyBytes,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		log:         log,
	}
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithFields(logrus.Fields{
			"addr": srv.Addr,
			"auth": s.authEnabled,
		}).Info("BUFR API starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(instrument)

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.authEnabled {
				r.Use(s.authMiddleware)
			}
			r.Post("/decode", s.handleDecode)
		})
	})

	return r
}

// instrument records request counts and latency per route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		metrics.RecordHTTPRequest(r.Method, path, ww.Status(), time.Since(start))
	})
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DecodeResponse is the JSON response of the decode endpoint.
type DecodeResponse struct {
	Messages []MessageResponse `json:"messages"`
	Errors   []ErrorResponse   `json:"errors,omitempty"`
}

// MessageResponse is one decoded message. ID is set when it was stored.
type MessageResponse struct {
	ID      string        `json:"id,omitempty"`
	Message *bufr.Message `json:"message"`
}

// ErrorResponse describes one message that could not be decoded.
type ErrorResponse struct {
	Index  int    `json:"index"`
	Offset int64  `json:"offset"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDecode decodes every message in the request body. With ?store=true
// the decoded messages are also persisted; ?source= names their origin.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	store := r.URL.Query().Get("store") == "true"
	if store && s.store == nil {
		writeError(w, http.StatusBadRequest, "Storage is not configured")
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "http:" + r.RemoteAddr
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Body too large: "+err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Empty body")
		return
	}

	msgs, errs := s.dec.DecodeAll(r.Context(), bytes.NewReader(body))
	metrics.RecordDecode("http", msgs, errs)

	resp := DecodeResponse{Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		mr := MessageResponse{Message: m}
		if store {
			id, err := s.store.Store(r.Context(), m, source)
			if err != nil {
				metrics.RecordStoreError("http")
				s.log.WithError(err).WithField("source", source).Error("store decoded message")
				writeError(w, http.StatusInternalServerError, "Store failed: "+err.Error())
				return
			}
			mr.ID = id
		}
		resp.Messages = append(resp.Messages, mr)
	}
	for _, err := range errs {
		er := ErrorResponse{Kind: metrics.ErrorKind(err), Error: err.Error()}
		var merr *bufr.MessageError
		if errors.As(err, &merr) {
			er.Index, er.Offset = merr.Index, merr.Offset
		}
		resp.Errors = append(resp.Errors, er)
	}

	status := http.StatusOK
	if len(msgs) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
