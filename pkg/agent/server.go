package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/condition"
)

// Registry is the part of condition.Manager the handlers need
type Registry interface {
	IDs() []card.ID
	Has(id card.ID) bool
	Inspect(ctx context.Context, id card.ID, wait time.Duration) condition.Status
}

// DismissalStore persists dismissed cards
type DismissalStore interface {
	Dismiss(id card.ID) error
	Restore(id card.ID) error
	Dismissed() (map[card.ID]time.Time, error)
}

// Backend is what the handlers read from and write to
type Backend struct {
	Snapshot   *Snapshot
	Registry   Registry
	Dismissals DismissalStore
}

// Server represents the agent server
type Server struct {
	config     Config
	backend    Backend
	httpServer *http.Server
	logger     *zap.Logger
	logFile    *os.File
}

// NewServer creates a new agent server
func NewServer(config Config, backend Backend, logger *zap.Logger) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if backend.Snapshot == nil || backend.Registry == nil || backend.Dismissals == nil {
		return nil, fmt.Errorf("incomplete backend")
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = DefaultConfig().CheckTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &Server{
		config:  config,
		backend: backend,
	}

	if config.LogFile != "" {
		logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(logFile),
			zap.InfoLevel,
		)
		logger = zap.New(zapcore.NewTee(logger.Core(), fileCore))
		server.logFile = logFile
	}
	server.logger = logger.Named("agent")

	tlsConfig, err := config.LoadTLSConfig()
	if err != nil {
		server.closeLog()
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      server.Handler(),
		TLSConfig:    tlsConfig,
		ErrorLog:     zap.NewStdLog(server.logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// Handler returns the routed handler with request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cards", s.loggingMiddleware(s.cardsHandler))
	mux.HandleFunc("GET /cards/{id}", s.loggingMiddleware(s.cardHandler))
	mux.HandleFunc("POST /cards/{id}/dismiss", s.loggingMiddleware(s.dismissHandler))
	mux.HandleFunc("DELETE /cards/{id}/dismiss", s.loggingMiddleware(s.restoreHandler))
	mux.HandleFunc("GET /health", s.loggingMiddleware(healthHandler))
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting agent server",
		zap.Int("port", s.config.Port),
		zap.Bool("tls", s.config.TLSEnabled()),
		zap.Bool("client_auth", s.config.CAFile != ""))

	var err error
	if s.config.TLSEnabled() {
		// Certificates are already loaded in the TLS config.
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down agent server")
	err := s.httpServer.Shutdown(ctx)
	s.closeLog()
	return err
}

func (s *Server) closeLog() {
	if s.logFile == nil {
		return
	}
	_ = s.logger.Sync()
	_ = s.logFile.Close()
	s.logFile = nil
}

// loggingMiddleware logs incoming requests
func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientCert := "none"
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			clientCert = r.TLS.PeerCertificates[0].Subject.CommonName
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		s.logger.Info("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.String("remote", r.RemoteAddr),
			zap.String("client", clientCert),
			zap.Duration("duration", time.Since(start)))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// healthHandler returns server health status
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK\n")
}
