package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/swsh/pkg/logging"
)

// Config configures the HTTP server.
type Config struct {
	Addr     string
	Registry *prometheus.Registry
	Status   Status
	Audit    *logging.Buffer
	// Auth protects everything but /health and /metrics. Nil disables it.
	Auth *AuthConfig
}

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse is returned by /api/v1/status.
type StatusResponse struct {
	Uptime   string `json:"uptime"`
	Release  string `json:"release"`
	Syntax   string `json:"syntax"`
	Sessions int    `json:"sessions"`
}

// AuditEntry is one record of /api/v1/audit.
type AuditEntry struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`
	Mode    string    `json:"mode"`
	Line    string    `json:"line"`
	Result  string    `json:"result"`
}

// Server is the HTTP metrics and status server.
type Server struct {
	httpServer *http.Server
	status     Status
	audit      *logging.Buffer
	startTime  time.Time
}

// NewServer creates a server. The status collector is added to
// cfg.Registry.
func NewServer(cfg Config) *Server {
	s := &Server{
		status:    cfg.Status,
		audit:     cfg.Audit,
		startTime: time.Now(),
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.Status != nil {
		cfg.Registry.MustRegister(newStatusCollector(cfg.Status))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /api/v1/status", s.statusHandler)
	mux.HandleFunc("GET /api/v1/audit", s.auditHandler)

	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = authMiddleware(*cfg.Auth, mux)
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true})
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: StatusResponse{
		Uptime:   time.Since(s.startTime).Truncate(time.Second).String(),
		Release:  s.status.Release(),
		Syntax:   s.status.SyntaxVersion(),
		Sessions: s.status.Sessions(),
	}})
}

// auditHandler serves the audit buffer. Query parameters: count (default
// 100), session, result, text.
func (s *Server) auditHandler(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}
	q := r.URL.Query()
	n := 100
	if v := q.Get("count"); v != "" {
		c, err := strconv.Atoi(v)
		if err != nil || c < 1 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		n = c
	}
	recs := s.audit.Latest(n, logging.Filter{
		Session: q.Get("session"),
		Result:  q.Get("result"),
		Text:    q.Get("text"),
	})
	out := make([]AuditEntry, len(recs))
	for i, r := range recs {
		out[i] = AuditEntry{Time: r.Time, Session: r.Session, Mode: r.Mode, Line: r.Line, Result: r.Result}
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: out})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, Response{Success: false, Error: msg})
}
