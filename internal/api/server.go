// Package api serves sessions over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eckert-ai/eckert/internal/agent"
	"github.com/eckert-ai/eckert/internal/buildinfo"
	"github.com/eckert-ai/eckert/internal/connwatch"
	"github.com/eckert-ai/eckert/internal/llm"
	"github.com/eckert-ai/eckert/internal/memory"
	"github.com/eckert-ai/eckert/internal/message"
	"github.com/eckert-ai/eckert/internal/session"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	addr           string
	sessions       *session.Controller
	defaultSession string
	locks          *sessionLocks
	upgrader       websocket.Upgrader
	watcher        *connwatch.Watcher
	logger         *slog.Logger
	server         *http.Server
}

// NewServer creates a server bound to addr (host:port).
func NewServer(addr string, sessions *session.Controller, defaultSession string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:           addr,
		sessions:       sessions,
		defaultSession: defaultSession,
		locks:          newSessionLocks(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// SetGeneratorWatcher reports the generator's reachability on /health.
func (s *Server) SetGeneratorWatcher(w *connwatch.Watcher) {
	s.watcher = w
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleMessages)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleClear)
	mux.HandleFunc("GET /v1/sessions", s.handleSessionList)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleWebSocket)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	s.registerOllamaRoutes(mux)

	return s.withLogging(mux)
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "address", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Eckert",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Current(), s.logger)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                   `json:"status"`
	Uptime    string                   `json:"uptime"`
	Generator *connwatch.ServiceStatus `json:"generator,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Uptime: buildinfo.Uptime().String()}
	code := http.StatusOK
	if s.watcher != nil {
		st := s.watcher.Status()
		resp.Generator = &st
		if !st.Ready {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, resp, s.logger)
}

// TurnRequest is the body of POST /v1/sessions/{id}/turns.
type TurnRequest struct {
	Message string `json:"message"`
}

// TurnResponse is the reply to a completed turn.
type TurnResponse struct {
	SessionID string       `json:"session_id"`
	TurnID    string       `json:"turn_id"`
	Answer    string       `json:"answer"`
	Steps     []agent.Step `json:"steps"`
	Exhausted bool         `json:"exhausted"`
	ElapsedMS int64        `json:"elapsed_ms"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := s.runTurn(r.Context(), id, req.Message, nil)
	if err != nil {
		s.logger.Warn("turn failed", "session", id, "error", err)
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, TurnResponse{
		SessionID: turn.SessionID,
		TurnID:    turn.ID,
		Answer:    turn.Answer,
		Steps:     turn.Steps,
		Exhausted: turn.Exhausted,
		ElapsedMS: turn.Elapsed.Milliseconds(),
	}, s.logger)
}

// runTurn serialises turns per session id.
func (s *Server) runTurn(ctx context.Context, sessionID, text string, fn llm.StreamFunc) (*session.Turn, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()
	return s.sessions.Run(ctx, sessionID, text, fn)
}

// MessagesResponse is the reply to GET /v1/sessions/{id}/messages.
type MessagesResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []message.Message `json:"messages"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs, err := s.sessions.History(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to read history", "session", id, "error", err)
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, MessagesResponse{SessionID: id, Messages: msgs}, s.logger)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	unlock := s.locks.lock(id)
	err := s.sessions.Clear(r.Context(), id)
	unlock()

	if err != nil {
		s.logger.Error("failed to clear session", "session", id, "error", err)
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("session cleared", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sessions.Sessions(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"sessions": infos}, s.logger)
}

// statusFor maps turn and store errors to HTTP status codes. Deadlines
// come first: generator and store failures wrap the context error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrGeneratorUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}
