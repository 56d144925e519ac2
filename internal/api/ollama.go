package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eckert-ai/eckert/internal/buildinfo"
	"github.com/eckert-ai/eckert/internal/message"
)

// Ollama-compatible endpoints let clients built for Ollama's /api/chat
// talk to a session. Only the newest user message of each request is
// used; the session's own transcript supplies the context.

// ollamaModelName is the model name reported to Ollama clients.
const ollamaModelName = "eckert"

// SessionHeader selects the session for Ollama-compatible requests.
const SessionHeader = "X-Session-Id"

// OllamaChatRequest is the Ollama /api/chat request format.
type OllamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []OllamaChatMessage `json:"messages"`
	Stream   *bool               `json:"stream,omitempty"`
	Options  map[string]any      `json:"options,omitempty"`
}

// OllamaChatMessage is the Ollama message format.
type OllamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaChatResponse is the Ollama /api/chat response format.
type OllamaChatResponse struct {
	Model         string            `json:"model"`
	CreatedAt     string            `json:"created_at"`
	Message       OllamaChatMessage `json:"message"`
	Done          bool              `json:"done"`
	DoneReason    string            `json:"done_reason,omitempty"`
	TotalDuration int64             `json:"total_duration,omitempty"`
}

// OllamaTagsResponse is the Ollama /api/tags response format.
type OllamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// OllamaModel represents a model in the tags response.
type OllamaModel struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

// OllamaVersionResponse is the Ollama /api/version response.
type OllamaVersionResponse struct {
	Version string `json:"version"`
}

func (s *Server) registerOllamaRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", s.handleOllamaChat)
	mux.HandleFunc("GET /api/tags", s.handleOllamaTags)
	mux.HandleFunc("GET /api/version", s.handleOllamaVersion)
}

// lastUserMessage returns the content of the newest user message.
func lastUserMessage(msgs []OllamaChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == string(message.RoleUser) {
			return msgs[i].Content
		}
	}
	return ""
}

func (s *Server) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req OllamaChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ollamaError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.Header.Get(SessionHeader)
	if id == "" {
		id = s.defaultSession
	}
	stream := req.Stream == nil || *req.Stream

	s.logger.Info("ollama chat request received",
		"remote_addr", r.RemoteAddr,
		"user_agent", r.Header.Get("User-Agent"),
		"model", req.Model,
		"messages", len(req.Messages),
		"stream", stream,
		"session", id,
	)

	turn, err := s.runTurn(r.Context(), id, lastUserMessage(req.Messages), nil)
	if err != nil {
		s.logger.Warn("ollama chat failed", "session", id, "error", err)
		ollamaError(w, statusFor(err), err.Error())
		return
	}

	model := req.Model
	if model == "" {
		model = ollamaModelName
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	answer := OllamaChatMessage{Role: string(message.RoleAssistant), Content: turn.Answer}

	if !stream {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, OllamaChatResponse{
			Model:         model,
			CreatedAt:     now,
			Message:       answer,
			Done:          true,
			DoneReason:    "stop",
			TotalDuration: time.Since(start).Nanoseconds(),
		}, s.logger)
		return
	}

	// Streaming clients get the answer as one chunk followed by the
	// done marker. Intermediate reasoning is never streamed.
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	for _, chunk := range []OllamaChatResponse{
		{Model: model, CreatedAt: now, Message: answer},
		{
			Model:         model,
			CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
			Message:       OllamaChatMessage{Role: string(message.RoleAssistant)},
			Done:          true,
			DoneReason:    "stop",
			TotalDuration: time.Since(start).Nanoseconds(),
		},
	} {
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "%s\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleOllamaTags(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, OllamaTagsResponse{
		Models: []OllamaModel{{
			Name:       ollamaModelName + ":latest",
			Model:      ollamaModelName + ":latest",
			ModifiedAt: time.Now().UTC().Format(time.RFC3339),
			Digest:     buildinfo.GitCommit,
		}},
	}, s.logger)
}

func (s *Server) handleOllamaVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, OllamaVersionResponse{Version: buildinfo.Version}, s.logger)
}

// ollamaError writes an error in Ollama's {"error": "..."} shape.
func ollamaError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
