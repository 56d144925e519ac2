package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eckert-ai/eckert/internal/config"
	"github.com/eckert-ai/eckert/internal/httpkit"
	"github.com/eckert-ai/eckert/internal/message"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient talks to the Ollama chat API.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOllamaClient creates a client for model at baseURL.
func NewOllamaClient(baseURL, model string, temperature float64, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		logger:      logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			// Streaming replies can be long-lived; the caller's context
			// bounds the request instead.
			httpkit.WithTimeout(0),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Model      string        `json:"model"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`
	Error      string        `json:"error,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Generate requests a complete reply.
func (c *OllamaClient) Generate(ctx context.Context, messages []message.Message, system string) (string, error) {
	return c.chat(ctx, messages, system, nil)
}

// GenerateStream requests a streamed reply, forwarding fragments to fn.
func (c *OllamaClient) GenerateStream(ctx context.Context, messages []message.Message, system string, fn StreamFunc) (string, error) {
	return c.chat(ctx, messages, system, fn)
}

func (c *OllamaClient) chat(ctx context.Context, messages []message.Message, system string, fn StreamFunc) (string, error) {
	stream := fn != nil

	req := ollamaRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages, system),
		Stream:   stream,
		Options:  &ollamaOptions{Temperature: c.temperature},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", unavailable("ollama", fmt.Errorf("marshal request: %w", err))
	}
	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", unavailable("ollama", fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", unavailable("ollama", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", unavailable("ollama", fmt.Errorf("API error %d: %s", resp.StatusCode, body))
	}

	var content strings.Builder
	var final ollamaResponse
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk ollamaResponse
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", unavailable("ollama", fmt.Errorf("decode response: %w", err))
		}
		if chunk.Error != "" {
			return "", unavailable("ollama", errors.New(chunk.Error))
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if fn != nil {
				fn(chunk.Message.Content)
			}
		}
		if chunk.Done {
			final = chunk
			break
		}
	}

	text := content.String()
	c.logger.Debug("generation complete",
		"model", c.model,
		"stream", stream,
		"prompt_tokens", final.PromptEvalCount,
		"output_tokens", final.EvalCount,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", text)

	if text == "" {
		c.logger.Warn("model returned an empty reply", "model", c.model)
	}
	return text, nil
}

func toOllamaMessages(messages []message.Message, system string) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, ollamaMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		if m.Role == message.RoleSystem {
			out = append(out, ollamaMessage{Role: "system", Content: m.Content})
			continue
		}
		out = append(out, ollamaMessage{Role: wireRole(m.Role), Content: m.Content})
	}
	return out
}

// Ping checks that the Ollama server answers.
func (c *OllamaClient) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// ListModels returns the names of locally available models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, unavailable("ollama", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("ollama", fmt.Errorf("API error %d", resp.StatusCode))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, unavailable("ollama", fmt.Errorf("decode response: %w", err))
	}

	names := make([]string, len(result.Models))
	for i, m := range result.Models {
		names[i] = m.Name
	}
	return names, nil
}
