package llm

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/eckert-ai/eckert/internal/config"
	"github.com/eckert-ai/eckert/internal/message"
)

// GeminiAPI is the slice of the genai client the generator uses.
type GeminiAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiClient generates replies through the Gemini API.
type GeminiClient struct {
	api         GeminiAPI
	model       string
	temperature float32
	logger      *slog.Logger
}

// NewGeminiClient connects to the Gemini API with apiKey.
func NewGeminiClient(ctx context.Context, apiKey, model string, temperature float64, logger *slog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, unavailable("gemini", err)
	}
	return NewGeminiClientWithAPI(client.Models, model, temperature, logger), nil
}

// NewGeminiClientWithAPI wraps an existing API implementation.
func NewGeminiClientWithAPI(api GeminiAPI, model string, temperature float64, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		api:         api,
		model:       model,
		temperature: float32(temperature),
		logger:      logger.With("provider", "gemini"),
	}
}

func (c *GeminiClient) config(system string) *genai.GenerateContentConfig {
	temp := c.temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}
	return cfg
}

// Generate requests a complete reply.
func (c *GeminiClient) Generate(ctx context.Context, messages []message.Message, system string) (string, error) {
	resp, err := c.api.GenerateContent(ctx, c.model, toGeminiContents(messages), c.config(system))
	if err != nil {
		return "", unavailable("gemini", err)
	}
	text, err := geminiText(resp)
	if err != nil {
		return "", unavailable("gemini", err)
	}
	if text == "" {
		c.logger.Warn("model returned an empty reply", "model", c.model)
	}
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", text)
	return text, nil
}

// GenerateStream requests a streamed reply, forwarding fragments to fn.
func (c *GeminiClient) GenerateStream(ctx context.Context, messages []message.Message, system string, fn StreamFunc) (string, error) {
	var sb strings.Builder
	for resp, err := range c.api.GenerateContentStream(ctx, c.model, toGeminiContents(messages), c.config(system)) {
		if err != nil {
			return "", unavailable("gemini", err)
		}
		chunk, err := geminiText(resp)
		if err != nil {
			return "", unavailable("gemini", err)
		}
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if fn != nil {
			fn(chunk)
		}
	}
	if sb.Len() == 0 {
		c.logger.Warn("model returned an empty reply", "model", c.model)
	}
	return sb.String(), nil
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", errors.New("content blocked by safety filters")
	}
	if candidate.Content == nil {
		return "", nil
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func toGeminiContents(messages []message.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == message.RoleSystem || m.Content == "" {
			continue
		}
		role := "user"
		if wireRole(m.Role) == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}
	return contents
}
