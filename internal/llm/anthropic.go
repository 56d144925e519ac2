package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/eckert-ai/eckert/internal/config"
	"github.com/eckert-ai/eckert/internal/httpkit"
	"github.com/eckert-ai/eckert/internal/message"
)

// DefaultMaxTokens caps a single reply for providers that require a limit.
const DefaultMaxTokens = 1024

// AnthropicClient generates replies through the Anthropic Messages API.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
	logger      *slog.Logger
}

// NewAnthropicClient creates a client. Extra request options are appended
// after the defaults, so tests can swap the HTTP client or base URL.
func NewAnthropicClient(apiKey, model string, temperature float64, maxTokens int, logger *slog.Logger, opts ...option.RequestOption) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(0))),
		option.WithMaxRetries(0),
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(append(base, opts...)...),
		model:       model,
		temperature: temperature,
		maxTokens:   int64(maxTokens),
		logger:      logger.With("provider", "anthropic"),
	}
}

func (c *AnthropicClient) params(messages []message.Message, system string) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Messages:    toAnthropicMessages(messages),
		Temperature: anthropic.Float(c.temperature),
	}
	if system != "" {
		p.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return p
}

// Generate requests a complete reply.
func (c *AnthropicClient) Generate(ctx context.Context, messages []message.Message, system string) (string, error) {
	msg, err := c.client.Messages.New(ctx, c.params(messages, system))
	if err != nil {
		return "", unavailable("anthropic", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	c.logger.Debug("generation complete",
		"model", c.model,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
		"stop_reason", msg.StopReason,
	)
	c.logger.Log(ctx, config.LevelTrace, "response content", "content", sb.String())

	if sb.Len() == 0 {
		c.logger.Warn("model returned an empty reply", "model", c.model)
	}
	return sb.String(), nil
}

// GenerateStream requests a streamed reply, forwarding text deltas to fn.
func (c *AnthropicClient) GenerateStream(ctx context.Context, messages []message.Message, system string, fn StreamFunc) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(messages, system))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				sb.WriteString(delta.Text)
				if fn != nil {
					fn(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", unavailable("anthropic", err)
	}
	if sb.Len() == 0 {
		c.logger.Warn("model returned an empty reply", "model", c.model)
	}
	return sb.String(), nil
}

func toAnthropicMessages(messages []message.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == message.RoleSystem {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if wireRole(m.Role) == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
