package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/eckert-ai/eckert/internal/message"
)

// ProviderConfig selects and configures one generator.
type ProviderConfig struct {
	Provider    string // "ollama" (default), "anthropic", or "gemini"
	Model       string
	BaseURL     string // ollama only
	APIKey      string // anthropic/gemini; falls back to the provider's env var
	Temperature float64
	MaxTokens   int
}

// New builds the generator described by cfg.
func New(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (Generator, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.Temperature, logger), nil
	case "anthropic":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, errors.New("anthropic provider requires an API key (models.api_key or ANTHROPIC_API_KEY)")
		}
		return NewAnthropicClient(key, cfg.Model, cfg.Temperature, cfg.MaxTokens, logger), nil
	case "gemini":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, errors.New("gemini provider requires an API key (models.api_key or GEMINI_API_KEY)")
		}
		return NewGeminiClient(ctx, key, cfg.Model, cfg.Temperature, logger)
	default:
		return nil, fmt.Errorf("unknown model provider %q (valid: ollama, anthropic, gemini)", cfg.Provider)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Chain tries each generator in order and returns the first reply. Only
// ErrGeneratorUnavailable moves on to the next generator.
type Chain struct {
	generators []Generator
	logger     *slog.Logger
}

// NewChain returns a Chain over gens. A single generator is returned
// unwrapped.
func NewChain(logger *slog.Logger, gens ...Generator) Generator {
	if len(gens) == 1 {
		return gens[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{generators: gens, logger: logger}
}

// Generate implements Generator.
func (c *Chain) Generate(ctx context.Context, messages []message.Message, system string) (string, error) {
	return c.try(ctx, func(g Generator) (string, error) {
		return g.Generate(ctx, messages, system)
	})
}

// GenerateStream implements Generator. A generator that fails after
// streaming some fragments still hands over to the next one, so fn may
// see a partial reply followed by a complete one.
func (c *Chain) GenerateStream(ctx context.Context, messages []message.Message, system string, fn StreamFunc) (string, error) {
	return c.try(ctx, func(g Generator) (string, error) {
		return g.GenerateStream(ctx, messages, system, fn)
	})
}

func (c *Chain) try(ctx context.Context, call func(Generator) (string, error)) (string, error) {
	if len(c.generators) == 0 {
		return "", unavailable("chain", errors.New("no generators configured"))
	}
	var errs []error
	for i, g := range c.generators {
		text, err := call(g)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrGeneratorUnavailable) || ctx.Err() != nil {
			return "", err
		}
		c.logger.Warn("generator failed, trying next", "index", i, "error", err)
		errs = append(errs, err)
	}
	return "", errors.Join(errs...)
}

// Ping checks the first generator that supports it.
func (c *Chain) Ping(ctx context.Context) error {
	for _, g := range c.generators {
		if p, ok := g.(Pinger); ok {
			return p.Ping(ctx)
		}
	}
	return nil
}
