// Package agent implements the think/act/observe loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eckert-ai/eckert/internal/llm"
	"github.com/eckert-ai/eckert/internal/message"
	"github.com/eckert-ai/eckert/internal/prompts"
	"github.com/eckert-ai/eckert/internal/tools"
)

// DefaultMaxIterations bounds the THINKING cycles of one turn.
const DefaultMaxIterations = 5

// TimeoutAnswer is returned when the iteration budget runs out.
const TimeoutAnswer = "思考超时，请简化问题重试"

// NoAnswer is returned when a reply has neither an action, a final
// answer, nor a thought.
const NoAnswer = "暂无有效回答"

// Step records one THINKING cycle.
type Step struct {
	Thought     string         `json:"thought,omitempty"`
	Action      string         `json:"action,omitempty"`
	ActionInput map[string]any `json:"action_input,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Malformed   bool           `json:"malformed,omitempty"`
}

// Result is the outcome of a loop run.
type Result struct {
	FinalAnswer string `json:"final_answer"`
	Steps       []Step `json:"steps"`

	// Exhausted is set when the loop hit its iteration budget and
	// FinalAnswer is TimeoutAnswer.
	Exhausted bool `json:"exhausted"`
}

// Loop drives a generator and a tool registry until the model produces a
// final answer or the iteration budget is spent.
type Loop struct {
	generator     llm.Generator
	registry      *tools.Registry
	system        *prompts.System
	maxIterations int
	retries       int
	retryBackoff  time.Duration
	logger        *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxIterations sets the THINKING budget. Values below 1 keep the
// default.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithRetries retries a failed generator call up to n times, doubling
// backoff between attempts. The default is 0: fail the turn at once.
func WithRetries(n int, backoff time.Duration) Option {
	return func(l *Loop) {
		l.retries = n
		l.retryBackoff = backoff
	}
}

// WithSystem sets the system instruction builder.
func WithSystem(s *prompts.System) Option {
	return func(l *Loop) { l.system = s }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// New creates a loop over gen and registry.
func New(gen llm.Generator, registry *tools.Registry, opts ...Option) *Loop {
	l := &Loop{
		generator:     gen,
		registry:      registry,
		system:        prompts.NewSystem("", nil),
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.registry == nil {
		l.registry = tools.NewRegistry(l.logger)
	}
	return l
}

// MaxIterations returns the THINKING budget.
func (l *Loop) MaxIterations() int { return l.maxIterations }

// Run answers userInput given the prior transcript.
func (l *Loop) Run(ctx context.Context, history []message.Message, userInput string) (*Result, error) {
	return l.RunStream(ctx, history, userInput, nil)
}

// RunStream is Run with generator output forwarded to fn as it arrives.
// A nil fn uses single-shot generation.
func (l *Loop) RunStream(ctx context.Context, history []message.Message, userInput string, fn llm.StreamFunc) (*Result, error) {
	conv := make([]message.Message, 0, len(history)+1+2*l.maxIterations)
	conv = append(conv, message.CloneAll(history)...)
	conv = append(conv, message.User(userInput))

	system := l.system.Build(l.registry.Describe())
	result := &Result{}

	for i := 0; i < l.maxIterations; i++ {
		raw, err := l.generate(ctx, conv, system, fn)
		if err != nil {
			return nil, fmt.Errorf("think step %d: %w", i+1, err)
		}

		d := Parse(raw)
		step := Step{
			Thought:     d.Thought,
			Action:      d.Action,
			ActionInput: d.ActionInput,
			Malformed:   d.Malformed,
		}
		if d.Malformed {
			l.logger.Warn("action input is not a JSON object", "step", i+1, "action", d.Action)
		}

		switch {
		case d.HasFinalAnswer():
			result.Steps = append(result.Steps, step)
			result.FinalAnswer = d.FinalAnswer
			l.logger.Debug("final answer", "step", i+1)
			return result, nil

		case d.HasAction():
			step.Observation = l.registry.Invoke(ctx, d.Action, d.ActionInput)
			result.Steps = append(result.Steps, step)
			l.logger.Debug("tool observed",
				"step", i+1,
				"tool", d.Action,
				"failed", tools.IsFailure(step.Observation),
			)
			conv = append(conv,
				message.Assistant(raw),
				message.Tool(d.Action, d.ActionInput, step.Observation, LabelObservation+"："+step.Observation),
			)

		default:
			result.Steps = append(result.Steps, step)
			result.FinalAnswer = d.Thought
			if result.FinalAnswer == "" {
				result.FinalAnswer = NoAnswer
			}
			l.logger.Debug("no action, using thought as answer", "step", i+1)
			return result, nil
		}
	}

	l.logger.Warn("iteration budget exhausted", "max_iterations", l.maxIterations)
	result.FinalAnswer = TimeoutAnswer
	result.Exhausted = true
	return result, nil
}

func (l *Loop) generate(ctx context.Context, conv []message.Message, system string, fn llm.StreamFunc) (string, error) {
	backoff := l.retryBackoff
	for attempt := 0; ; attempt++ {
		var (
			text string
			err  error
		)
		if fn != nil {
			text, err = l.generator.GenerateStream(ctx, conv, system, fn)
		} else {
			text, err = l.generator.Generate(ctx, conv, system)
		}
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, llm.ErrGeneratorUnavailable) {
			return "", fmt.Errorf("%w: %w", llm.ErrGeneratorUnavailable, err)
		}
		if attempt >= l.retries || ctx.Err() != nil {
			return "", err
		}

		l.logger.Warn("generator failed, retrying", "attempt", attempt+1, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", llm.ErrGeneratorUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
