// Package session runs conversation turns: it merges persisted history
// with new input, drives the agent loop, and records the result.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eckert-ai/eckert/internal/agent"
	"github.com/eckert-ai/eckert/internal/llm"
	"github.com/eckert-ai/eckert/internal/memory"
	"github.com/eckert-ai/eckert/internal/message"
	"github.com/eckert-ai/eckert/internal/tools"
)

// ErrEmptyInput is returned for blank user input. Nothing is persisted.
var ErrEmptyInput = errors.New("empty input")

// Runner is the part of the agent loop the controller needs.
type Runner interface {
	RunStream(ctx context.Context, history []message.Message, userInput string, fn llm.StreamFunc) (*agent.Result, error)
}

// Controller owns the turn lifecycle for every session. Callers must
// serialise turns per session id; different sessions may run
// concurrently.
type Controller struct {
	store  memory.Store
	loop   Runner
	logger *slog.Logger
}

// NewController wires a store and a loop.
func NewController(store memory.Store, loop Runner, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, loop: loop, logger: logger}
}

// Turn is the outcome of one RunTurn call.
type Turn struct {
	ID        string
	SessionID string
	Answer    string
	Steps     []agent.Step
	Exhausted bool
	Elapsed   time.Duration
}

// RunTurn answers userText in sessionID.
func (c *Controller) RunTurn(ctx context.Context, sessionID, userText string) (string, error) {
	t, err := c.Run(ctx, sessionID, userText, nil)
	if err != nil {
		return "", err
	}
	return t.Answer, nil
}

// Run is RunTurn with the full turn record and optional streaming of
// generator output. The user message is persisted before the loop runs
// and stays persisted if the loop fails.
func (c *Controller) Run(ctx context.Context, sessionID, userText string, fn llm.StreamFunc) (*Turn, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyInput
	}

	turn := &Turn{ID: uuid.NewString(), SessionID: sessionID}
	logger := c.logger.With("session", sessionID, "turn", turn.ID)
	start := time.Now()

	history, err := c.store.Read(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := c.store.Append(ctx, sessionID, message.RoleUser, userText); err != nil {
		return nil, fmt.Errorf("record user message: %w", err)
	}
	logger.Debug("turn started", "history", len(history))

	ctx = tools.WithSessionID(ctx, sessionID)
	res, err := c.loop.RunStream(ctx, history, userText, fn)
	if err != nil {
		logger.Error("turn failed", "error", err)
		return nil, err
	}

	if err := c.store.Append(ctx, sessionID, message.RoleAssistant, res.FinalAnswer); err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}

	turn.Answer = res.FinalAnswer
	turn.Steps = res.Steps
	turn.Exhausted = res.Exhausted
	turn.Elapsed = time.Since(start)

	logger.Info("turn completed",
		"steps", len(res.Steps),
		"exhausted", res.Exhausted,
		"elapsed", turn.Elapsed.Round(time.Millisecond),
	)
	return turn, nil
}

// History returns the persisted transcript of sessionID.
func (c *Controller) History(ctx context.Context, sessionID string) ([]message.Message, error) {
	return c.store.Read(ctx, sessionID)
}

// Clear purges sessionID.
func (c *Controller) Clear(ctx context.Context, sessionID string) error {
	return c.store.Clear(ctx, sessionID)
}

// Sessions lists known sessions.
func (c *Controller) Sessions(ctx context.Context) ([]memory.SessionInfo, error) {
	return c.store.Sessions(ctx)
}
