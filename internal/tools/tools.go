// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	InputSchema *jsonschema.Schema                                             `json:"input_schema,omitempty"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool. Names are unique; a second registration under
// the same name fails with ErrDuplicateTool.
func (r *Registry) Register(t *Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	if t.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Resolve retrieves a tool by name.
func (r *Registry) Resolve(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, &ErrToolNotFound{ToolName: name}
	}
	return t, nil
}

// List returns all tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Describe renders one "- name：description" line per tool for the
// system prompt.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for i, t := range r.List() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s：%s", t.Name, t.Description)
		if params := paramSummary(t.InputSchema); params != "" {
			fmt.Fprintf(&sb, "（参数：%s）", params)
		}
	}
	return sb.String()
}

// Invoke runs a tool and always produces an observation. Lookup,
// validation, handler errors, and panics are all converted to text
// starting with one of the failure prefixes so the caller can keep
// reasoning.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) string {
	t, err := r.Resolve(name)
	if err != nil {
		r.logger.Warn("tool not found", "tool", name)
		return fmt.Sprintf("%s工具%s不存在", NotFoundPrefix, name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArgs(args, t.InputSchema); err != nil {
		r.logger.Warn("tool arguments rejected", "tool", name, "error", err)
		return ValidationPrefix + err.Error()
	}

	start := time.Now()
	out, err := r.call(ctx, t, args)
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err, "duration_ms", elapsed.Milliseconds())
		return FailurePrefix + err.Error()
	}

	r.logger.Debug("tool completed", "tool", name, "result_len", len(out), "duration_ms", elapsed.Milliseconds())
	return out
}

func (r *Registry) call(ctx context.Context, t *Tool, args map[string]any) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return t.Handler(ctx, args)
}
