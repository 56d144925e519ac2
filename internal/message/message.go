// Package message defines the transcript unit shared by the store, the
// reasoning loop, and the generator providers.
package message

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// ErrInvalidRole is returned when a role string is outside the closed set.
var ErrInvalidRole = errors.New("invalid role")

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ParseRole converts a case-insensitive string to a [Role].
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Persisted reports whether messages with this role are written to a
// transcript. Only the user/assistant dialogue is kept across turns;
// system instructions are rebuilt every turn and tool traffic lives in
// the loop's step log.
func (r Role) Persisted() bool {
	return r == RoleUser || r == RoleAssistant
}

func (r Role) String() string { return string(r) }

// Message is a single utterance. It is a value type: holders get their
// own copy, and revisions go through WithContent rather than mutation.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolInput  map[string]any `json:"tool_input,omitempty"`
	ToolOutput string         `json:"tool_output,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// New creates a message stamped with the current time.
func New(role Role, content string) Message {
	return Message{Role: role, Content: content, CreatedAt: time.Now()}
}

// User is shorthand for New(RoleUser, content).
func User(content string) Message { return New(RoleUser, content) }

// Assistant is shorthand for New(RoleAssistant, content).
func Assistant(content string) Message { return New(RoleAssistant, content) }

// System is shorthand for New(RoleSystem, content).
func System(content string) Message { return New(RoleSystem, content) }

// Tool records a tool observation. input is copied.
func Tool(name string, input map[string]any, output, content string) Message {
	m := New(RoleTool, content)
	m.ToolName = name
	m.ToolInput = maps.Clone(input)
	m.ToolOutput = output
	return m
}

// WithContent returns a revision of m carrying new content. The
// original is left untouched.
func (m Message) WithContent(content string) Message {
	rev := m
	rev.Content = content
	rev.ToolInput = maps.Clone(m.ToolInput)
	rev.CreatedAt = time.Now()
	return rev
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	c := m
	c.ToolInput = maps.Clone(m.ToolInput)
	return c
}

// CloneAll copies a transcript slice.
func CloneAll(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
