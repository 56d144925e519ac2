// Package memory provides conversation memory storage.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eckert-ai/eckert/internal/message"
)

// DefaultMaxMessages is the per-session retention when none is configured.
const DefaultMaxMessages = 10

var (
	// ErrStorageUnavailable wraps any failure of the backing store. A
	// turn that hits it is aborted; the message may not have been saved.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidRole is returned by Append for roles that are not part of
	// the persisted dialogue (anything other than user and assistant).
	ErrInvalidRole = message.ErrInvalidRole
)

// Store is a session-keyed, append-only transcript log with retention.
// Implementations are safe for concurrent use across sessions; turns
// within one session must be serialized by the caller.
type Store interface {
	// Append records a message and trims the session to the newest N
	// messages in the same atomic step.
	Append(ctx context.Context, sessionID string, role message.Role, content string) error

	// Read returns the session's messages oldest first. Unknown sessions
	// yield an empty slice and no error.
	Read(ctx context.Context, sessionID string) ([]message.Message, error)

	// Clear deletes every message of the session. Clearing an unknown or
	// already empty session is not an error.
	Clear(ctx context.Context, sessionID string) error

	// Sessions lists known sessions, most recently active first.
	Sessions(ctx context.Context) ([]SessionInfo, error)

	Close() error
}

// SessionInfo summarises one stored session.
type SessionInfo struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	LastActive   time.Time `json:"last_active"`
}

func checkRole(role message.Role) error {
	if !role.Persisted() {
		return fmt.Errorf("%w: %q (only user and assistant messages are stored)", ErrInvalidRole, role)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// MemStore keeps transcripts in process memory. Nothing survives a
// restart; it backs one-shot commands and tests.
type MemStore struct {
	mu          sync.RWMutex
	sessions    map[string][]message.Message
	maxMessages int
}

// NewMemStore creates an in-memory store.
func NewMemStore(maxMessages int) *MemStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &MemStore{
		sessions:    make(map[string][]message.Message),
		maxMessages: maxMessages,
	}
}

// Append adds a message to a session and drops the oldest overflow.
func (s *MemStore) Append(ctx context.Context, sessionID string, role message.Role, content string) error {
	if err := checkRole(role); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("append", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.sessions[sessionID], message.New(role, content))
	if len(msgs) > s.maxMessages {
		msgs = append([]message.Message(nil), msgs[len(msgs)-s.maxMessages:]...)
	}
	s.sessions[sessionID] = msgs
	return nil
}

// Read returns a copy of the session transcript.
func (s *MemStore) Read(ctx context.Context, sessionID string) ([]message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("read", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return message.CloneAll(s.sessions[sessionID]), nil
}

// Clear removes a session.
func (s *MemStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Sessions lists sessions by last activity.
func (s *MemStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(s.sessions))
	for id, msgs := range s.sessions {
		if len(msgs) == 0 {
			continue
		}
		infos = append(infos, SessionInfo{
			ID:           id,
			MessageCount: len(msgs),
			LastActive:   msgs[len(msgs)-1].CreatedAt,
		})
	}
	sortSessions(infos)
	return infos, nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

func sortSessions(infos []SessionInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].LastActive.Equal(infos[j].LastActive) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].LastActive.After(infos[j].LastActive)
	})
}
