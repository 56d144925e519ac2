package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/eckert-ai/eckert/internal/message"
)

// timeLayout is fixed-width so that lexical order of the stored text
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a SQLite-backed transcript store.
type SQLiteStore struct {
	db          *sql.DB
	maxMessages int
	now         func() time.Time
}

// OpenSQLite opens a database file. When pureGo is set the cgo-free
// modernc driver is used instead of mattn/go-sqlite3.
func OpenSQLite(dbPath string, pureGo bool) (*sql.DB, error) {
	var db *sql.DB
	var err error
	if pureGo {
		db, err = sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	} else {
		db, err = sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// NewSQLiteStore creates a store backed by the database file at dbPath.
func NewSQLiteStore(dbPath string, maxMessages int, pureGo bool) (*SQLiteStore, error) {
	db, err := OpenSQLite(dbPath, pureGo)
	if err != nil {
		return nil, err
	}

	store, err := NewSQLiteStoreDB(db, maxMessages)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStoreDB wraps an already opened database. The caller keeps
// ownership of db only if this returns an error.
func NewSQLiteStoreDB(db *sql.DB, maxMessages int) (*SQLiteStore, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	store := &SQLiteStore{
		db:          db,
		maxMessages: maxMessages,
		now:         time.Now,
	}

	if err := store.migrate(); err != nil {
		return nil, unavailable("migrate", err)
	}
	return store, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_memory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_memory_session ON chat_memory(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts a message and trims the session inside one transaction,
// so readers never see more than maxMessages rows or a half-done trim.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, role message.Role, content string) error {
	if err := checkRole(role); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_memory (session_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, string(role), content, s.now().UTC().Format(timeLayout))
	if err != nil {
		return unavailable("insert message", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM chat_memory
		WHERE session_id = ?
		  AND id NOT IN (
			SELECT id FROM chat_memory
			WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		  )
	`, sessionID, sessionID, s.maxMessages)
	if err != nil {
		return unavailable("trim history", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

// Read returns the newest maxMessages messages, oldest first.
func (s *SQLiteStore) Read(ctx context.Context, sessionID string) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM chat_memory
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, sessionID, s.maxMessages)
	if err != nil {
		return nil, unavailable("query history", err)
	}
	defer rows.Close()

	messages := []message.Message{}
	for rows.Next() {
		var role, content, createdAt string
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, unavailable("scan history", err)
		}
		m := message.Message{Role: message.Role(role), Content: content}
		m.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate history", err)
	}

	// Newest-first from the query; flip to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Clear removes every message of a session.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_memory WHERE session_id = ?`, sessionID); err != nil {
		return unavailable("clear session", err)
	}
	return nil
}

// Sessions lists sessions by last activity.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(created_at)
		FROM chat_memory
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC, session_id ASC
	`)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer rows.Close()

	infos := []SessionInfo{}
	for rows.Next() {
		var info SessionInfo
		var last string
		if err := rows.Scan(&info.ID, &info.MessageCount, &last); err != nil {
			return nil, unavailable("scan session", err)
		}
		info.LastActive, _ = time.Parse(timeLayout, last)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sessions", err)
	}
	return infos, nil
}
