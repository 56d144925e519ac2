package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eckert-ai/eckert/internal/message"
)

// backends returns a constructor per store implementation so that every
// behavioural test runs against all of them.
func backends() map[string]func(t *testing.T, max int) Store {
	return map[string]func(t *testing.T, max int) Store{
		"memory": func(t *testing.T, max int) Store {
			return NewMemStore(max)
		},
		"sqlite": func(t *testing.T, max int) Store {
			return newTestSQLiteStore(t, max)
		},
		"bolt": func(t *testing.T, max int) Store {
			t.Helper()
			s, err := NewBoltStore(filepath.Join(t.TempDir(), "eckert.bolt"), max)
			if err != nil {
				t.Fatalf("NewBoltStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func newTestSQLiteStore(t *testing.T, max int) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLiteStoreDB(db, max)
	if err != nil {
		t.Fatalf("NewSQLiteStoreDB: %v", err)
	}
	return s
}

func mustAppend(t *testing.T, s Store, session string, role message.Role, content string) {
	t.Helper()
	if err := s.Append(context.Background(), session, role, content); err != nil {
		t.Fatalf("Append(%q, %q, %q): %v", session, role, content, err)
	}
}

func mustRead(t *testing.T, s Store, session string) []message.Message {
	t.Helper()
	msgs, err := s.Read(context.Background(), session)
	if err != nil {
		t.Fatalf("Read(%q): %v", session, err)
	}
	return msgs
}

func TestStore_AppendAndRead(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 10)
			mustAppend(t, s, "s1", message.RoleUser, "hello")
			mustAppend(t, s, "s1", message.RoleAssistant, "hi")

			got := mustRead(t, s, "s1")
			if len(got) != 2 {
				t.Fatalf("Read returned %d messages, want 2", len(got))
			}
			if got[0].Role != message.RoleUser || got[0].Content != "hello" {
				t.Errorf("got[0] = (%s, %q), want (user, hello)", got[0].Role, got[0].Content)
			}
			if got[1].Role != message.RoleAssistant || got[1].Content != "hi" {
				t.Errorf("got[1] = (%s, %q), want (assistant, hi)", got[1].Role, got[1].Content)
			}
			if got[0].CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}
		})
	}
}

func TestStore_Retention(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 2)
			mustAppend(t, s, "s1", message.RoleUser, "one")
			mustAppend(t, s, "s1", message.RoleAssistant, "two")
			mustAppend(t, s, "s1", message.RoleUser, "three")

			got := mustRead(t, s, "s1")
			if len(got) != 2 {
				t.Fatalf("Read returned %d messages, want 2", len(got))
			}
			if got[0].Content != "two" || got[1].Content != "three" {
				t.Errorf("Read = [%q %q], want [two three]", got[0].Content, got[1].Content)
			}
		})
	}
}

func TestStore_RetentionKeepsNewestUnderLoad(t *testing.T) {
	const max = 4
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, max)
			for i := 0; i < 25; i++ {
				role := message.RoleUser
				if i%2 == 1 {
					role = message.RoleAssistant
				}
				mustAppend(t, s, "s1", role, fmt.Sprintf("m%02d", i))

				got := mustRead(t, s, "s1")
				if len(got) > max {
					t.Fatalf("after %d appends Read returned %d messages, cap is %d", i+1, len(got), max)
				}
				if last := got[len(got)-1].Content; last != fmt.Sprintf("m%02d", i) {
					t.Fatalf("after %d appends newest = %q", i+1, last)
				}
			}

			got := mustRead(t, s, "s1")
			for i, m := range got {
				want := fmt.Sprintf("m%02d", 21+i)
				if m.Content != want {
					t.Errorf("got[%d] = %q, want %q", i, m.Content, want)
				}
			}
		})
	}
}

func TestStore_SessionsAreIndependent(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 2)
			mustAppend(t, s, "a", message.RoleUser, "a1")
			mustAppend(t, s, "b", message.RoleUser, "b1")
			mustAppend(t, s, "b", message.RoleAssistant, "b2")
			mustAppend(t, s, "b", message.RoleUser, "b3")

			if got := mustRead(t, s, "a"); len(got) != 1 || got[0].Content != "a1" {
				t.Errorf("session a = %+v, want [a1]", got)
			}
			if got := mustRead(t, s, "b"); len(got) != 2 {
				t.Errorf("session b has %d messages, want 2", len(got))
			}
		})
	}
}

func TestStore_UnknownSessionIsEmpty(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 10)
			got, err := s.Read(context.Background(), "nobody")
			if err != nil {
				t.Fatalf("Read unknown session: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("Read unknown session = %#v, want empty non-nil slice", got)
			}
		})
	}
}

func TestStore_InvalidRole(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 10)
			for _, role := range []message.Role{message.RoleSystem, message.RoleTool, "wizard"} {
				err := s.Append(context.Background(), "s1", role, "x")
				if !errors.Is(err, ErrInvalidRole) {
					t.Errorf("Append role %q err = %v, want ErrInvalidRole", role, err)
				}
			}
			if got := mustRead(t, s, "s1"); len(got) != 0 {
				t.Errorf("rejected appends were stored: %+v", got)
			}
		})
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 10)
			mustAppend(t, s, "s1", message.RoleUser, "hello")
			mustAppend(t, s, "s2", message.RoleUser, "keep me")

			for i := 0; i < 2; i++ {
				if err := s.Clear(context.Background(), "s1"); err != nil {
					t.Fatalf("Clear #%d: %v", i+1, err)
				}
				if got := mustRead(t, s, "s1"); len(got) != 0 {
					t.Errorf("after Clear #%d session has %d messages", i+1, len(got))
				}
			}
			if got := mustRead(t, s, "s2"); len(got) != 1 {
				t.Errorf("Clear touched another session: %+v", got)
			}

			// A cleared session can be reused.
			mustAppend(t, s, "s1", message.RoleUser, "again")
			if got := mustRead(t, s, "s1"); len(got) != 1 || got[0].Content != "again" {
				t.Errorf("after reuse = %+v", got)
			}
		})
	}
}

func TestStore_Sessions(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 10)
			mustAppend(t, s, "old", message.RoleUser, "1")
			time.Sleep(2 * time.Millisecond)
			mustAppend(t, s, "new", message.RoleUser, "1")
			mustAppend(t, s, "new", message.RoleAssistant, "2")

			infos, err := s.Sessions(context.Background())
			if err != nil {
				t.Fatalf("Sessions: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("Sessions returned %d entries, want 2", len(infos))
			}
			if infos[0].ID != "new" || infos[0].MessageCount != 2 {
				t.Errorf("infos[0] = %+v, want new with 2 messages", infos[0])
			}
			if infos[1].ID != "old" || infos[1].MessageCount != 1 {
				t.Errorf("infos[1] = %+v, want old with 1 message", infos[1])
			}
		})
	}
}

func TestStore_ConcurrentSessions(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 5)
			var wg sync.WaitGroup
			for w := 0; w < 4; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					id := fmt.Sprintf("s%d", w)
					for i := 0; i < 10; i++ {
						if err := s.Append(context.Background(), id, message.RoleUser, fmt.Sprint(i)); err != nil {
							t.Errorf("Append: %v", err)
							return
						}
					}
				}(w)
			}
			wg.Wait()

			for w := 0; w < 4; w++ {
				got := mustRead(t, s, fmt.Sprintf("s%d", w))
				if len(got) != 5 || got[4].Content != "9" {
					t.Errorf("session s%d = %d messages, last %q", w, len(got), got[len(got)-1].Content)
				}
			}
		})
	}
}

func TestSQLiteStore_TiesBrokenByInsertion(t *testing.T) {
	s := newTestSQLiteStore(t, 2)
	frozen := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }

	mustAppend(t, s, "s1", message.RoleUser, "first")
	mustAppend(t, s, "s1", message.RoleAssistant, "second")
	mustAppend(t, s, "s1", message.RoleUser, "third")

	got := mustRead(t, s, "s1")
	if len(got) != 2 || got[0].Content != "second" || got[1].Content != "third" {
		t.Errorf("Read = %+v, want [second third]", got)
	}
	if !got[0].CreatedAt.Equal(frozen) {
		t.Errorf("CreatedAt = %v, want %v", got[0].CreatedAt, frozen)
	}
}

func TestSQLiteStore_ClosedDatabaseIsUnavailable(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStoreDB(db, 10)
	if err != nil {
		t.Fatalf("NewSQLiteStoreDB: %v", err)
	}
	db.Close()

	if err := s.Append(context.Background(), "s1", message.RoleUser, "hello"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Append on closed db err = %v, want ErrStorageUnavailable", err)
	}
	if _, err := s.Read(context.Background(), "s1"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Read on closed db err = %v, want ErrStorageUnavailable", err)
	}
}

func TestSQLiteStore_FileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eckert.db")

	s, err := NewSQLiteStore(path, 10, false)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	mustAppend(t, s, "resume", message.RoleUser, "remember me")
	s.Close()

	s, err = NewSQLiteStore(path, 10, true)
	if err != nil {
		t.Fatalf("reopen with pure-Go driver: %v", err)
	}
	defer s.Close()

	got := mustRead(t, s, "resume")
	if len(got) != 1 || got[0].Content != "remember me" {
		t.Errorf("after reopen = %+v", got)
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eckert.bolt")

	s, err := NewBoltStore(path, 3)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	for _, c := range []string{"a", "b", "c", "d"} {
		mustAppend(t, s, "s1", message.RoleUser, c)
	}
	s.Close()

	s, err = NewBoltStore(path, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got := mustRead(t, s, "s1")
	if len(got) != 3 || got[0].Content != "b" || got[2].Content != "d" {
		t.Errorf("after reopen = %+v, want [b c d]", got)
	}
}

func TestMemStore_ReadReturnsCopy(t *testing.T) {
	s := NewMemStore(10)
	mustAppend(t, s, "s1", message.RoleUser, "hello")

	got := mustRead(t, s, "s1")
	got[0].Content = "tampered"

	if again := mustRead(t, s, "s1"); again[0].Content != "hello" {
		t.Errorf("stored message changed through Read result: %q", again[0].Content)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, driver := range []string{"sqlite", "bolt", "memory", ""} {
		s, err := Open(Options{Driver: driver, Path: filepath.Join(dir, "db-"+driver), MaxMessages: 3, PureGo: true})
		if err != nil {
			t.Errorf("Open(%q): %v", driver, err)
			continue
		}
		s.Close()
	}

	if _, err := Open(Options{Driver: "postgres"}); err == nil {
		t.Error("Open with unknown driver should fail")
	}
}
