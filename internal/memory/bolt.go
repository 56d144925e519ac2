package memory

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/eckert-ai/eckert/internal/message"
)

const bucketSessions = "sessions"

// BoltStore keeps transcripts in a bbolt file. Each session is a nested
// bucket whose keys are the bucket's own big-endian sequence numbers, so
// cursor order is insertion order.
type BoltStore struct {
	db          *bolt.DB
	maxMessages int
	now         func() time.Time
}

type boltRecord struct {
	Role      message.Role `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewBoltStore opens (or creates) a bbolt database at path.
func NewBoltStore(path string, maxMessages int) (*BoltStore, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, unavailable("open bolt db", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, unavailable("create buckets", err)
	}

	return &BoltStore{db: db, maxMessages: maxMessages, now: time.Now}, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Append writes a record and trims the session bucket in one update
// transaction.
func (s *BoltStore) Append(ctx context.Context, sessionID string, role message.Role, content string) error {
	if err := checkRole(role); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("append", err)
	}

	data, err := json.Marshal(boltRecord{Role: role, Content: content, CreatedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(bucketSessions)).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}

		c := b.Cursor()
		for excess := countKeys(b) - s.maxMessages; excess > 0; excess-- {
			if k, _ := c.First(); k == nil {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("append", err)
	}
	return nil
}

// Read returns up to maxMessages records, oldest first.
func (s *BoltStore) Read(ctx context.Context, sessionID string) ([]message.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("read", err)
	}

	messages := []message.Message{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions)).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(messages) < s.maxMessages; k, v = c.Prev() {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode message %d: %w", binary.BigEndian.Uint64(k), err)
			}
			messages = append(messages, message.Message{
				Role:      rec.Role,
				Content:   rec.Content,
				CreatedAt: rec.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("read", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Clear drops the session bucket.
func (s *BoltStore) Clear(ctx context.Context, sessionID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bucketSessions))
		if root.Bucket([]byte(sessionID)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(sessionID))
	})
	if err != nil {
		return unavailable("clear session", err)
	}
	return nil
}

// Sessions lists sessions by last activity.
func (s *BoltStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	infos := []SessionInfo{}
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bucketSessions))
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil // not a nested bucket
			}
			b := root.Bucket(k)
			info := SessionInfo{ID: string(k), MessageCount: countKeys(b)}
			if info.MessageCount == 0 {
				return nil
			}
			if _, last := b.Cursor().Last(); last != nil {
				var rec boltRecord
				if err := json.Unmarshal(last, &rec); err == nil {
					info.LastActive = rec.CreatedAt
				}
			}
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	sortSessions(infos)
	return infos, nil
}

// countKeys walks the bucket with a cursor. Bucket.Stats reads committed
// pages only and misses keys added in the current write transaction.
func countKeys(b *bolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
