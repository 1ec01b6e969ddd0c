// Package store provides the key-value persistence used for conversations.
package store

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	apperrors "github.com/tale555/dify-chat-webapp/internal/errors"
)

// Namespace is the bucket every key lives in.
const Namespace = "dify-chat"

// Record keys
const (
	KeyConversations = "conversations"
	KeyCurrent       = "current-conversation"
)

// DefaultLockTimeout bounds how long an operation waits for another process
// holding the file lock.
const DefaultLockTimeout = 2 * time.Second

// KV is a flat key-value store within a single namespace.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// BoltStore is a KV backed by a bbolt file. The database is opened per
// operation so several processes can share the file.
type BoltStore struct {
	path        string
	lockTimeout time.Duration

	lastWrite atomic.Int64 // unix nanos of the last write made through this store
}

// NewBoltStore creates a store for the file at path. The file is created on
// first write.
func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path, lockTimeout: DefaultLockTimeout}
}

// WithLockTimeout sets the file lock timeout
func (s *BoltStore) WithLockTimeout(d time.Duration) *BoltStore {
	s.lockTimeout = d
	return s
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.path
}

// LastWrite returns the time of the last write made through this store
func (s *BoltStore) LastWrite() time.Time {
	n := s.lastWrite.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (s *BoltStore) open(op string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, apperrors.NewStoreUnavailableError(op, err)
	}
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.lockTimeout})
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(op, err)
	}
	return db, nil
}

// Get implements KV
func (s *BoltStore) Get(key string) ([]byte, bool, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, false, nil
	}

	db, err := s.open("read")
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = db.Close() }()

	var out []byte
	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(Namespace))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		// v is only valid inside the transaction
		out = append([]byte(nil), v...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, apperrors.NewStoreUnavailableError("read", err)
	}
	return out, found, nil
}

// Put implements KV
func (s *BoltStore) Put(key string, value []byte) error {
	return s.update("write", func(b *bolt.Bucket) error {
		return b.Put([]byte(key), value)
	})
}

// Delete implements KV
func (s *BoltStore) Delete(key string) error {
	return s.update("delete", func(b *bolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

func (s *BoltStore) update(op string, fn func(b *bolt.Bucket) error) error {
	db, err := s.open(op)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(Namespace))
		if err != nil {
			return err
		}
		return fn(b)
	})
	s.lastWrite.Store(time.Now().UnixNano())
	if err != nil {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	return nil
}

// MemoryStore is an in-memory KV
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	fail error
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get implements KV
func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, false, apperrors.NewStoreUnavailableError("read", m.fail)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put implements KV
func (m *MemoryStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return apperrors.NewStoreUnavailableError("write", m.fail)
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements KV
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return apperrors.NewStoreUnavailableError("delete", m.fail)
	}
	delete(m.data, key)
	return nil
}

// SetFail makes every later operation fail with err; nil clears it
func (m *MemoryStore) SetFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}
