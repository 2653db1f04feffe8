package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no object exists at a key.
	ErrNotFound = errors.New("object not found")
)

// Object is a stored blob with its metadata.
type Object struct {
	Body        []byte
	ContentType string
	UpdatedAt   time.Time
}

// MemoryStore is a concurrency-safe in-memory object store. Used for dry runs and tests.
type MemoryStore struct {
	mu sync.RWMutex

	// key: object key, value: latest object
	data map[string]Object
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Object),
	}
}

// Put replaces the object at key.
func (s *MemoryStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = Object{
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
		UpdatedAt:   time.Now().UTC(),
	}
	return nil
}

// Get returns the object stored at key.
func (s *MemoryStore) Get(key string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.data[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Keys returns all stored keys in lexical order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
