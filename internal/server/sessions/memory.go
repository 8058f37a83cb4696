package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/medcert/internal/common"
)

type memoryItem struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is the process-local fallback. Entries past their expiry are
// evicted lazily on the next Get.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem

	// now is swappable in tests
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (s *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	item := memoryItem{value: value}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return "", common.ErrorNotFound
	}
	if !item.expiresAt.IsZero() && s.now().After(item.expiresAt) {
		delete(s.items, key)
		return "", common.ErrorNotFound
	}
	return item.value, nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
