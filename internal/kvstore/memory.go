package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a non-durable Store used in tests and as a degraded
// fallback when no storage path is configured.
type MemoryStore struct {
	values sync.Map
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, ok := s.values.Load(key)
	if !ok {
		return "", false, nil
	}
	return val.(string), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.values.Store(key, value)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.values.Delete(key)
	return nil
}

func (s *MemoryStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	s.values.Range(func(k, _ any) bool {
		key := k.(string)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
