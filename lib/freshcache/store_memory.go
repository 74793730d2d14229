package freshcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore holds entries in an expiring lru. nothing survives a
// restart, meant for cheap feeds where a cold start simply re-scrapes.
// maxLifetime is an upper bound on residency, independent of the
// per-key ttl policy the cache applies on top.
type MemoryStore struct {
	lru *expirable.LRU[string, Entry]
}

func NewMemoryStore(size int, maxLifetime time.Duration) MemoryStore {
	return MemoryStore{
		lru: expirable.NewLRU[string, Entry](size, nil, maxLifetime),
	}
}

func (s MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok := s.lru.Get(key)
	return entry, ok, nil
}

func (s MemoryStore) Upsert(ctx context.Context, entry Entry) error {
	s.lru.Add(entry.Key, entry)
	return nil
}
