package cache

import (
	"sync"
	"time"
)

// MemCache is a small in-memory TTL cache. chatsync uses it to memoize
// display-name lookups for the chat-list search.
type MemCache struct {
	mu    sync.RWMutex
	items map[string]item
	stop  chan struct{}
	wg    sync.WaitGroup
}

type item struct {
	value      any
	expiration int64 // unix nano; 0 means no expiration
}

// NewMemCache creates a cache. If cleanupInterval > 0 a background
// goroutine periodically evicts expired items.
func NewMemCache(cleanupInterval time.Duration) *MemCache {
	m := &MemCache{
		items: make(map[string]item),
		stop:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		m.wg.Add(1)
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			defer m.wg.Done()
			for {
				select {
				case <-ticker.C:
					m.cleanup()
				case <-m.stop:
					return
				}
			}
		}()
	}
	return m
}

func (m *MemCache) Set(key string, value any, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	m.mu.Lock()
	m.items[key] = item{value: value, expiration: exp}
	m.mu.Unlock()
}

func (m *MemCache) Get(key string) (any, bool) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if it.expired(time.Now().UnixNano()) {
		m.Delete(key)
		return nil, false
	}
	return it.value, true
}

func (m *MemCache) Delete(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

func (m *MemCache) Close() {
	close(m.stop)
	m.wg.Wait()
}

func (it item) expired(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

func (m *MemCache) cleanup() {
	now := time.Now().UnixNano()
	m.mu.Lock()
	for k, it := range m.items {
		if it.expired(now) {
			delete(m.items, k)
		}
	}
	m.mu.Unlock()
}
