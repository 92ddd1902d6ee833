package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// LockBackend keeps lock leases in a go-cache instance. Add only succeeds
// when the key is absent or its lease has expired. mu serialises takeovers
// with the owner check in Release.
type LockBackend struct {
	mu     sync.Mutex
	leases *cache.Cache
}

func NewLockBackend() *LockBackend {
	return &LockBackend{leases: cache.New(cache.NoExpiration, time.Minute)}
}

func (b *LockBackend) TryAcquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.leases.Add(key, owner, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *LockBackend) Release(_ context.Context, key, owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if held, ok := b.leases.Get(key); ok && held.(string) == owner {
		b.leases.Delete(key)
	}
	return nil
}
