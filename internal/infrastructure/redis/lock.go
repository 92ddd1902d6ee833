package redis

import (
	"context"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries the caller's owner token.
var releaseScript = rdb.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func NewClient(addr string, db int) *rdb.Client {
	return rdb.NewClient(&rdb.Options{Addr: addr, DB: db})
}

// LockBackend keeps lock leases as plain keys with a TTL.
type LockBackend struct{ c rdb.Cmdable }

func NewLockBackend(c rdb.Cmdable) *LockBackend {
	return &LockBackend{c: c}
}

func (b *LockBackend) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return b.c.SetNX(ctx, "lock:"+key, owner, ttl).Result()
}

func (b *LockBackend) Release(ctx context.Context, key, owner string) error {
	err := releaseScript.Run(ctx, b.c, []string{"lock:" + key}, owner).Err()
	if errors.Is(err, rdb.Nil) {
		return nil
	}
	return err
}
