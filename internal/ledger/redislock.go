package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kori-finance/kori/internal/fault"
)

const lockKeyPrefix = "lock:account:v1:"

// releaseScript deletes the lock only if the caller still owns it, so an
// expired lock reacquired by someone else is never released by the
// original holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock implements LockPort with a per-account SETNX lease. The TTL
// bounds how long a crashed holder can block an account; live holders
// release explicitly.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLock builds a Redis-backed account lock.
func NewRedisLock(client *redis.Client, ttl, retry time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	return &RedisLock{client: client, ttl: ttl, retry: retry}
}

// Lock spins on SETNX until the account lease is acquired or ctx ends.
func (l *RedisLock) Lock(ctx context.Context, ref AccountRef) (Unlock, error) {
	key := lockKeyPrefix + ref.String()
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fault.Internal("account_lock_unavailable", map[string]string{"account": ref.String()})
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fault.Conflicting("account_lock_timeout", map[string]string{"account": ref.String()})
		case <-time.After(l.retry):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.client, []string{key}, token) // best effort
	}
	return release, nil
}
