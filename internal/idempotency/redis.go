package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "idempotency:v1:"

const claimedSentinel = "CLAIMED"

// claimScript claims the key atomically when absent, otherwise returns
// the stored record for classification. All concurrent callers race on
// this single script.
var claimScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if not existing then
    redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
    return "` + claimedSentinel + `"
end
return existing`)

// failScript releases the claim only while it is still our in-flight
// record, so a completed result is never deleted by a late failure.
var failScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if existing == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

type redisRecord struct {
	RequestHash string          `json:"request_hash"`
	Completed   bool            `json:"completed"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// RedisStore keeps idempotency records in Redis with a TTL bounding how
// long a key stays replay-safe.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed idempotency store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(key string) string {
	return redisKeyPrefix + key
}

func (s *RedisStore) inFlight(requestHash string) (string, error) {
	payload, err := json.Marshal(redisRecord{RequestHash: requestHash})
	return string(payload), err
}

// ClaimOrLoad runs the atomic claim script and classifies the outcome.
func (s *RedisStore) ClaimOrLoad(ctx context.Context, key, requestHash string) (Claim, error) {
	marker, err := s.inFlight(requestHash)
	if err != nil {
		return Claim{}, err
	}

	raw, err := claimScript.Run(ctx, s.client, []string{s.key(key)}, marker, s.ttl.Milliseconds()).Text()
	if err != nil {
		return Claim{}, err
	}
	if raw == claimedSentinel {
		return Claim{State: StateClaimed}, nil
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Claim{}, err
	}
	if rec.RequestHash != requestHash {
		return Claim{State: StateConflict}, nil
	}
	if rec.Completed {
		return Claim{State: StateCompleted, Result: rec.Result}, nil
	}
	return Claim{State: StateInProgress}, nil
}

// Complete persists the result under (key, hash) with the store TTL.
func (s *RedisStore) Complete(ctx context.Context, key, requestHash string, result []byte) error {
	payload, err := json.Marshal(redisRecord{RequestHash: requestHash, Completed: true, Result: result})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), payload, s.ttl).Err()
}

// Fail releases the in-flight claim best-effort.
func (s *RedisStore) Fail(ctx context.Context, key, requestHash string) error {
	marker, err := s.inFlight(requestHash)
	if err != nil {
		return err
	}
	return failScript.Run(ctx, s.client, []string{s.key(key)}, marker).Err()
}
