package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// noExpiry is what TTL reports for a key that exists without an expiry.
const noExpiry = time.Duration(-1)

// saveScript writes one field and assigns the hash expiry only when the
// hash has none yet, so the first write fixes the window for all later
// fields. Returns 1 when the expiry was set by this call.
var saveScript = redis.NewScript(`
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if redis.call('TTL', KEYS[1]) == -1 then
    redis.call('EXPIRE', KEYS[1], ARGV[3])
    return 1
end
return 0
`)

// HashStore implements Store on a writable Redis instance. It is the only
// component that sets expiry on cache:* keys.
type HashStore struct {
	client redis.UniversalClient
	policy *Policy
}

// RedisConfig holds connection settings for the cache Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewHashStore connects to the cache Redis.
func NewHashStore(cfg RedisConfig, policy *Policy) *HashStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewHashStoreFromClient(client, policy)
}

// NewHashStoreFromClient creates a store using an existing client.
// A nil policy uses DefaultPolicy.
func NewHashStoreFromClient(client redis.UniversalClient, policy *Policy) *HashStore {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &HashStore{client: client, policy: policy}
}

// Policy returns the TTL policy the store applies on first write.
func (h *HashStore) Policy() *Policy {
	return h.policy
}

// Client returns the underlying Redis client.
func (h *HashStore) Client() redis.UniversalClient {
	return h.client
}

func (h *HashStore) Load(ctx context.Context, s Service, endpoint string) ([]byte, error) {
	val, err := h.client.HGet(ctx, HashKey(s), endpoint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &OpError{Op: "get", Service: s, Endpoint: endpoint, Err: err}
	}
	return val, nil
}

func (h *HashStore) Save(ctx context.Context, s Service, endpoint string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = h.policy.TTL(s)
	}
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	err := saveScript.Run(ctx, h.client, []string{HashKey(s)}, endpoint, value, secs).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return &OpError{Op: "set", Service: s, Endpoint: endpoint, Err: err}
	}
	return nil
}

func (h *HashStore) Remove(ctx context.Context, s Service, endpoint string) error {
	if err := h.client.HDel(ctx, HashKey(s), endpoint).Err(); err != nil {
		return &OpError{Op: "delete", Service: s, Endpoint: endpoint, Err: err}
	}
	return nil
}

func (h *HashStore) Purge(ctx context.Context, s Service) error {
	if err := h.client.Del(ctx, HashKey(s)).Err(); err != nil {
		return &OpError{Op: "clear", Service: s, Err: err}
	}
	return nil
}

// TTL reports the remaining lifetime of a service hash. ok is false when
// the hash does not exist; a hash without expiry reports a negative
// duration.
func (h *HashStore) TTL(ctx context.Context, s Service) (ttl time.Duration, ok bool, err error) {
	d, err := h.client.TTL(ctx, HashKey(s)).Result()
	if err != nil {
		return 0, false, &OpError{Op: "ttl", Service: s, Err: err}
	}
	if d == -2 || d == -2*time.Second {
		return 0, false, nil
	}
	if d == noExpiry || d == -time.Second {
		return noExpiry, true, nil
	}
	return d, true, nil
}

// Fields lists the cached endpoints of a service.
func (h *HashStore) Fields(ctx context.Context, s Service) ([]string, error) {
	keys, err := h.client.HKeys(ctx, HashKey(s)).Result()
	if err != nil {
		return nil, &OpError{Op: "keys", Service: s, Err: err}
	}
	return keys, nil
}

// Ping verifies connectivity to the cache Redis.
func (h *HashStore) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

func (h *HashStore) Close() error {
	return h.client.Close()
}
