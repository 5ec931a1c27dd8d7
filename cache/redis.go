package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a [Store] backed by a shared Redis deployment.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps client. prefix, when non-empty, namespaces every key as
// "prefix:key".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// NewRedisFromURL parses a redis:// URL and returns a connected store.
func NewRedisFromURL(rawURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), prefix), nil
}

// Client exposes the underlying client for callers that need to close it.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (r *Redis) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

var incrWithTTL = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := incrWithTTL.Run(ctx, r.client, []string{r.key(key)}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected INCR reply %T", ErrUnavailable, res)
	}
	return count, nil
}

func (r *Redis) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	// -1 (no expiry) and -2 (missing) both collapse to zero.
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

var addWithTTL = redis.NewScript(`
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SADD", KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  local current = redis.call("PTTL", KEYS[1])
  if existed == 0 or (current >= 0 and current < ttl) then
    redis.call("PEXPIRE", KEYS[1], ttl)
  end
end
return 1
`)

func (r *Redis) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := addWithTTL.Run(ctx, r.client, []string{r.key(key)}, member, ttl.Milliseconds()).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) RemoveFromSet(ctx context.Context, key, member string) error {
	if err := r.client.SRem(ctx, r.key(key), member).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Members(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, unavailable(err)
	}
	return members, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Shared() bool { return true }
