package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/signup-portal/internal/pkg/logger"
)

// TagStore is a Redis cache whose entries can be invalidated in bulk by tag.
// Each tag is a Redis set holding the entry keys stored under it.
type TagStore struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
}

// NewTagStore creates a TagStore. An empty prefix defaults to "cache".
func NewTagStore(client redis.UniversalClient, prefix string, defaultTTL time.Duration) *TagStore {
	if prefix == "" {
		prefix = "cache"
	}
	return &TagStore{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
	}
}

func (s *TagStore) entryKey(key string) string {
	return fmt.Sprintf("%s:entry:%s", s.prefix, key)
}

func (s *TagStore) tagKey(tag string) string {
	return fmt.Sprintf("%s:tag:%s", s.prefix, tag)
}

// setScript stores the entry and registers it with each tag. A tag set
// lives at least as long as its longest-lived member; a permanent member
// makes the tag set permanent.
// KEYS[1] entry, KEYS[2..] tag sets; ARGV[1] value, ARGV[2] ttl in ms (0 = none).
var setScript = redis.NewScript(`
	local ttl = tonumber(ARGV[2])
	if ttl > 0 then
		redis.call("set", KEYS[1], ARGV[1], "px", ttl)
	else
		redis.call("set", KEYS[1], ARGV[1])
	end
	for i = 2, #KEYS do
		local existed = redis.call("exists", KEYS[i]) == 1
		local current = redis.call("pttl", KEYS[i])
		redis.call("sadd", KEYS[i], KEYS[1])
		if ttl == 0 then
			redis.call("persist", KEYS[i])
		elseif not existed or (current >= 0 and current < ttl) then
			redis.call("pexpire", KEYS[i], ttl)
		end
	end
	return 1
`)

// invalidateScript deletes every member of a tag set and the set itself in
// one step, so a concurrent Set is either fully removed or fully kept.
// KEYS[1] tag set. Returns the number of members removed.
var invalidateScript = redis.NewScript(`
	local members = redis.call("smembers", KEYS[1])
	for i = 1, #members, 500 do
		redis.call("del", unpack(members, i, math.min(i + 499, #members)))
	end
	redis.call("del", KEYS[1])
	return #members
`)

// Set stores value under key and registers key with every tag.
// A zero ttl uses the store default; a negative ttl keeps the entry forever.
func (s *TagStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	var ttlMillis int64
	if ttl > 0 {
		ttlMillis = ttl.Milliseconds()
		if ttlMillis == 0 {
			ttlMillis = 1
		}
	}

	keys := make([]string, 0, len(tags)+1)
	keys = append(keys, s.entryKey(key))
	for _, tag := range tags {
		keys = append(keys, s.tagKey(tag))
	}

	if err := setScript.Run(ctx, s.client, keys, value, ttlMillis).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Get returns the cached value for key. A miss is (nil, false, nil).
func (s *TagStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

// Remember returns the cached value for key, calling load and storing its
// result under tags on a miss. Load errors are returned and nothing is cached.
func (s *TagStore) Remember(ctx context.Context, key string, ttl time.Duration, tags []string, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if val, ok, err := s.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return val, nil
	}

	val, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Set(ctx, key, val, ttl, tags...); err != nil {
		logger.Warn("cache fill failed", "entry", key, "error", err)
	}
	return val, nil
}

// InvalidateTag deletes every entry registered under tag, then the tag set.
// Unknown tags are a no-op.
func (s *TagStore) InvalidateTag(ctx context.Context, tag string) error {
	removed, err := invalidateScript.Run(ctx, s.client, []string{s.tagKey(tag)}).Int()
	if err != nil {
		return fmt.Errorf("cache invalidate %s: %w", tag, err)
	}

	logger.Info("cache tag invalidated", "tag", tag, "entries", removed)
	return nil
}
