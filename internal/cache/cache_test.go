package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	tags []string
	err  error
}

func (r *recordingInvalidator) InvalidateTag(_ context.Context, tag string) error {
	r.tags = append(r.tags, tag)
	return r.err
}

func TestInvalidateCache_ForwardsTagOnce(t *testing.T) {
	for _, tag := range []string{"signups", "user:42", "a b/c"} {
		t.Run(tag, func(t *testing.T) {
			inv := &recordingInvalidator{}

			require.NoError(t, InvalidateCache(context.Background(), inv, tag))

			assert.Equal(t, []string{tag}, inv.tags)
		})
	}
}

func TestInvalidateCache_PropagatesError(t *testing.T) {
	boom := errors.New("backend down")
	inv := &recordingInvalidator{err: boom}

	err := InvalidateCache(context.Background(), inv, "signups")

	assert.Same(t, boom, err)
	assert.Len(t, inv.tags, 1)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestTagStore_SetGet(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "signup:1", []byte("pending"), 0, "signups"))

	val, ok, err := store.Get(ctx, "signup:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("pending"), val)

	_, ok, err = store.Get(ctx, "signup:2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTagStore_DefaultTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewTagStore(client, "", 30*time.Second)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, 30*time.Second, mr.TTL("cache:entry:k"))

	require.NoError(t, store.Set(ctx, "forever", []byte("v"), -1))
	assert.Equal(t, time.Duration(0), mr.TTL("cache:entry:forever"))

	mr.FastForward(31 * time.Second)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTagStore_InvalidateTag(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "signup:1", []byte("a"), 0, "signups"))
	require.NoError(t, store.Set(ctx, "signup:2", []byte("b"), 0, "signups", "dashboard"))
	require.NoError(t, store.Set(ctx, "profile:9", []byte("c"), 0, "profiles"))

	require.NoError(t, InvalidateCache(ctx, store, "signups"))

	for _, key := range []string{"signup:1", "signup:2"} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	val, ok, err := store.Get(ctx, "profile:9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("c"), val)

	assert.False(t, mr.Exists("test:tag:signups"))
	assert.True(t, mr.Exists("test:tag:profiles"))
}

func TestTagStore_InvalidateUnknownTag(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)

	assert.NoError(t, store.InvalidateTag(context.Background(), "never-used"))
}

func TestTagStore_InvalidateTagRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)
	mr.Close()

	assert.Error(t, store.InvalidateTag(context.Background(), "signups"))
}

func TestTagStore_Remember(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("loaded"), nil
	}

	val, err := store.Remember(ctx, "stats", 0, []string{"dashboard"}, load)
	require.NoError(t, err)
	assert.Equal(t, []byte("loaded"), val)

	val, err = store.Remember(ctx, "stats", 0, []string{"dashboard"}, load)
	require.NoError(t, err)
	assert.Equal(t, []byte("loaded"), val)
	assert.Equal(t, 1, calls)

	require.NoError(t, store.InvalidateTag(ctx, "dashboard"))

	_, err = store.Remember(ctx, "stats", 0, []string{"dashboard"}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTagStore_RememberLoadError(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)
	ctx := context.Background()
	boom := errors.New("upstream failed")

	_, err := store.Remember(ctx, "stats", 0, nil, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, err := store.Get(ctx, "stats")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTagStore_SetAfterInvalidateStaysTagged(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0, "t"))
	require.NoError(t, store.InvalidateTag(ctx, "t"))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0, "t"))

	require.NoError(t, store.InvalidateTag(ctx, "t"))

	_, ok, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok, "entry written after the first invalidation must still belong to the tag")
}

func TestTagStore_ConcurrentSetAndInvalidate(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewTagStore(client, "test", time.Minute)
	ctx := context.Background()

	const writes = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			assert.NoError(t, store.Set(ctx, fmt.Sprintf("entry:%d", i), []byte("v"), 0, "t"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			assert.NoError(t, store.InvalidateTag(ctx, "t"))
		}
	}()
	wg.Wait()

	require.NoError(t, store.InvalidateTag(ctx, "t"))

	for i := 0; i < writes; i++ {
		_, ok, err := store.Get(ctx, fmt.Sprintf("entry:%d", i))
		require.NoError(t, err)
		assert.False(t, ok, "entry:%d survived invalidation", i)
	}
}

func TestTagStore_TagSetExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewTagStore(client, "test", 30*time.Second)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("v"), 0, "t"))
	assert.Equal(t, 30*time.Second, mr.TTL("test:tag:t"))

	require.NoError(t, store.Set(ctx, "b", []byte("v"), time.Minute, "t"))
	assert.Equal(t, time.Minute, mr.TTL("test:tag:t"))

	// A shorter-lived member never shortens the tag set's lifetime.
	require.NoError(t, store.Set(ctx, "c", []byte("v"), 10*time.Second, "t"))
	assert.Equal(t, time.Minute, mr.TTL("test:tag:t"))

	require.NoError(t, store.Set(ctx, "d", []byte("v"), -1, "t"))
	assert.Equal(t, time.Duration(0), mr.TTL("test:tag:t"))

	mr.FastForward(2 * time.Minute)
	assert.True(t, mr.Exists("test:tag:t"))
}

func TestTagStore_TagSetExpiresWithMembers(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewTagStore(client, "test", 30*time.Second)

	require.NoError(t, store.Set(context.Background(), "a", []byte("v"), 0, "t"))
	mr.FastForward(31 * time.Second)

	assert.False(t, mr.Exists("test:tag:t"))
	assert.False(t, mr.Exists("test:entry:a"))
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient("redis://localhost:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	client.Close()

	client, err = NewRedisClient("")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", client.Options().Addr)
	client.Close()

	_, err = NewRedisClient("http://localhost:6379")
	assert.Error(t, err)
}
