package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from a redis:// or rediss:// URL. An empty
// URL connects to localhost:6379. Malformed URLs are an error.
func NewRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		return redis.NewClient(&redis.Options{Addr: "localhost:6379"}), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
