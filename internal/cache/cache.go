// Package cache invalidates tagged cache entries. InvalidateCache is the
// entry point application code uses; TagStore is the Redis-backed cache
// that owns the entries.
package cache

import "context"

// Invalidator drops every cached entry associated with a tag.
type Invalidator interface {
	InvalidateTag(ctx context.Context, tag string) error
}

// InvalidateCache forwards tag to inv and returns its result unchanged.
// The tag is not validated here.
func InvalidateCache(ctx context.Context, inv Invalidator, tag string) error {
	return inv.InvalidateTag(ctx, tag)
}
