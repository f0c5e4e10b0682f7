// Package cache holds the non-authoritative code -> URL layer.
//
// Entries always carry a TTL and an entry is never written with a TTL that
// is already spent. Any failure degrades to a miss on read and an error on
// write; callers must be able to ignore both.
package cache

import (
	"errors"
	"time"
)

const keyPrefix = "url:"

// DefaultTTL is used when a cache is built without one.
const DefaultTTL = time.Hour

var (
	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrNonPositiveTTL   = errors.New("cache ttl must be positive")
)

// Key returns the cache key for a short code.
func Key(code string) string {
	return keyPrefix + code
}
