// Package denylist stores revoked token ids until the token would have expired anyway.
package denylist

import (
	"context"
	"time"
)

// KeyPrefix namespaces denylist entries in a shared key-value store.
const KeyPrefix = "blacklist:"

// revokedValue is stored under every key; only presence matters.
const revokedValue = "revoked"

// Store is the key-value backend of the denylist. Implementations must be safe for concurrent use.
type Store interface {
	// SetWithTTL upserts key with value; the entry disappears after ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// Exists reports whether key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Key returns the store key for jti.
func Key(jti string) string {
	return KeyPrefix + jti
}
