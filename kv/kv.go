// Package kv defines the key-value store contract the caches are built on and
// the backends that implement it.
//
// Every backend speaks the same small vocabulary: scalar get/set (with an
// optional expiry), atomic integer increment, list append and list range.
// A missing key is never an error: Get reports found == false and Range
// returns an empty list.
package kv

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotInteger is returned by Incr when the key holds a value that is not a base-10 integer.
	ErrNotInteger = errors.New("value is not an integer")
	// ErrWrongType is returned when a list operation hits a scalar or the reverse.
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	// ErrInvalidTTL is returned by SetWithExpiry when the ttl is not positive.
	ErrInvalidTTL = errors.New("ttl must be positive")
	// ErrUnsupportedScheme is returned by Open for an unknown store url scheme.
	ErrUnsupportedScheme = errors.New("unsupported store scheme")
)

// Store is a volatile key-value store shared by every cache in this module.
// Implementations must be safe for concurrent use; Incr and Append must be atomic.
type Store interface {
	// Get returns the raw value at key and true, or false when the key is absent or expired.
	Get(ctx context.Context, key string) (bool, []byte, error)

	// Set stores value at key without expiry, replacing anything already there.
	Set(ctx context.Context, key string, value []byte) error

	// SetWithExpiry stores value at key; the key is treated as absent once ttl has elapsed.
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Incr increments the integer at key by one and returns the new value. A missing key counts from zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Append pushes value onto the end of the list at key, creating the list if needed.
	Append(ctx context.Context, key string, value []byte) error

	// Range returns the list elements between start and stop inclusive.
	// Negative indexes count from the end, so Range(ctx, key, 0, -1) returns the whole list.
	Range(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// FlushAll removes every key in the store's namespace.
	FlushAll(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// sliceRange applies list range semantics (inclusive bounds, negative indexes from the end) to list.
func sliceRange(list [][]byte, start, stop int64) [][]byte {
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return [][]byte{}
	}
	out := make([][]byte, 0, stop-start+1)
	for _, v := range list[start : stop+1] {
		out = append(out, clone(v))
	}
	return out
}

func clone(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func checkTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return errors.Wrapf(ErrInvalidTTL, "got %s", ttl)
	}
	return nil
}
