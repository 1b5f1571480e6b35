// Package fetchcache caches the bodies of fetched resources for a fixed
// time-to-live and counts every access to a resource, hit or miss.
package fetchcache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/kv"
	"github.com/shopmonkeyus/go-kvcache/logger"
)

const (
	// DefaultTTL is how long a fetched body is served from the store.
	DefaultTTL = 10 * time.Second

	DefaultCountPrefix = "count:"
	DefaultEntryPrefix = "cached:"
)

// Fetcher retrieves the body of a resource, typically over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (string, error)
}

// FetcherFunc adapts a function to a Fetcher.
type FetcherFunc func(ctx context.Context, resource string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, resource string) (string, error) {
	return f(ctx, resource)
}

type configOpts struct {
	ttl         time.Duration
	countPrefix string
	entryPrefix string
}

type ConfigOpt func(opts *configOpts)

// WithTTL sets how long a fetched body is cached.
func WithTTL(ttl time.Duration) ConfigOpt {
	return func(opts *configOpts) {
		opts.ttl = ttl
	}
}

// WithCountPrefix sets the key prefix of the access counters.
func WithCountPrefix(prefix string) ConfigOpt {
	return func(opts *configOpts) {
		opts.countPrefix = prefix
	}
}

// WithEntryPrefix sets the key prefix of the cached bodies.
func WithEntryPrefix(prefix string) ConfigOpt {
	return func(opts *configOpts) {
		opts.entryPrefix = prefix
	}
}

// Cache is a read-through cache in front of a Fetcher.
type Cache struct {
	logger      logger.Logger
	store       kv.Store
	fetcher     Fetcher
	ttl         time.Duration
	countPrefix string
	entryPrefix string
}

// New returns a Cache that serves bodies from store and falls back to fetcher.
func New(log logger.Logger, store kv.Store, fetcher Fetcher, opts ...ConfigOpt) (*Cache, error) {
	c := configOpts{ttl: DefaultTTL, countPrefix: DefaultCountPrefix, entryPrefix: DefaultEntryPrefix}
	for _, opt := range opts {
		opt(&c)
	}
	if c.ttl <= 0 {
		return nil, errors.Wrapf(kv.ErrInvalidTTL, "fetch cache ttl %v", c.ttl)
	}
	// Neither prefix may start the other, or a counter and an entry could share a key.
	if strings.HasPrefix(c.countPrefix, c.entryPrefix) || strings.HasPrefix(c.entryPrefix, c.countPrefix) {
		return nil, errors.Newf("count prefix %q and entry prefix %q overlap", c.countPrefix, c.entryPrefix)
	}
	return &Cache{
		logger:      log.WithPrefix("[fetchcache]"),
		store:       store,
		fetcher:     fetcher,
		ttl:         c.ttl,
		countPrefix: c.countPrefix,
		entryPrefix: c.entryPrefix,
	}, nil
}

// Fetch returns the body of resource, from the store when a live copy exists
// and from the fetcher otherwise. Every call increments the access counter of
// resource first. A hit does not extend the entry's lifetime. A failed fetch
// is returned as is and nothing is cached.
func (c *Cache) Fetch(ctx context.Context, resource string) (string, error) {
	count, err := c.store.Incr(ctx, c.countPrefix+resource)
	if err != nil {
		return "", errors.Wrapf(err, "error counting access to %s", resource)
	}
	found, body, err := c.store.Get(ctx, c.entryPrefix+resource)
	if err != nil {
		return "", errors.Wrapf(err, "error reading cached %s", resource)
	}
	if found {
		c.logger.Trace("hit %s (access %d)", resource, count)
		return string(body), nil
	}
	started := time.Now()
	fetched, err := c.fetcher.Fetch(ctx, resource)
	if err != nil {
		return "", err
	}
	text := strings.ToValidUTF8(fetched, "\uFFFD")
	if err := c.store.SetWithExpiry(ctx, c.entryPrefix+resource, []byte(text), c.ttl); err != nil {
		return "", errors.Wrapf(err, "error caching %s", resource)
	}
	c.logger.Debug("miss %s (access %d), fetched %d bytes in %v", resource, count, len(text), time.Since(started))
	return text, nil
}

// AccessCount returns how many times resource has been requested through Fetch.
func (c *Cache) AccessCount(ctx context.Context, resource string) (int64, error) {
	found, raw, err := c.store.Get(ctx, c.countPrefix+resource)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(kv.ErrNotInteger, "access count of %s", resource)
	}
	return n, nil
}
