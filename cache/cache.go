package cache

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopmonkeyus/go-kvcache/kv"
	"github.com/shopmonkeyus/go-kvcache/logger"
)

// StoreOperation is the identity under which Store calls are counted and recorded.
const StoreOperation = "Cache.store"

// Cache stores values under generated keys and instruments every Store call
// with a call counter and an input/output history. It keeps no state of its
// own besides the store handle.
type Cache struct {
	logger       logger.Logger
	store        kv.Store
	newKey       func() string
	interceptors []Interceptor
}

type configOpts struct {
	flush        bool
	newKey       func() string
	interceptors []Interceptor
}

type ConfigOpt func(opts *configOpts)

// WithoutFlush keeps whatever the store already holds instead of emptying it on construction.
func WithoutFlush() ConfigOpt {
	return func(opts *configOpts) {
		opts.flush = false
	}
}

// WithKeyGenerator replaces the random key generator.
func WithKeyGenerator(fn func() string) ConfigOpt {
	return func(opts *configOpts) {
		opts.newKey = fn
	}
}

// WithInterceptor adds an interceptor inside the counting and history interceptors.
func WithInterceptor(interceptor Interceptor) ConfigOpt {
	return func(opts *configOpts) {
		opts.interceptors = append(opts.interceptors, interceptor)
	}
}

// New returns a Cache on top of store. The store is flushed first unless
// WithoutFlush is given, so a new Cache starts from an empty namespace.
func New(ctx context.Context, log logger.Logger, store kv.Store, opts ...ConfigOpt) (*Cache, error) {
	c := configOpts{flush: true, newKey: uuid.NewString}
	for _, opt := range opts {
		opt(&c)
	}
	log = log.WithPrefix("[cache]")
	if c.flush {
		if err := store.FlushAll(ctx); err != nil {
			return nil, errors.Wrap(err, "error flushing store")
		}
		log.Debug("store flushed")
	}
	interceptors := []Interceptor{LogCalls(log), CountCalls(store), RecordHistory(store)}
	return &Cache{
		logger:       log,
		store:        store,
		newKey:       c.newKey,
		interceptors: append(interceptors, c.interceptors...),
	}, nil
}

// Store saves v under a freshly generated key and returns the key.
//
// The call counter, the input history, the value and the output history are
// written as separate store operations. Each is attempted even if an earlier
// one failed, and nothing is rolled back; any failures are combined into the
// returned error, which is returned together with the key.
func (c *Cache) Store(ctx context.Context, v Value) (string, error) {
	key := c.newKey()
	op := Chain(func(ctx context.Context, inv Invocation) (string, error) {
		if err := c.store.Set(ctx, key, v.Bytes()); err != nil {
			return key, errors.Wrapf(err, "error storing %s value", v.Kind())
		}
		return key, nil
	}, c.interceptors...)
	return op(ctx, Invocation{Operation: StoreOperation, Args: []string{v.String()}})
}

// Retrieve returns the raw bytes stored at key. A missing key returns false and no error.
func (c *Cache) Retrieve(ctx context.Context, key string) (bool, []byte, error) {
	return c.store.Get(ctx, key)
}

// RetrieveWith reads key and converts it with fn. A missing key returns false
// without calling fn. A conversion failure is returned as a *ConversionError.
func RetrieveWith[T any](ctx context.Context, c *Cache, key string, fn Converter[T]) (bool, T, error) {
	var zero T
	found, raw, err := c.Retrieve(ctx, key)
	if err != nil || !found {
		return false, zero, err
	}
	val, err := fn(raw)
	if err != nil {
		return true, zero, &ConversionError{Key: key, Err: err}
	}
	return true, val, nil
}

// RetrieveString reads key as UTF-8 text.
func (c *Cache) RetrieveString(ctx context.Context, key string) (bool, string, error) {
	return RetrieveWith(ctx, c, key, AsString)
}

// RetrieveInt reads key as a base-10 integer.
func (c *Cache) RetrieveInt(ctx context.Context, key string) (bool, int64, error) {
	return RetrieveWith(ctx, c, key, AsInt)
}

// RetrieveFloat reads key as a floating point number.
func (c *Cache) RetrieveFloat(ctx context.Context, key string) (bool, float64, error) {
	return RetrieveWith(ctx, c, key, AsFloat)
}

// CallCount returns how many times operation has been invoked. An operation
// that was never called has a count of zero.
func (c *Cache) CallCount(ctx context.Context, operation string) (int64, error) {
	found, raw, err := c.store.Get(ctx, operation)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, &ConversionError{Key: operation, Err: err}
	}
	return n, nil
}

// Replay reads the recorded history of operation.
func (c *Cache) Replay(ctx context.Context, operation string) (*Replay, error) {
	r, err := ReplayOf(ctx, c.store, operation)
	if err != nil {
		return nil, err
	}
	if r.Degraded() {
		c.logger.Warn("history of %s is inconsistent: %d inputs, %d outputs", operation, len(r.inputs), len(r.outputs))
	}
	return r, nil
}
