package kv

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type value struct {
	data    []byte
	list    [][]byte
	isList  bool
	expires time.Time
}

func (v *value) expired(now time.Time) bool {
	return !v.expires.IsZero() && !v.expires.After(now)
}

type memoryStore struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cache       map[string]*value
	mutex       sync.Mutex
	waitGroup   sync.WaitGroup
	once        sync.Once
	expiryCheck time.Duration
}

var _ Store = (*memoryStore)(nil)

// lookup returns the live value at key, dropping it if it has expired. Callers must hold the mutex.
func (c *memoryStore) lookup(key string) *value {
	val, ok := c.cache[key]
	if !ok {
		return nil
	}
	if val.expired(time.Now()) {
		delete(c.cache, key)
		return nil
	}
	return val
}

func (c *memoryStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val := c.lookup(key)
	if val == nil {
		return false, nil, nil
	}
	if val.isList {
		return false, nil, errors.Wrapf(ErrWrongType, "get %s", key)
	}
	return true, clone(val.data), nil
}

func (c *memoryStore) Set(ctx context.Context, key string, data []byte) error {
	c.mutex.Lock()
	c.cache[key] = &value{data: clone(data)}
	c.mutex.Unlock()
	return nil
}

func (c *memoryStore) SetWithExpiry(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}
	c.mutex.Lock()
	c.cache[key] = &value{data: clone(data), expires: time.Now().Add(ttl)}
	c.mutex.Unlock()
	return nil
}

func (c *memoryStore) Incr(ctx context.Context, key string) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val := c.lookup(key)
	if val == nil {
		c.cache[key] = &value{data: []byte("1")}
		return 1, nil
	}
	if val.isList {
		return 0, errors.Wrapf(ErrWrongType, "incr %s", key)
	}
	n, err := strconv.ParseInt(string(val.data), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrNotInteger, "incr %s", key)
	}
	n++
	val.data = strconv.AppendInt(val.data[:0], n, 10)
	return n, nil
}

func (c *memoryStore) Append(ctx context.Context, key string, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val := c.lookup(key)
	if val == nil {
		c.cache[key] = &value{list: [][]byte{clone(data)}, isList: true}
		return nil
	}
	if !val.isList {
		return errors.Wrapf(ErrWrongType, "append %s", key)
	}
	val.list = append(val.list, clone(data))
	return nil
}

func (c *memoryStore) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val := c.lookup(key)
	if val == nil {
		return [][]byte{}, nil
	}
	if !val.isList {
		return nil, errors.Wrapf(ErrWrongType, "range %s", key)
	}
	return sliceRange(val.list, start, stop), nil
}

func (c *memoryStore) FlushAll(ctx context.Context) error {
	c.mutex.Lock()
	c.cache = make(map[string]*value)
	c.mutex.Unlock()
	return nil
}

func (c *memoryStore) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *memoryStore) run() {
	timer := time.NewTicker(c.expiryCheck)
	defer func() {
		timer.Stop()
		c.waitGroup.Done()
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-timer.C:
			now := time.Now()
			c.mutex.Lock()
			for key, val := range c.cache {
				if val.expired(now) {
					delete(c.cache, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}

// NewMemory returns an in-process Store. Expired keys are hidden from reads
// immediately and swept from memory every expiryCheck until parent is done or
// the store is closed.
func NewMemory(parent context.Context, expiryCheck time.Duration) Store {
	if expiryCheck <= 0 {
		expiryCheck = time.Second
	}
	ctx, cancel := context.WithCancel(parent)
	c := &memoryStore{
		ctx:         ctx,
		cancel:      cancel,
		cache:       make(map[string]*value),
		expiryCheck: expiryCheck,
	}
	c.waitGroup.Add(1)
	go c.run()
	return c
}
