package kv

import (
	"bytes"
	"context"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cockroachdb/errors"
	gstrings "github.com/shopmonkeyus/go-kvcache/string"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	memcacheMaxKeyLength = 250
	// memcache reads expirations beyond 30 days as absolute unix times.
	memcacheRelativeLimit = 60 * 60 * 24 * 30
	memcacheRetries       = 5
)

// memcacheStore keeps counters as memcache's native decimal values and lists
// as a sequence of msgpack bin frames grown with the append command.
type memcacheStore struct {
	client *memcache.Client
}

var _ Store = (*memcacheStore)(nil)

func (s *memcacheStore) key(key string) string {
	return gstrings.ShortenKey(key, memcacheMaxKeyLength)
}

func expiration(ttl time.Duration) int32 {
	secs := int64(math.Ceil(ttl.Seconds()))
	if secs < 1 {
		secs = 1
	}
	if secs > memcacheRelativeLimit {
		return int32(time.Now().Add(ttl).Unix())
	}
	return int32(secs)
}

func (s *memcacheStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	item, err := s.client.Get(s.key(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, errors.Wrapf(err, "memcache get %s", key)
	}
	return true, item.Value, nil
}

func (s *memcacheStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(&memcache.Item{Key: s.key(key), Value: value}); err != nil {
		return errors.Wrapf(err, "memcache set %s", key)
	}
	return nil
}

func (s *memcacheStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}
	if err := s.client.Set(&memcache.Item{Key: s.key(key), Value: value, Expiration: expiration(ttl)}); err != nil {
		return errors.Wrapf(err, "memcache set %s", key)
	}
	return nil
}

func (s *memcacheStore) Incr(ctx context.Context, key string) (int64, error) {
	k := s.key(key)
	for attempt := 0; attempt < memcacheRetries; attempt++ {
		n, err := s.client.Increment(k, 1)
		if err == nil {
			return int64(n), nil
		}
		if strings.Contains(err.Error(), "non-numeric") {
			return 0, errors.Wrapf(ErrNotInteger, "incr %s", key)
		}
		if !errors.Is(err, memcache.ErrCacheMiss) {
			return 0, errors.Wrapf(err, "memcache incr %s", key)
		}
		// first increment: create the counter, unless another writer beat us to it
		err = s.client.Add(&memcache.Item{Key: k, Value: []byte("1")})
		if err == nil {
			return 1, nil
		}
		if !errors.Is(err, memcache.ErrNotStored) {
			return 0, errors.Wrapf(err, "memcache add %s", key)
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	return 0, errors.Newf("memcache incr %s: too much contention", key)
}

func (s *memcacheStore) Append(ctx context.Context, key string, value []byte) error {
	frame, err := encodeFrame(value)
	if err != nil {
		return errors.Wrapf(err, "encoding list element for %s", key)
	}
	k := s.key(key)
	for attempt := 0; attempt < memcacheRetries; attempt++ {
		err := s.client.Append(&memcache.Item{Key: k, Value: frame})
		if err == nil {
			return nil
		}
		if !errors.Is(err, memcache.ErrNotStored) {
			return errors.Wrapf(err, "memcache append %s", key)
		}
		err = s.client.Add(&memcache.Item{Key: k, Value: frame})
		if err == nil {
			return nil
		}
		if !errors.Is(err, memcache.ErrNotStored) {
			return errors.Wrapf(err, "memcache add %s", key)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return errors.Newf("memcache append %s: too much contention", key)
}

func (s *memcacheStore) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	found, buf, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return [][]byte{}, nil
	}
	list, err := decodeFrames(buf)
	if err != nil {
		return nil, errors.Wrapf(ErrWrongType, "range %s: %v", key, err)
	}
	return sliceRange(list, start, stop), nil
}

func (s *memcacheStore) FlushAll(ctx context.Context) error {
	if err := s.client.FlushAll(); err != nil {
		return errors.Wrap(err, "memcache flush_all")
	}
	return nil
}

func (s *memcacheStore) Close() error {
	return nil
}

func encodeFrame(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeBytes(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFrames(buf []byte) ([][]byte, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(buf))
	list := make([][]byte, 0)
	for {
		v, err := dec.DecodeBytes()
		if errors.Is(err, io.EOF) {
			return list, nil
		}
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
}

// NewMemcache returns a Store backed by memcached. Keys longer than memcache
// allows are shortened with a hash suffix.
func NewMemcache(client *memcache.Client) Store {
	return &memcacheStore{client: client}
}

// memcacheHosts splits a comma separated host list, adding the default port where missing.
func memcacheHosts(hosts string) []string {
	var out []string
	for _, h := range strings.Split(hosts, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.Contains(h, ":") {
			h += ":" + strconv.Itoa(11211)
		}
		out = append(out, h)
	}
	return out
}
