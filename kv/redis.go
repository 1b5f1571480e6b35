package kv

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client redis.UniversalClient
}

var _ Store = (*redisStore)(nil)

// translate maps redis reply errors onto the package sentinels.
func (s *redisStore) translate(err error, op string, key string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "WRONGTYPE"):
		return errors.Wrapf(ErrWrongType, "%s %s", op, key)
	case strings.Contains(msg, "not an integer"):
		return errors.Wrapf(ErrNotInteger, "%s %s", op, key)
	}
	return errors.Wrapf(err, "redis %s %s", op, key)
}

func (s *redisStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, s.translate(err, "get", key)
	}
	return true, val, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.translate(s.client.Set(ctx, key, value, 0).Err(), "set", key)
}

func (s *redisStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}
	return s.translate(s.client.Set(ctx, key, value, ttl).Err(), "setex", key)
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, s.translate(err, "incr", key)
	}
	return n, nil
}

func (s *redisStore) Append(ctx context.Context, key string, value []byte) error {
	return s.translate(s.client.RPush(ctx, key, value).Err(), "rpush", key)
}

func (s *redisStore) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, s.translate(err, "lrange", key)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// FlushAll empties the selected database, which is the namespace of a redis store.
func (s *redisStore) FlushAll(ctx context.Context) error {
	return s.translate(s.client.FlushDB(ctx).Err(), "flushdb", "")
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// NewRedis returns a Store backed by a redis client. Closing the store closes the client.
func NewRedis(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}
