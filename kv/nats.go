package kv

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	gnats "github.com/nats-io/nats.go"
	"github.com/shopmonkeyus/go-kvcache/logger"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultBucket is the JetStream key-value bucket used when the store url names none.
const DefaultBucket = "kvcache"

const natsCASAttempts = 25

// envelope is the msgpack record stored for every key in the bucket. Expiry is
// kept per key because bucket level max age applies to every key alike.
type envelope struct {
	Value     []byte   `msgpack:"v,omitempty"`
	List      [][]byte `msgpack:"l,omitempty"`
	IsList    bool     `msgpack:"t,omitempty"`
	ExpiresAt int64    `msgpack:"e,omitempty"`
}

func (e *envelope) expired(now time.Time) bool {
	return e.ExpiresAt != 0 && e.ExpiresAt <= now.UnixNano()
}

type natsStore struct {
	kv   gnats.KeyValue
	conn *gnats.Conn
}

var _ Store = (*natsStore)(nil)

// natsKey encodes key into the character set NATS allows in key names.
func natsKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// load returns the live envelope at key and the revision to compare against
// when writing it back. An absent or expired key returns a nil envelope.
func (s *natsStore) load(key string) (*envelope, uint64, error) {
	entry, err := s.kv.Get(natsKey(key))
	if errors.Is(err, gnats.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "nats get %s", key)
	}
	var env envelope
	if err := msgpack.Unmarshal(entry.Value(), &env); err != nil {
		return nil, 0, errors.Wrapf(err, "decoding value for %s", key)
	}
	if env.expired(time.Now()) {
		return nil, entry.Revision(), nil
	}
	return &env, entry.Revision(), nil
}

func (s *natsStore) put(key string, env *envelope) error {
	buf, err := msgpack.Marshal(env)
	if err != nil {
		return errors.Wrapf(err, "encoding value for %s", key)
	}
	if _, err := s.kv.Put(natsKey(key), buf); err != nil {
		return errors.Wrapf(err, "nats put %s", key)
	}
	return nil
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, gnats.ErrKeyExists) {
		return true
	}
	var apiErr *gnats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == gnats.JSErrCodeStreamWrongLastSequence
}

// update applies fn to the current envelope at key and writes the result
// back only if nobody else wrote the key in between, retrying on conflict.
func (s *natsStore) update(ctx context.Context, key string, fn func(cur *envelope) (*envelope, error)) (*envelope, error) {
	k := natsKey(key)
	for attempt := 0; attempt < natsCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur, rev, err := s.load(key)
		if err != nil {
			return nil, err
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		buf, err := msgpack.Marshal(next)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding value for %s", key)
		}
		if rev == 0 {
			_, err = s.kv.Create(k, buf)
		} else {
			_, err = s.kv.Update(k, buf, rev)
		}
		if err == nil {
			return next, nil
		}
		if !isRevisionConflict(err) {
			return nil, errors.Wrapf(err, "nats update %s", key)
		}
	}
	return nil, errors.Newf("nats update %s: too much contention", key)
}

func (s *natsStore) Get(ctx context.Context, key string) (bool, []byte, error) {
	env, _, err := s.load(key)
	if err != nil || env == nil {
		return false, nil, err
	}
	if env.IsList {
		return false, nil, errors.Wrapf(ErrWrongType, "get %s", key)
	}
	return true, clone(env.Value), nil
}

func (s *natsStore) Set(ctx context.Context, key string, value []byte) error {
	return s.put(key, &envelope{Value: clone(value)})
}

func (s *natsStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := checkTTL(ttl); err != nil {
		return err
	}
	return s.put(key, &envelope{Value: clone(value), ExpiresAt: time.Now().Add(ttl).UnixNano()})
}

func (s *natsStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	_, err := s.update(ctx, key, func(cur *envelope) (*envelope, error) {
		n = 0
		if cur != nil {
			if cur.IsList {
				return nil, errors.Wrapf(ErrWrongType, "incr %s", key)
			}
			v, err := strconv.ParseInt(string(cur.Value), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(ErrNotInteger, "incr %s", key)
			}
			n = v
		}
		n++
		next := &envelope{Value: []byte(strconv.FormatInt(n, 10))}
		if cur != nil {
			next.ExpiresAt = cur.ExpiresAt
		}
		return next, nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *natsStore) Append(ctx context.Context, key string, value []byte) error {
	_, err := s.update(ctx, key, func(cur *envelope) (*envelope, error) {
		if cur == nil {
			return &envelope{List: [][]byte{clone(value)}, IsList: true}, nil
		}
		if !cur.IsList {
			return nil, errors.Wrapf(ErrWrongType, "append %s", key)
		}
		cur.List = append(cur.List, clone(value))
		return cur, nil
	})
	return err
}

func (s *natsStore) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	env, _, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return [][]byte{}, nil
	}
	if !env.IsList {
		return nil, errors.Wrapf(ErrWrongType, "range %s", key)
	}
	return sliceRange(env.List, start, stop), nil
}

func (s *natsStore) FlushAll(ctx context.Context) error {
	keys, err := s.kv.Keys()
	if errors.Is(err, gnats.ErrNoKeysFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "nats keys")
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.kv.Purge(k); err != nil {
			return errors.Wrapf(err, "nats purge %s", k)
		}
	}
	return nil
}

func (s *natsStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// NewNATS returns a Store on top of an existing JetStream key-value bucket.
// The caller keeps ownership of the underlying connection.
func NewNATS(bucket gnats.KeyValue) Store {
	return &natsStore{kv: bucket}
}

// BindBucket returns the named key-value bucket, creating it when it does not exist yet.
func BindBucket(js gnats.JetStreamContext, bucket string) (gnats.KeyValue, error) {
	kv, err := js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, gnats.ErrBucketNotFound) {
		return nil, errors.Wrapf(err, "error binding key-value bucket %s", bucket)
	}
	kv, err = js.CreateKeyValue(&gnats.KeyValueConfig{
		Bucket:      bucket,
		Description: "kvcache store",
		History:     1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error creating key-value bucket %s", bucket)
	}
	return kv, nil
}

// connectNATS returns a new nats connection
func connectNATS(log logger.Logger, name string, hosts string, opts ...gnats.Option) (*gnats.Conn, error) {
	opts = append([]gnats.Option{gnats.Name(name)}, opts...)
	nc, err := gnats.Connect(hosts, opts...)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS hosts at %s. %w", hosts, err)
	}
	d, err := nc.RTT()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("error testing round trip to NATS hosts at %s. %w", hosts, err)
	}
	log.Debug("NATS ping rtt: %v, host: %s (%s)", d, nc.ConnectedUrl(), nc.ConnectedServerName())
	return nc, nil
}

// OpenNATS connects to hosts and returns a Store on the named bucket. Closing
// the store closes the connection.
func OpenNATS(log logger.Logger, hosts string, bucket string, opts ...gnats.Option) (Store, error) {
	nc, err := connectNATS(log, "kvcache", hosts, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "error creating jetstream context")
	}
	kv, err := BindBucket(js, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &natsStore{kv: kv, conn: nc}, nil
}
