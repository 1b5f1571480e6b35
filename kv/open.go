package kv

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopmonkeyus/go-kvcache/logger"
)

// Open returns the Store described by rawURL:
//
//	memory://                     in-process store
//	redis://[:password@]host:port/db
//	rediss://...                  redis over TLS
//	memcache://host:port[,host:port...]
//	nats://host:port[/bucket]     JetStream key-value bucket
func Open(ctx context.Context, log logger.Logger, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid store url %q", rawURL)
	}
	log = logger.WithKV(log.WithPrefix("[kv]"), "scheme", u.Scheme)
	switch u.Scheme {
	case "", "memory", "mem":
		log.Debug("using in-memory store")
		return NewMemory(ctx, time.Second), nil
	case "redis", "rediss":
		opts, err := redis.ParseURL(rawURL)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid redis url %q", rawURL)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, errors.Wrapf(err, "error connecting to redis at %s", opts.Addr)
		}
		log.Debug("connected to redis at %s db %d", opts.Addr, opts.DB)
		return NewRedis(client), nil
	case "memcache", "memcached":
		hosts := memcacheHosts(u.Host)
		if len(hosts) == 0 {
			return nil, errors.Newf("memcache url %q names no hosts", rawURL)
		}
		client := memcache.New(hosts...)
		if err := client.Ping(); err != nil {
			return nil, errors.Wrapf(err, "error connecting to memcache at %s", strings.Join(hosts, ","))
		}
		log.Debug("connected to memcache at %s", strings.Join(hosts, ","))
		return NewMemcache(client), nil
	case "nats", "tls":
		bucket := strings.Trim(u.Path, "/")
		if bucket == "" {
			bucket = DefaultBucket
		}
		hosts := *u
		hosts.Path = ""
		return OpenNATS(log, hosts.String(), bucket)
	}
	return nil, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
}
