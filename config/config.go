// Package config loads the runtime settings shared by the kvcache command and
// its components. Values come from the process environment, then an optional
// env file, then defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/logger"
)

const (
	EnvStore           = "KVCACHE_STORE"
	EnvMongoURL        = "KVCACHE_MONGO_URL"
	EnvDatabase        = "KVCACHE_DATABASE"
	EnvCollection      = "KVCACHE_COLLECTION"
	EnvFetchTTL        = "KVCACHE_FETCH_TTL"
	EnvLogLevel        = logger.LevelEnvKey
	EnvHTTPTimeout     = "KVCACHE_HTTP_TIMEOUT"
	EnvHTTPMaxAttempts = "KVCACHE_HTTP_MAX_ATTEMPTS"
)

type Config struct {
	// StoreURL selects the kv backend, see kv.Open.
	StoreURL        string        `json:"store"`
	MongoURL        string        `json:"mongo"`
	Database        string        `json:"database"`
	Collection      string        `json:"collection"`
	FetchTTL        time.Duration `json:"fetchTTL"`
	LogLevel        string        `json:"logLevel"`
	HTTPTimeout     time.Duration `json:"httpTimeout"`
	HTTPMaxAttempts uint          `json:"httpMaxAttempts"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		StoreURL:        "memory://",
		MongoURL:        "mongodb://127.0.0.1:27017",
		Database:        "logs",
		Collection:      "nginx",
		FetchTTL:        10 * time.Second,
		LogLevel:        "info",
		HTTPTimeout:     30 * time.Second,
		HTTPMaxAttempts: 1,
	}
}

// Load builds a Config. An empty envfile skips the file.
func Load(envfile string) (*Config, error) {
	file := map[string]string{}
	if envfile != "" {
		envs, err := ParseEnvFile(envfile)
		if err != nil {
			return nil, err
		}
		for _, el := range envs {
			file[el.Key] = el.Val
		}
	}
	lookup := func(key string) (string, bool) {
		if val, ok := os.LookupEnv(key); ok {
			return val, true
		}
		val, ok := file[key]
		return val, ok
	}
	cfg := Default()
	if val, ok := lookup(EnvStore); ok {
		cfg.StoreURL = val
	}
	if val, ok := lookup(EnvMongoURL); ok {
		cfg.MongoURL = val
	}
	if val, ok := lookup(EnvDatabase); ok {
		cfg.Database = val
	}
	if val, ok := lookup(EnvCollection); ok {
		cfg.Collection = val
	}
	if val, ok := lookup(EnvLogLevel); ok {
		if _, valid := logger.ParseLevel(val); !valid {
			return nil, errors.Newf("invalid %s: %q", EnvLogLevel, val)
		}
		cfg.LogLevel = val
	}
	if val, ok := lookup(EnvFetchTTL); ok {
		ttl, err := parseDuration(val)
		if err != nil || ttl <= 0 {
			return nil, errors.Newf("invalid %s: %q", EnvFetchTTL, val)
		}
		cfg.FetchTTL = ttl
	}
	if val, ok := lookup(EnvHTTPTimeout); ok {
		timeout, err := parseDuration(val)
		if err != nil || timeout <= 0 {
			return nil, errors.Newf("invalid %s: %q", EnvHTTPTimeout, val)
		}
		cfg.HTTPTimeout = timeout
	}
	if val, ok := lookup(EnvHTTPMaxAttempts); ok {
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil || n == 0 {
			return nil, errors.Newf("invalid %s: %q", EnvHTTPMaxAttempts, val)
		}
		cfg.HTTPMaxAttempts = uint(n)
	}
	return &cfg, nil
}

// parseDuration accepts a Go duration or a plain number of seconds.
func parseDuration(val string) (time.Duration, error) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(val)
}

// EnvLines returns the settings as env file lines that Load reads back unchanged.
func (c *Config) EnvLines() []EnvLine {
	return []EnvLine{
		{Key: EnvStore, Val: c.StoreURL},
		{Key: EnvMongoURL, Val: c.MongoURL},
		{Key: EnvDatabase, Val: c.Database},
		{Key: EnvCollection, Val: c.Collection},
		{Key: EnvFetchTTL, Val: c.FetchTTL.String()},
		{Key: EnvLogLevel, Val: c.LogLevel},
		{Key: EnvHTTPTimeout, Val: c.HTTPTimeout.String()},
		{Key: EnvHTTPMaxAttempts, Val: strconv.FormatUint(uint64(c.HTTPMaxAttempts), 10)},
	}
}
