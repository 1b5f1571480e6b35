package kv

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	gnats "github.com/nats-io/nats.go"
	"github.com/shopmonkeyus/go-kvcache/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runTestServer(t *testing.T) *server.Server {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.Cluster.Name = "testing"
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSStore(t *testing.T) {
	srv := runTestServer(t)
	nc, err := gnats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	js, err := nc.JetStream()
	require.NoError(t, err)
	var n int
	runStoreTests(t, storeHarness{
		open: func(t *testing.T) Store {
			n++
			bucket, err := BindBucket(js, "test_"+string(rune('a'+n)))
			require.NoError(t, err)
			return NewNATS(bucket)
		},
		advance: sleepAdvance,
	})
}

func TestNATSKeysAreEncoded(t *testing.T) {
	srv := runTestServer(t)
	log := logger.NewTestLogger()
	s, err := OpenNATS(log, srv.ClientURL(), DefaultBucket)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	// colons, slashes and spaces are not valid in raw NATS key names
	key := "count:http://example.com/a page?x=1"
	n, err := s.Incr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	found, val, err := s.Get(ctx, key)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", string(val))

	require.Len(t, log.Logs(), 1)
	assert.Equal(t, "NATS ping rtt: %v, host: %s (%s)", log.Logs()[0].Message)
}

func TestNATSIncrAfterExpiry(t *testing.T) {
	srv := runTestServer(t)
	s, err := OpenNATS(logger.NewTestLogger(), srv.ClientURL(), "expiry")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	store := s.(*natsStore)

	// an expired envelope still has a revision, so the next write must update rather than create
	require.NoError(t, store.put("counter", &envelope{Value: []byte("41"), ExpiresAt: 1}))
	n, err := s.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpenNATS(t *testing.T) {
	srv := runTestServer(t)
	s, err := Open(context.Background(), logger.NewTestLogger(), srv.ClientURL()+"/pages")
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Set(context.Background(), "a", []byte("b")))
}
