package http

import (
	"context"
	"fmt"
	ghttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-kvcache/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecorder struct {
	mu        sync.Mutex
	responses []*Response
}

func (r *testRecorder) OnResponse(ctx context.Context, url string, resp *Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
}

func TestFetchOK(t *testing.T) {
	var headers ghttp.Header
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {
		assert.Equal(t, ghttp.MethodGet, r.Method)
		headers = r.Header.Clone()
		fmt.Fprint(w, "<html>hello</html>")
	}))
	defer srv.Close()

	client := New(WithLogger(logger.NewTestLogger()))
	body, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<html>hello</html>", body)
	assert.Equal(t, userAgentHeaderValue, headers.Get("User-Agent"))
	assert.Equal(t, "1", headers.Get("X-Attempt"))
	id := headers.Get("X-Request-Id")
	assert.True(t, strings.HasPrefix(id, "1/"), id)
	assert.Len(t, id, len("1/")+16)
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {
		w.WriteHeader(ghttp.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), srv.URL)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, ghttp.StatusNotFound, serr.StatusCode)
	assert.EqualValues(t, 1, serr.Attempts)
	assert.Contains(t, serr.Error(), "404 Not Found")
}

func TestNoRetryByDefault(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(ghttp.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(WithDuration(time.Millisecond)).Fetch(context.Background(), srv.URL)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, ghttp.StatusServiceUnavailable, serr.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRetryTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(ghttp.StatusBadGateway)
			return
		}
		assert.Equal(t, "3", r.Header.Get("X-Attempt"))
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	recorder := &testRecorder{}
	client := New(WithMaxAttempts(5), WithDuration(time.Millisecond), WithRecorder(recorder))
	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, ghttp.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, resp.Attempts)
	assert.Equal(t, "ok", string(resp.Body))
	require.Len(t, recorder.responses, 3)
	assert.Equal(t, ghttp.StatusBadGateway, recorder.responses[0].StatusCode)
}

func TestRetryExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(ghttp.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := New(WithMaxAttempts(3), WithDuration(time.Millisecond)).Fetch(context.Background(), srv.URL)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.EqualValues(t, 3, serr.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryAfter("2", time.Millisecond))
	assert.Equal(t, time.Millisecond, retryAfter("", time.Millisecond))
	assert.Equal(t, time.Millisecond, retryAfter("0", time.Millisecond))
	assert.Equal(t, time.Millisecond, retryAfter("soon", time.Millisecond))
	d := retryAfter(time.Now().Add(time.Hour).UTC().Format(ghttp.TimeFormat), time.Millisecond)
	assert.True(t, d > 59*time.Minute, d)
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(ghttp.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "later")
	}))
	defer srv.Close()

	started := time.Now()
	body, err := New(WithMaxAttempts(2), WithDuration(time.Millisecond)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "later", body)
	assert.GreaterOrEqual(t, time.Since(started), time.Second)
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(WithMaxAttempts(2), WithDuration(time.Millisecond)).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyAttempts))
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(ghttp.HandlerFunc(func(w ghttp.ResponseWriter, r *ghttp.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	started := time.Now()
	_, err := New(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(started), time.Second)
}
