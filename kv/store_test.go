package kv

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// storeHarness describes one backend for the shared store tests.
type storeHarness struct {
	open    func(t *testing.T) Store
	advance func(t *testing.T, d time.Duration)
}

func sleepAdvance(t *testing.T, d time.Duration) {
	time.Sleep(d)
}

func runStoreTests(t *testing.T, h storeHarness) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := h.open(t)
		found, val, err := s.Get(ctx, "missing")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
	})

	t.Run("set and get", func(t *testing.T) {
		s := h.open(t)
		require.NoError(t, s.Set(ctx, "greeting", []byte("hello")))
		found, val, err := s.Get(ctx, "greeting")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("hello"), val)
		require.NoError(t, s.Set(ctx, "greeting", []byte("world")))
		_, val, err = s.Get(ctx, "greeting")
		assert.NoError(t, err)
		assert.Equal(t, []byte("world"), val)
	})

	t.Run("binary values", func(t *testing.T) {
		s := h.open(t)
		blob := []byte{0x00, 0xff, 0x10, 0x80}
		require.NoError(t, s.Set(ctx, "blob", blob))
		_, val, err := s.Get(ctx, "blob")
		assert.NoError(t, err)
		assert.Equal(t, blob, val)
	})

	t.Run("incr", func(t *testing.T) {
		s := h.open(t)
		for i := int64(1); i <= 3; i++ {
			n, err := s.Incr(ctx, "Cache.store")
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}
		found, val, err := s.Get(ctx, "Cache.store")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "3", string(val))
	})

	t.Run("incr non integer", func(t *testing.T) {
		s := h.open(t)
		require.NoError(t, s.Set(ctx, "word", []byte("abc")))
		_, err := s.Incr(ctx, "word")
		assert.True(t, errors.Is(err, ErrNotInteger), "got %v", err)
	})

	t.Run("append and range", func(t *testing.T) {
		s := h.open(t)
		list, err := s.Range(ctx, "Cache.store:inputs", 0, -1)
		assert.NoError(t, err)
		assert.Empty(t, list)
		for _, v := range []string{"first", "second", "third"} {
			require.NoError(t, s.Append(ctx, "Cache.store:inputs", []byte(v)))
		}
		list, err = s.Range(ctx, "Cache.store:inputs", 0, -1)
		assert.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("first"), []byte("second"), []byte("third")}, list)
		list, err = s.Range(ctx, "Cache.store:inputs", 1, 1)
		assert.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("second")}, list)
		list, err = s.Range(ctx, "Cache.store:inputs", -2, -1)
		assert.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("second"), []byte("third")}, list)
		list, err = s.Range(ctx, "Cache.store:inputs", 5, 10)
		assert.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("wrong type", func(t *testing.T) {
		s := h.open(t)
		require.NoError(t, s.Set(ctx, "scalar", []byte("1")))
		require.NoError(t, s.Append(ctx, "list", []byte("a")))
		_, err := s.Range(ctx, "scalar", 0, -1)
		assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)
		_, _, err = s.Get(ctx, "list")
		assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)
		err = s.Append(ctx, "scalar", []byte("b"))
		assert.True(t, errors.Is(err, ErrWrongType), "got %v", err)
	})

	t.Run("set with expiry", func(t *testing.T) {
		s := h.open(t)
		require.NoError(t, s.SetWithExpiry(ctx, "page", []byte("<html>"), 200*time.Millisecond))
		found, val, err := s.Get(ctx, "page")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("<html>"), val)
		h.advance(t, 300*time.Millisecond)
		found, _, err = s.Get(ctx, "page")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("invalid ttl", func(t *testing.T) {
		s := h.open(t)
		err := s.SetWithExpiry(ctx, "page", []byte("x"), 0)
		assert.True(t, errors.Is(err, ErrInvalidTTL), "got %v", err)
	})

	t.Run("flush all", func(t *testing.T) {
		s := h.open(t)
		require.NoError(t, s.Set(ctx, "a", []byte("1")))
		require.NoError(t, s.Append(ctx, "b", []byte("2")))
		require.NoError(t, s.FlushAll(ctx))
		found, _, err := s.Get(ctx, "a")
		assert.NoError(t, err)
		assert.False(t, found)
		list, err := s.Range(ctx, "b", 0, -1)
		assert.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("concurrent incr and append", func(t *testing.T) {
		s := h.open(t)
		const workers = 8
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				if _, err := s.Incr(ctx, "hits"); err != nil {
					return err
				}
				return s.Append(ctx, "log", []byte("x"))
			})
		}
		require.NoError(t, g.Wait())
		_, val, err := s.Get(ctx, "hits")
		assert.NoError(t, err)
		assert.Equal(t, "8", string(val))
		list, err := s.Range(ctx, "log", 0, -1)
		assert.NoError(t, err)
		assert.Len(t, list, workers)
	})
}

func TestSliceRange(t *testing.T) {
	list := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	assert.Len(t, sliceRange(list, 0, -1), 3)
	assert.Len(t, sliceRange(list, 0, 100), 3)
	assert.Len(t, sliceRange(list, -100, 0), 1)
	assert.Empty(t, sliceRange(list, 2, 1))
	assert.Empty(t, sliceRange(nil, 0, -1))
	out := sliceRange(list, 0, 0)
	out[0][0] = 'z'
	assert.Equal(t, "a", string(list[0]), "range must not alias stored values")
}
