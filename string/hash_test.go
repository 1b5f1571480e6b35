package string

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNewHash(t *testing.T) {
	assert.Equal(t, "b7b41276360564d4", NewHash("1"))
	assert.Equal(t, "d7c9b97948142e4a", NewHash(true))
	assert.Equal(t, "ea8842e9ea2638fa", NewHash("hi"))
	assert.Equal(t, NewHash("hi"), NewHash([]byte("hi")))
	assert.Len(t, NewHash("http://example.com", 1234), 16)
	assert.NotEqual(t, NewHash("http://example.com", 1), NewHash("http://example.com", 2))
}

func TestNewHash64(t *testing.T) {
	assert.Equal(t, uint64(0xb7b41276360564d4), NewHash64("1"))
	assert.Equal(t, uint64(0xea8842e9ea2638fa), NewHash64("hi"))
}

func TestShortenKey(t *testing.T) {
	assert.Equal(t, "count:http://example.com", ShortenKey("count:http://example.com", 250))

	long := "cached:http://example.com/" + strings.Repeat("a", 400)
	short := ShortenKey(long, 250)
	assert.Len(t, short, 250)
	assert.True(t, strings.HasPrefix(short, "cached:http://example.com/"))
	assert.NotEqual(t, short, ShortenKey(long+"b", 250))
	assert.Equal(t, short, ShortenKey(long, 250))

	for pad := 0; pad < 4; pad++ {
		key := strings.Repeat("a", pad) + "http://example.com/" + strings.Repeat("é", 200)
		short := ShortenKey(key, 250)
		assert.LessOrEqual(t, len(short), 250, "pad %d", pad)
		assert.True(t, utf8.ValidString(short), "pad %d", pad)
		assert.True(t, strings.HasPrefix(short, strings.Repeat("a", pad)+"http://example.com/é"))
	}

	spaced := ShortenKey("Cache.store:inputs with space", 250)
	assert.NotContains(t, spaced, " ")
	assert.Contains(t, spaced, "#")
}
