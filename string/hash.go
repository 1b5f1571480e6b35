package string

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	xxhash "github.com/cespare/xxhash/v2"
	gstr "github.com/savsgio/gotils/strconv"
)

// NewHash64 returns the xxhash of one or more values written in order.
func NewHash64(val ...interface{}) uint64 {
	sha := xxhash.New()
	for _, v := range val {
		switch r := v.(type) {
		case string:
			sha.WriteString(r)
		case []byte:
			sha.Write(r)
		case int, int8, int16, int32, int64, uint, uint32, uint64:
			sha.WriteString(fmt.Sprintf("%d", r))
		case float32, float64:
			sha.WriteString(fmt.Sprintf("%f", r))
		case bool:
			sha.WriteString(strconv.FormatBool(r))
		default:
			buf, _ := json.Marshal(r)
			sha.Write(buf)
		}
	}
	return sha.Sum64()
}

// NewHash returns a hash of one or more input variables using xxhash algorithm
func NewHash(val ...interface{}) string {
	v := strconv.FormatUint(NewHash64(val...), 16)
	if len(v) == 16 {
		return v
	}
	return strings.Repeat("0", 16-len(v)) + v
}

// ShortenKey returns key unchanged when it fits in max bytes and contains no
// whitespace or control characters. Otherwise the key is truncated and
// suffixed with the hash of the full key so that it stays unique and fits.
func ShortenKey(key string, max int) string {
	if len(key) <= max && !hasUnsafeByte(key) {
		return key
	}
	sum := NewHash(gstr.S2B(key))
	n := len(key)
	if limit := max - len(sum) - 1; n > limit {
		n = limit
		// back up to a rune boundary so no multi-byte character is split
		for n > 0 && !utf8.RuneStart(key[n]) {
			n--
		}
	}
	head := make([]byte, n, n+1+len(sum))
	for i := 0; i < n; i++ {
		if c := key[i]; c <= ' ' || c == 0x7f {
			head[i] = '_'
		} else {
			head[i] = c
		}
	}
	head = append(head, '#')
	head = append(head, sum...)
	return gstr.B2S(head)
}

func hasUnsafeByte(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return true
		}
	}
	return false
}
