package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

func mustQuote(val string) bool {
	if strings.Contains(val, `"`) {
		return true
	}
	if strings.Contains(val, "\\n") || strings.Contains(val, " ") || strings.Contains(val, "#") {
		return true
	}
	return false
}

// EncodeEnv encodes a key and value as an env file line.
func EncodeEnv(key, val string) string {
	val = strings.ReplaceAll(val, "\n", "\\n")
	if mustQuote(val) {
		if strings.Contains(val, `"`) {
			val = `'` + val + `'`
		} else {
			val = `"` + val + `"`
		}
	}
	return fmt.Sprintf(`%s=%s`, key, val)
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// ProcessEnvLine splits a KEY=value line, dropping an optional export keyword and surrounding quotes.
func ProcessEnvLine(env string) EnvLine {
	tok := strings.SplitN(env, "=", 2)
	key := strings.TrimSpace(strings.TrimPrefix(tok[0], "export "))
	val := strings.TrimSpace(tok[1])
	val = strings.ReplaceAll(dequote(val), "\\n", "\n")
	return EnvLine{Key: key, Val: val}
}

// ParseEnvFile parses an environment file and returns its lines in order.
func ParseEnvFile(filename string) ([]EnvLine, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading env file %s", filename)
	}
	return ParseEnvBuffer(buf)
}

// ParseEnvBuffer parses an environment file from a buffer. Blank lines,
// comments and lines without an equals sign are skipped.
func ParseEnvBuffer(buf []byte) ([]EnvLine, error) {
	var envs []EnvLine
	if len(buf) > 0 {
		lines := strings.Split(string(buf), "\n")
		for i, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || line[0] == '#' || !strings.Contains(line, "=") {
				continue
			}
			el := ProcessEnvLine(line)
			if el.Key == "" {
				return nil, errors.Newf("line %d: missing key", i+1)
			}
			envs = append(envs, el)
		}
	}
	return envs, nil
}

// WriteEnvFile writes envs to fn, one encoded line each.
func WriteEnvFile(fn string, envs []EnvLine) error {
	of, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer of.Close()
	for _, el := range envs {
		if _, err := fmt.Fprintln(of, EncodeEnv(el.Key, el.Val)); err != nil {
			return err
		}
	}
	return of.Close()
}
