// Package signature fingerprints submitted code. The same normalization backs
// both the result cache key and the learned-pattern signature, so a cache hit
// and an exact pattern match always agree on what counts as "the same code".
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

var commentPrefixes = []string{"//", "#", "/*", "*/", "*"}

// Normalize trims every line, then drops blank lines and line comments.
func Normalize(code string) string {
	lines := strings.Split(code, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || isComment(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isComment(line string) bool {
	for _, p := range commentPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// Compute returns the hex SHA-256 of the normalized code.
func Compute(code string) string {
	return hash(Normalize(code))
}

// CacheKey fingerprints (normalized code, language, kind) for the result cache.
func CacheKey(code, language, kind string) string {
	return hash(Normalize(code), strings.ToLower(strings.TrimSpace(language)), kind)
}

func hash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
