package cache

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxKeyLength is the longest key a layer accepts.
const MaxKeyLength = 250

// ValidateKey checks that key is non-empty, at most MaxKeyLength bytes, free
// of control characters and without surrounding whitespace.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}

	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}

	return nil
}

// KeyPattern builds keys of the form prefix<sep>part<sep>part.
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern creates a key pattern. An empty separator means ":".
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{prefix: prefix, separator: separator}
}

// Build joins prefix and parts with the separator.
func (kp *KeyPattern) Build(parts ...string) string {
	var b strings.Builder
	b.WriteString(kp.prefix)
	for _, part := range parts {
		b.WriteString(kp.separator)
		b.WriteString(part)
	}
	return b.String()
}

// Parse returns the parts of a key built by this pattern, or false when key
// does not carry the prefix.
func (kp *KeyPattern) Parse(key string) ([]string, bool) {
	rest, ok := strings.CutPrefix(key, kp.prefix+kp.separator)
	if !ok {
		return nil, false
	}
	return strings.Split(rest, kp.separator), true
}

var accountKeys = NewKeyPattern("account", ":")

// AccountKey returns the cache key of the view of account id.
func AccountKey(id int64) string {
	return accountKeys.Build(strconv.FormatInt(id, 10))
}

// ParseAccountKey extracts the account id from a key built by AccountKey.
func ParseAccountKey(key string) (int64, error) {
	parts, ok := accountKeys.Parse(key)
	if !ok || len(parts) != 1 {
		return 0, fmt.Errorf("%w: not an account key: %q", ErrInvalidKey, key)
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad account id in %q", ErrInvalidKey, key)
	}
	return id, nil
}
