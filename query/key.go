package query

import (
	"encoding/json"
	"slices"
	"strings"
)

// Key identifies a query by an ordered list of parts, for example {"guides", "category", "X"}.
type Key []string

func NewKey(parts ...string) Key {
	return Key(parts)
}

// Fingerprint is the canonical JSON encoding of the key.
func (k Key) Fingerprint() string {
	parts := []string(k)
	if parts == nil {
		parts = []string{}
	}
	//nolint:errchkjson // a string slice always encodes
	b, _ := json.Marshal(parts)
	return string(b)
}

// HasPrefix reports whether prefix matches the leading parts of k. An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	return len(prefix) <= len(k) && slices.Equal(k[:len(prefix)], prefix)
}

func (k Key) String() string {
	return strings.Join(k, "/")
}
