// Package keyspace namespaces keys in stores shared by several tenants, such as a redis database.
package keyspace

import "strings"

// Prefix is prepended to every key of one store. The zero value owns the whole keyspace.
type Prefix string

// New returns "namespace:" or the zero Prefix for an empty namespace.
func New(namespace string) Prefix {
	if namespace == "" {
		return ""
	}
	return Prefix(namespace + ":")
}

func (p Prefix) Key(key string) string {
	return string(p) + key
}

// Keys prefixes each of keys.
func (p Prefix) Keys(keys ...string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = p.Key(key)
	}
	return out
}

// Owned reports whether a flush may only touch matching keys.
func (p Prefix) Owned() bool {
	return p != ""
}

// Pattern is a SCAN MATCH glob selecting every key under p.
func (p Prefix) Pattern() string {
	var b strings.Builder
	for _, r := range string(p) {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}
