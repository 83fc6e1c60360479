package keyspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wosguides/guides/internal/keyspace"
)

func TestPrefix(t *testing.T) {
	p := keyspace.New("guides")
	assert.True(t, p.Owned())
	assert.Equal(t, "guides:@app_language", p.Key("@app_language"))
	assert.Equal(t, []string{"guides:a", "guides:b"}, p.Keys("a", "b"))
	assert.Equal(t, "guides:*", p.Pattern())

	whole := keyspace.New("")
	assert.False(t, whole.Owned())
	assert.Equal(t, "k", whole.Key("k"))
	assert.Equal(t, "*", whole.Pattern())
}

func TestPatternEscapesGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?\[c\]:*`, keyspace.New("a*b?[c]").Pattern())
}
