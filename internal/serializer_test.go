package internal_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wosguides/guides/internal"
)

type testStruct struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestMarshal(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected []byte
	}{
		{name: "nil input returns null", input: nil, expected: []byte("null")},
		{name: "byte slice passthrough", input: []byte("hello world"), expected: []byte("hello world")},
		{name: "string passthrough", input: "test string", expected: []byte("test string")},
		{name: "raw message passthrough", input: json.RawMessage(`{"key":"value"}`), expected: []byte(`{"key":"value"}`)},
		{name: "struct as json", input: testStruct{ID: 1, Name: "a"}, expected: []byte(`{"id":1,"name":"a"}`)},
		{name: "map as json", input: map[string]int{"a": 1, "b": 2}, expected: []byte(`{"a":1,"b":2}`)},
		{name: "bool as json", input: true, expected: []byte("true")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := internal.Marshal(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestUnmarshal(t *testing.T) {
	t.Run("nil holder", func(t *testing.T) {
		err := internal.Unmarshal([]byte("x"), nil)
		require.EqualError(t, err, "holder is nil")
	})

	t.Run("non pointer holder", func(t *testing.T) {
		err := internal.Unmarshal([]byte("x"), "value")
		require.EqualError(t, err, "holder must be a non-nil pointer")
	})

	t.Run("nil pointer holder", func(t *testing.T) {
		err := internal.Unmarshal([]byte("x"), (*string)(nil))
		require.EqualError(t, err, "holder must be a non-nil pointer")
	})

	t.Run("bytes", func(t *testing.T) {
		var b []byte
		require.NoError(t, internal.Unmarshal([]byte("hello"), &b))
		assert.Equal(t, []byte("hello"), b)
	})

	t.Run("string", func(t *testing.T) {
		var s string
		require.NoError(t, internal.Unmarshal([]byte("hello"), &s))
		assert.Equal(t, "hello", s)
	})

	t.Run("struct", func(t *testing.T) {
		var v testStruct
		require.NoError(t, internal.Unmarshal([]byte(`{"id":7,"name":"guide"}`), &v))
		assert.Equal(t, testStruct{ID: 7, Name: "guide"}, v)
	})

	t.Run("invalid json", func(t *testing.T) {
		var v testStruct
		require.Error(t, internal.Unmarshal([]byte(`{`), &v))
	})
}
