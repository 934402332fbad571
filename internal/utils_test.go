package internal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "plain", input: "jsonadm_entity", expected: `"jsonadm_entity"`},
		{name: "schema qualified", input: `  "admin" . jsonadm_list  `, expected: pgx.Identifier{"admin", "jsonadm_list"}.Sanitize()},
		{name: "all empty parts fallback", input: "...", expected: pgx.Identifier{"..."}.Sanitize()},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeIdentifier(tt.input))
		})
	}
}

func TestNewID(t *testing.T) {
	a, b := newID(), newID()
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"numbers", 2.0, 10.0, -1},
		{"numeric strings", "10", "9", 1},
		{"mixed number and string", 5, "5", 0},
		{"strings", "apple", "banana", -1},
		{"nil first", nil, "a", -1},
		{"nil last", "a", nil, 1},
		{"both nil", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareValues(tt.a, tt.b))
		})
	}
}

func TestCopyMapDeep(t *testing.T) {
	orig := map[string]any{
		"product.config": map[string]any{"color": "red"},
		"product.tags":   []any{"a", map[string]any{"b": 1}},
	}
	cp := copyMapDeep(orig)

	cp["product.config"].(map[string]any)["color"] = "blue"
	cp["product.tags"].([]any)[1].(map[string]any)["b"] = 2

	assert.Equal(t, "red", orig["product.config"].(map[string]any)["color"])
	assert.Equal(t, 1, orig["product.tags"].([]any)[1].(map[string]any)["b"])
}
