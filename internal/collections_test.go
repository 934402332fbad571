package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSetAdd tests adding items to a set
func TestSetAdd(t *testing.T) {
	set := NewSet[int]()
	assert.True(t, set.Add(1))
	assert.True(t, set.Add(2))
	assert.False(t, set.Add(1))

	assert.Equal(t, 2, set.Size())
	assert.True(t, set.Contains(1))
	assert.False(t, set.Contains(4))
}

// TestSetKeepsInsertionOrder tests that ToSlice returns first occurrences in order
func TestSetKeepsInsertionOrder(t *testing.T) {
	set := NewSet("text", "media", "text", "price", "media")
	assert.Equal(t, []string{"text", "media", "price"}, set.ToSlice())

	slice := set.ToSlice()
	slice[0] = "changed"
	assert.Equal(t, "text", set.ToSlice()[0])
}

func TestDistinct(t *testing.T) {
	assert.Equal(t, []string{"3", "1", "2"}, Distinct([]string{"3", "1", "3", "2", "1"}))
	assert.Empty(t, Distinct([]string(nil)))
}

func TestGroupBy(t *testing.T) {
	type edge struct {
		domain string
		ref    string
	}
	items := []edge{{"text", "1"}, {"media", "2"}, {"text", "3"}}

	groups, keys := GroupBy(items, func(e edge) string { return e.domain })

	assert.Equal(t, []string{"text", "media"}, keys)
	assert.Equal(t, []edge{{"text", "1"}, {"text", "3"}}, groups["text"])
	assert.Equal(t, []edge{{"media", "2"}}, groups["media"])
}
