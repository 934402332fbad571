package jsonadm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributePrefix(t *testing.T) {
	assert.Equal(t, "order.base", AttributePrefix("order/base"))
	assert.Equal(t, "product", AttributePrefix("product"))
}

func TestEntity_FromMapKeepsID(t *testing.T) {
	e := NewEntity("order/base")
	e.ID = "42"
	e.FromMap(map[string]any{
		"order.base.id":      "99",
		"order.base.comment": "rush",
	})

	assert.Equal(t, "42", e.ID)
	v, ok := e.Get("order.base.comment")
	require.True(t, ok)
	assert.Equal(t, "rush", v)

	m := e.ToMap()
	assert.Equal(t, "42", m["order.base.id"])
	assert.Equal(t, "rush", m["order.base.comment"])
}

func TestEntity_Clone(t *testing.T) {
	e := &Entity{ResourceType: "product", ID: "1", Attributes: map[string]any{"product.label": "a"}}
	c := e.Clone()
	c.Set("product.label", "b")

	v, _ := e.Get("product.label")
	assert.Equal(t, "a", v)
	assert.Nil(t, (*Entity)(nil).Clone())
}

func TestListItem_FromMap(t *testing.T) {
	li := NewListItem("product/lists")
	li.FromMap(map[string]any{
		"product.lists.id":       "ignored",
		"product.lists.parentid": "ignored",
		"product.lists.refid":    12.0,
		"product.lists.typeid":   "7",
		"product.lists.position": 3.0,
		"product.lists.domain":   "text",
		"product.lists.config":   map[string]any{"a": 1},
	})

	assert.Equal(t, "", li.ID)
	assert.Equal(t, "", li.ParentID)
	assert.Equal(t, "12", li.RefID)
	assert.Equal(t, "7", li.TypeID)
	assert.Equal(t, 3, li.Position)
	assert.Equal(t, "text", li.Domain)
	assert.Equal(t, map[string]any{"product.lists.config": map[string]any{"a": 1}}, li.Attributes)

	m := li.ToMap()
	assert.Equal(t, "12", m["product.lists.refid"])
	assert.Equal(t, 3, m["product.lists.position"])
}

func TestSearchCriteria_Clone(t *testing.T) {
	orig := &SearchCriteria{Sort: []SortKey{{Field: "a", Order: SortOrderAsc}}, Limit: 25}
	c := orig.Clone()
	c.Sort = append(c.Sort, SortKey{Field: "b", Order: SortOrderDesc})
	c.Sort[0].Field = "z"

	assert.Len(t, orig.Sort, 1)
	assert.Equal(t, "a", orig.Sort[0].Field)
	assert.NotNil(t, (*SearchCriteria)(nil).Clone())
}

func TestRequestEntry_RelationshipDomains(t *testing.T) {
	e := &RequestEntry{Relationships: map[string][]*RelationshipRef{
		"text":  nil,
		"media": nil,
		"price": nil,
	}}
	assert.Equal(t, []string{"media", "price", "text"}, e.RelationshipDomains())
}

func TestParsedRequest_IDs(t *testing.T) {
	p := &ParsedRequest{Entries: []*RequestEntry{{ID: "1"}, {}, {ID: "3"}}}
	assert.Equal(t, []string{"1", "3"}, p.IDs())
	assert.Nil(t, (*ParsedRequest)(nil).IDs())
}

func TestStringValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{12.0, "12"},
		{12.5, "12.5"},
		{7, "7"},
		{int64(8), "8"},
		{true, "true"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StringValue(tt.in))
	}
}
