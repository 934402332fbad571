package internal

import (
	"testing"

	"github.com/lychee-technology/jsonadm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) *PayloadParser {
	t.Helper()
	p, err := NewPayloadParser()
	require.NoError(t, err)
	return p
}

func TestPayloadParser_Single(t *testing.T) {
	body := `{
		"data": {
			"id": "7",
			"type": "product",
			"attributes": {"product.label": "Shirt", "product.type": "default"},
			"relationships": {
				"text": {"data": [
					{"id": "12", "attributes": {"product.lists.type": "default"}},
					{"id": 13}
				]},
				"media": {"data": {"id": "3"}}
			}
		}
	}`

	parsed, err := newTestParser(t).Parse([]byte(body))
	require.NoError(t, err)

	assert.False(t, parsed.Bulk)
	require.Len(t, parsed.Entries, 1)
	entry := parsed.Entries[0]
	assert.Equal(t, "7", entry.ID)
	assert.Equal(t, "Shirt", entry.Attributes["product.label"])

	require.Len(t, entry.Relationships["text"], 2)
	assert.Equal(t, "12", entry.Relationships["text"][0].ID)
	assert.Equal(t, "default", entry.Relationships["text"][0].Attributes["product.lists.type"])
	assert.Equal(t, "13", entry.Relationships["text"][1].ID)
	require.Len(t, entry.Relationships["media"], 1)
	assert.Equal(t, "3", entry.Relationships["media"][0].ID)
	assert.Equal(t, []string{"media", "text"}, entry.RelationshipDomains())
}

func TestPayloadParser_Bulk(t *testing.T) {
	body := `{"data": [
		{"id": "1", "attributes": {"order.status": 1}},
		{"attributes": {"order.status": 2}},
		{"id": 3}
	]}`

	p := newTestParser(t)
	parsed, err := p.Parse([]byte(body))
	require.NoError(t, err)

	assert.True(t, parsed.Bulk)
	require.Len(t, parsed.Entries, 3)
	assert.Equal(t, "1", parsed.Entries[0].ID)
	assert.Equal(t, "", parsed.Entries[1].ID)
	assert.Equal(t, 2.0, parsed.Entries[1].Attributes["order.status"])
	assert.NotNil(t, parsed.Entries[2].Attributes)
	assert.Equal(t, []string{"1", "3"}, p.ExtractIDs(parsed))
}

func TestPayloadParser_EmptyBulk(t *testing.T) {
	parsed, err := newTestParser(t).Parse([]byte(`{"data": []}`))
	require.NoError(t, err)
	assert.True(t, parsed.Bulk)
	assert.Empty(t, parsed.Entries)
}

func TestPayloadParser_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"not json", `{data`},
		{"no data", `{"meta": {}}`},
		{"top level list", `[{"data": {}}]`},
		{"scalar data", `{"data": "x"}`},
		{"list of scalars", `{"data": [1, 2]}`},
		{"attributes not an object", `{"data": {"attributes": [1]}}`},
		{"id is an object", `{"data": {"id": {"x": 1}}}`},
		{"relationship without data", `{"data": {"relationships": {"text": {}}}}`},
		{"relationship data scalar", `{"data": {"relationships": {"text": {"data": "12"}}}}`},
	}

	p := newTestParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse([]byte(tt.body))
			require.Error(t, err)
			adminErr, ok := jsonadm.AsAdminError(err)
			require.True(t, ok)
			assert.Equal(t, jsonadm.ErrCodeInvalidBody, adminErr.Code)
			assert.Equal(t, 400, jsonadm.StatusCode(err))
		})
	}
}
