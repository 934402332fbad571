package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/factory"
	"github.com/lychee-technology/jsonadm/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDocument struct {
	Meta     map[string]any   `json:"meta"`
	Data     json.RawMessage  `json:"data"`
	Included []ResourceObject `json:"included"`
	Errors   []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	config := jsonadm.DefaultConfig()
	config.Resource.Definitions = []jsonadm.ResourceDefinition{
		{Name: "order", Lists: true},
		{Name: "order/product"},
	}

	registry, err := factory.NewRegistryWithConfig(context.Background(), config, nil)
	require.NoError(t, err)
	handler, err := internal.NewResourceHandler(registry, config, nil)
	require.NoError(t, err)

	s := NewServer(handler, registry, config, nil)
	s.RegisterRoutes()
	return s
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, testDocument) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var doc testDocument
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/vnd.api+json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	}
	return rec, doc
}

func createProduct(t *testing.T, s *Server, name string) string {
	t.Helper()
	rec, doc := do(t, s, http.MethodPost, "/jsonadm/order/product",
		`{"data": {"attributes": {"order.product.name": "`+name+`"}}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var obj ResourceObject
	require.NoError(t, json.Unmarshal(doc.Data, &obj))
	assert.Equal(t, "order/product", obj.Type)
	return obj.ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, _ := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestParsePath(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path     string
		resource string
		id       string
	}{
		{"", "", ""},
		{"/order", "order", ""},
		{"/order/42", "order", "42"},
		{"/order/product", "order/product", ""},
		{"/order/product/", "order/product", ""},
		{"/order/product/7", "order/product", "7"},
		{"/customer/7", "customer/7", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resource, id := s.parsePath(tt.path)
			assert.Equal(t, tt.resource, resource)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestCreateAndFetchWithRelationships(t *testing.T) {
	s := newTestServer(t)
	p1 := createProduct(t, s, "shirt")
	p2 := createProduct(t, s, "socks")

	body := `{"data": {"attributes": {"order.status": "paid"},
		"relationships": {"order/product": {"data": [{"id": "` + p1 + `"}, {"id": "` + p2 + `"}]}}}}`
	rec, doc := do(t, s, http.MethodPost, "/jsonadm/order", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, internal.ContentType, rec.Header().Get("Content-Type"))

	var order ResourceObject
	require.NoError(t, json.Unmarshal(doc.Data, &order))

	rec, doc = do(t, s, http.MethodGet, "/jsonadm/order/"+order.ID+"?include=order/product", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, doc.Meta["total"])

	require.NoError(t, json.Unmarshal(doc.Data, &order))
	assert.Equal(t, "paid", order.Attributes["order.status"])
	assert.Equal(t, order.ID, order.Attributes["order.id"])

	rel, ok := order.Relationships["order/product"]
	require.True(t, ok)
	require.Len(t, rel.Data, 2)
	assert.Equal(t, p1, rel.Data[0].ID)
	assert.Equal(t, "order/product", rel.Data[0].Type)
	assert.Equal(t, p2, rel.Data[1].ID)

	require.Len(t, doc.Included, 2)
	names := []any{doc.Included[0].Attributes["order.product.name"], doc.Included[1].Attributes["order.product.name"]}
	assert.ElementsMatch(t, []any{"shirt", "socks"}, names)
}

func TestListWithFields(t *testing.T) {
	s := newTestServer(t)
	createProduct(t, s, "shirt")
	createProduct(t, s, "socks")
	createProduct(t, s, "tie")

	rec, doc := do(t, s, http.MethodGet,
		"/jsonadm/order/product?sort=-order.product.name&page[limit]=2&fields[order/product]=order.product.name", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, doc.Meta["total"])

	var items []ResourceObject
	require.NoError(t, json.Unmarshal(doc.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, map[string]any{"order.product.name": "tie"}, items[0].Attributes)
	assert.Equal(t, map[string]any{"order.product.name": "socks"}, items[1].Attributes)
}

func TestEmptyListRendersArray(t *testing.T) {
	s := newTestServer(t)
	rec, doc := do(t, s, http.MethodGet, "/jsonadm/order", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(doc.Data))
}

func TestErrorDocument(t *testing.T) {
	s := newTestServer(t)

	rec, doc := do(t, s, http.MethodGet, "/jsonadm/customer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, doc.Data)
	require.Len(t, doc.Errors, 1)
	assert.NotEmpty(t, doc.Errors[0].Title)
	assert.EqualValues(t, 0, doc.Meta["total"])

	rec, doc = do(t, s, http.MethodPost, "/jsonadm/order", `{"data": {"id": "1", "attributes": {}}}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, doc.Errors, 1)

	rec, _ = do(t, s, http.MethodPut, "/jsonadm/order/1", `{"data": {"attributes": {}}}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/jsonadm/order?page[offset]=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkDelete(t *testing.T) {
	s := newTestServer(t)
	p1 := createProduct(t, s, "shirt")
	p2 := createProduct(t, s, "socks")

	rec, doc := do(t, s, http.MethodDelete, "/jsonadm/order/product",
		`{"data": [{"id": "`+p1+`"}, {"id": "`+p2+`"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, doc.Meta["total"])
	assert.Empty(t, doc.Data)

	rec, doc = do(t, s, http.MethodGet, "/jsonadm/order/product", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, doc.Meta["total"])
}

func TestOptions(t *testing.T) {
	s := newTestServer(t)

	rec, doc := do(t, s, http.MethodOptions, "/jsonadm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, internal.AllowedMethods, rec.Header().Get("Allow"))
	assert.Equal(t, []any{"order", "order/lists", "order/type", "order/product"}, doc.Meta["resources"])
	assert.NotEmpty(t, doc.Meta["attributes"])
	assert.Empty(t, doc.Data)
}

func TestRenderIncludesEachResourceOnce(t *testing.T) {
	entity := func(typ, id string) *jsonadm.Entity {
		e := jsonadm.NewEntity(typ)
		e.ID = id
		return e
	}
	view := &jsonadm.ViewModel{
		Data:       []*jsonadm.Entity{entity("catalog", "1")},
		ChildItems: []*jsonadm.Entity{entity("catalog", "2"), entity("catalog", "3")},
		Included: []*jsonadm.Entity{
			entity("catalog", "3"),
			entity("catalog", "1"),
			entity("text", "3"),
			entity("text", "3"),
		},
	}

	doc := render(http.MethodGet, view)
	got := make([]string, len(doc.Included))
	for i, obj := range doc.Included {
		got[i] = obj.Type + ":" + obj.ID
	}
	assert.Equal(t, []string{"catalog:2", "catalog:3", "text:3"}, got)
}
