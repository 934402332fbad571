package e2e_harness

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE2EPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx := context.Background()
	h := &TestHarness{}
	defer h.StopPostgres(ctx)

	_, err := h.StartPostgres(ctx)
	require.NoError(t, err, "start postgres")

	registry, err := h.NewRegistry(ctx)
	require.NoError(t, err)
	productIDs, err := SeedProducts(ctx, registry, 6)
	require.NoError(t, err)

	handler, err := internal.NewResourceHandler(registry, jsonadm.DefaultConfig(), nil)
	require.NoError(t, err)

	refs := ""
	for i, id := range productIDs {
		if i > 0 {
			refs += ","
		}
		refs += `{"id":"` + id + `"}`
	}
	body := `{"data": {"attributes": {"order.status": "paid", "order.price": "240.00", "order.type": "default"},
		"relationships": {"order/product": {"data": [` + refs + `]}}}}`

	resp := handler.Handle(ctx, http.MethodPost, &internal.Request{Resource: "order", Body: []byte(body)})
	require.Equal(t, http.StatusCreated, resp.Status, "%v", resp.View.Errors)
	orderID := resp.View.Data[0].ID
	assert.NotEmpty(t, resp.View.Data[0].Attributes["order.typeid"])

	params := internal.ParseParams(url.Values{"include": {"order/product"}})
	resp = handler.Handle(ctx, http.MethodGet, &internal.Request{Resource: "order", ID: orderID, Params: params})
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.View.Errors)
	assert.Equal(t, "paid", resp.View.Data[0].Attributes["order.status"])
	assert.Len(t, resp.View.ListItems, 6)
	assert.Len(t, resp.View.Included, 6)

	params = internal.ParseParams(url.Values{
		"filter[>][order.product.price]": {"25"},
		"sort":                           {"-order.product.price"},
		"page[limit]":                    {"2"},
	})
	resp = handler.Handle(ctx, http.MethodGet, &internal.Request{Resource: "order/product", Params: params})
	require.Equal(t, http.StatusOK, resp.Status, "%v", resp.View.Errors)
	assert.Equal(t, 4, resp.View.Total)
	require.Len(t, resp.View.Data, 2)
	assert.Equal(t, "60.00", resp.View.Data[0].Attributes["order.product.price"])

	resp = handler.Handle(ctx, http.MethodDelete, &internal.Request{Resource: "order", ID: orderID})
	require.Equal(t, http.StatusOK, resp.Status)

	resp = handler.Handle(ctx, http.MethodGet, &internal.Request{Resource: "order", ID: orderID})
	assert.Equal(t, http.StatusNotFound, resp.Status)
}
