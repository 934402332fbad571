package e2e_harness

import (
	"context"
	"fmt"

	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/internal"
)

// Definitions are the resources the E2E tests work with.
func Definitions() []jsonadm.ResourceDefinition {
	return []jsonadm.ResourceDefinition{
		{
			Name:  "order",
			Lists: true,
			Types: []jsonadm.TypeDefinition{
				{Code: "default", Domain: "order", Label: "Default"},
				{Code: "default", Domain: "order/product", Label: "Default"},
			},
		},
		{Name: "order/product"},
	}
}

// NewRegistry registers a Postgres manager for every definition on the harness pool
// and seeds their type codes.
func (h *TestHarness) NewRegistry(ctx context.Context) (*internal.Registry, error) {
	if h.Pool == nil {
		return nil, fmt.Errorf("postgres is not started")
	}
	store, err := internal.NewPostgresStore(h.Pool, jsonadm.DefaultConfig().Database.TableNames)
	if err != nil {
		return nil, err
	}

	registry := internal.NewRegistry()
	for _, def := range Definitions() {
		m, err := internal.NewPostgresManager(store, def)
		if err != nil {
			return nil, err
		}
		if err := m.SeedTypes(ctx); err != nil {
			return nil, err
		}
		registry.Register(m)
	}
	return registry, nil
}

// SeedProducts creates n products and returns their ids.
func SeedProducts(ctx context.Context, registry *internal.Registry, n int) ([]string, error) {
	m, err := registry.Manager(ctx, "order/product")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item := m.CreateItem()
		item.Set("order.product.name", fmt.Sprintf("product %d", i))
		item.Set("order.product.price", fmt.Sprintf("%d.00", 10*(i+1)))
		saved, err := m.SaveItem(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("seed product %d: %w", i, err)
		}
		ids = append(ids, saved.ID)
	}
	return ids, nil
}
