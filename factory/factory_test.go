package factory

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/internal"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *jsonadm.Config {
	cfg := jsonadm.DefaultConfig()
	cfg.Resource.Definitions = []jsonadm.ResourceDefinition{
		{
			Name:  "product",
			Lists: true,
			Types: []jsonadm.TypeDefinition{{Code: "default", Domain: "product", Label: "Default"}},
		},
		{Name: "text"},
	}
	return cfg
}

func TestNewRegistryWithConfig_Memory(t *testing.T) {
	registry, err := NewRegistryWithConfig(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"product", "text"}, registry.Resources())

	m, err := registry.Manager(context.Background(), "product")
	require.NoError(t, err)
	assert.Equal(t, []string{"product", "product/lists", "product/type"}, m.ResourceTypes())

	tm, ok := jsonadm.TypeManagerOf(m)
	require.True(t, ok)
	_, err = tm.FindItem(context.Background(), "default", "product")
	assert.NoError(t, err)
}

func TestNewRegistryWithConfig_Invalid(t *testing.T) {
	_, err := NewRegistryWithConfig(context.Background(), nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Resource.Definitions = append(cfg.Resource.Definitions, jsonadm.ResourceDefinition{Name: "text"})
	_, err = NewRegistryWithConfig(context.Background(), cfg, nil)
	var cfgErr *jsonadm.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	cfg = testConfig()
	cfg.Resource.Store = jsonadm.StorePostgres
	cfg.Database.Database = "jsonadm"
	_, err = NewRegistryWithConfig(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "database pool")
}

func TestNewRegistryWithConfig_Postgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(true)

	cfg := testConfig()
	cfg.Resource.Store = jsonadm.StorePostgres
	cfg.Database.Database = "jsonadm"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT table_name FROM information_schema.tables")).
		WithArgs([]string{"jsonadm_entity", "jsonadm_list", "jsonadm_type"}).
		WillReturnRows(pgxmock.NewRows([]string{"table_name"}).
			AddRow("jsonadm_entity").AddRow("jsonadm_list").AddRow("jsonadm_type"))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "jsonadm_type"`)).
		WithArgs(pgxmock.AnyArg(), "product/type", "default", "product", "Default").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	registry, err := NewRegistryWithConfig(context.Background(), cfg, mock)
	require.NoError(t, err)
	assert.True(t, registry.Has("product"))
	assert.True(t, registry.Has("text"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRegistryWithConfig_MissingTables(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := testConfig()
	cfg.Resource.Store = jsonadm.StorePostgres
	cfg.Database.Database = "jsonadm"
	cfg.Database.TableNames.List = "admin.jsonadm_list"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT table_name FROM information_schema.tables")).
		WithArgs([]string{"jsonadm_entity", "jsonadm_list", "jsonadm_type"}).
		WillReturnRows(pgxmock.NewRows([]string{"table_name"}).AddRow("jsonadm_entity"))

	_, err = NewRegistryWithConfig(context.Background(), cfg, mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jsonadm_list, jsonadm_type")
}

func TestNewResourceHandlerWithConfig(t *testing.T) {
	h, err := NewResourceHandlerWithConfig(context.Background(), testConfig(), nil, nil)
	require.NoError(t, err)

	resp := h.Handle(context.Background(), http.MethodPost, &internal.Request{
		Resource: "text",
		Body:     []byte(`{"data": {"attributes": {"text.content": "hello"}}}`),
	})
	require.Equal(t, http.StatusCreated, resp.Status)

	resp = h.Handle(context.Background(), http.MethodGet, &internal.Request{Resource: "text"})
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1, resp.View.Total)
}
