package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/internal"
	"go.uber.org/zap"
)

// Pool is the part of *pgxpool.Pool the Postgres store needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewRegistryWithConfig creates a manager for every resource definition of config and
// registers it. The pool is only used, and required, for the postgres store.
//
// Usage:
//
//	config := jsonadm.DefaultConfig()
//	config.Resource.Definitions = []jsonadm.ResourceDefinition{{Name: "order", Lists: true}}
//	registry, err := factory.NewRegistryWithConfig(ctx, config, nil)
func NewRegistryWithConfig(ctx context.Context, config *jsonadm.Config, pool Pool) (*internal.Registry, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry := internal.NewRegistry()
	switch config.Resource.Store {
	case jsonadm.StoreMemory:
		store := internal.NewMemoryStore()
		for _, def := range config.Resource.Definitions {
			m, err := internal.NewMemoryManager(store, def)
			if err != nil {
				return nil, err
			}
			registry.Register(m)
		}

	case jsonadm.StorePostgres:
		if pool == nil {
			return nil, errors.New("the postgres store needs a database pool")
		}
		tables := config.Database.TableNames
		if err := verifyTables(ctx, pool, tables); err != nil {
			return nil, err
		}
		store, err := internal.NewPostgresStore(pool, tables)
		if err != nil {
			return nil, err
		}
		for _, def := range config.Resource.Definitions {
			m, err := internal.NewPostgresManager(store, def)
			if err != nil {
				return nil, err
			}
			if err := m.SeedTypes(ctx); err != nil {
				return nil, err
			}
			registry.Register(m)
		}

	default:
		return nil, fmt.Errorf("unknown store %q", config.Resource.Store)
	}

	zap.S().Infow("resource managers registered", "store", config.Resource.Store, "resources", registry.Resources())
	return registry, nil
}

// NewResourceHandlerWithConfig builds the registry of config and the handler serving it.
func NewResourceHandlerWithConfig(ctx context.Context, config *jsonadm.Config, pool Pool, logger *zap.Logger, opts ...internal.HandlerOption) (*internal.ResourceHandler, error) {
	registry, err := NewRegistryWithConfig(ctx, config, pool)
	if err != nil {
		return nil, err
	}
	return internal.NewResourceHandler(registry, config, logger, opts...)
}

// verifyTables checks that the store tables exist, e.g. after running the migrations.
func verifyTables(ctx context.Context, pool Pool, tables jsonadm.TableNames) error {
	want := []string{tableName(tables.Entity), tableName(tables.List), tableName(tables.Type)}

	rows, err := pool.Query(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_type = 'BASE TABLE' AND table_name = ANY($1)`, want)
	if err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table name: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}

	var missing []string
	for _, name := range want {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tables are missing in the database: %s", strings.Join(missing, ", "))
	}
	return nil
}

func tableName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
