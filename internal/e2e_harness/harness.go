package e2e_harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/lychee-technology/jsonadm/internal/migrations"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgImage    = "postgres:16"
	pgUser     = "jsonadm"
	pgPassword = "jsonadm"
	pgDatabase = "jsonadm"
)

// TestHarness owns a migrated Postgres container and the connections the E2E tests use:
// a database/sql handle for goose and a pgx pool for the store.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGDSN       string
	PGDB        *sql.DB
	Pool        *pgxpool.Pool
}

// StartPostgres starts the container, applies the migrations and opens the pool.
// Callers must call StopPostgres, also when StartPostgres fails half way.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			// the server restarts once after initdb, wait for the second ready line
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", fmt.Errorf("start postgres container: %w", err)
	}
	h.PGContainer = container

	endpoint, err := container.PortEndpoint(ctx, "5432/tcp", "")
	if err != nil {
		return "", fmt.Errorf("resolve postgres endpoint: %w", err)
	}
	h.PGDSN = fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, endpoint, pgDatabase)

	if h.PGDB, err = sql.Open("postgres", h.PGDSN); err != nil {
		return "", fmt.Errorf("open database: %w", err)
	}
	if err := h.PGDB.PingContext(ctx); err != nil {
		return "", fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Up(ctx, h.PGDB); err != nil {
		return "", err
	}

	if h.Pool, err = pgxpool.New(ctx, h.PGDSN); err != nil {
		return "", fmt.Errorf("create pool: %w", err)
	}
	return h.PGDSN, nil
}

// StopPostgres releases everything StartPostgres acquired.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	var errs []error
	if h.Pool != nil {
		h.Pool.Close()
		h.Pool = nil
	}
	if h.PGDB != nil {
		errs = append(errs, h.PGDB.Close())
		h.PGDB = nil
	}
	if h.PGContainer != nil {
		errs = append(errs, h.PGContainer.Terminate(ctx))
		h.PGContainer = nil
	}
	return errors.Join(errs...)
}
