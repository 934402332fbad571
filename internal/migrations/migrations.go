// Package migrations holds the schema of the Postgres store.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var files embed.FS

// TableName is the goose version table.
const TableName = "jsonadm_schema_migrations"

const dir = "sql"

var setupOnce sync.Once
var setupErr error

// zapGooseLogger forwards goose output to the global zap logger.
type zapGooseLogger struct{}

func (zapGooseLogger) Printf(format string, v ...any) {
	zap.S().Infof(format, v...)
}

// Fatalf logs only; the error is returned to the caller.
func (zapGooseLogger) Fatalf(format string, v ...any) {
	zap.S().Errorf(format, v...)
}

func setup() error {
	setupOnce.Do(func() {
		goose.SetBaseFS(files)
		goose.SetLogger(zapGooseLogger{})
		goose.SetTableName(TableName)
		setupErr = goose.SetDialect("postgres")
	})
	return setupErr
}

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Down rolls back the latest migration.
func Down(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.DownContext(ctx, db, dir); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

// Status logs the state of every migration.
func Status(ctx context.Context, db *sql.DB) error {
	if err := setup(); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return goose.StatusContext(ctx, db, dir)
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	if err := setup(); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}
