package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config holds the configuration for connecting to a checkpoint backend.
type Config struct {
	// Type specifies the database type: "sqlite" or "postgres"
	Type string `mapstructure:"type" validate:"omitempty,oneof=sqlite postgres"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn"`
	// Table is the name of the checkpoint table
	Table string `mapstructure:"table"`
}

// Connect establishes a connection to the configured backend, runs
// migrations, validates the schema, and returns a Store.
// The returned cleanup function should be called to close the connection.
func Connect(ctx context.Context, cfg Config) (Store, func(), error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if err := validateTableName(table); err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	switch cfg.Type {
	case "sqlite":
		return connectSQLite(ctx, cfg.DSN, table)
	case "postgres":
		return connectPostgres(ctx, cfg.DSN, table)
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func connectSQLite(ctx context.Context, dsn, table string) (Store, func(), error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err = MigrateSQLite(ctx, db, table); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	if err = ValidateSQLiteSchema(ctx, db, table); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("validate sqlite schema: %w", err)
	}

	store, err := NewSQLiteStore(db, table)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create sqlite store: %w", err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return store, cleanup, nil
}

func connectPostgres(ctx context.Context, dsn, table string) (Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err = MigratePostgres(ctx, pool, table); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	if err = ValidatePostgresSchema(ctx, pool, table); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("validate postgres schema: %w", err)
	}

	store, err := NewPostgresStore(pool, table)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("create postgres store: %w", err)
	}

	return store, pool.Close, nil
}
