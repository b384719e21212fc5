package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigratePostgres creates the checkpoint table and its index when missing.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if err := validateTableName(table); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	quotedTable := pgx.Identifier{table}.Sanitize()
	indexUpdatedAt := pgx.Identifier{fmt.Sprintf("idx_%s_updated_at", table)}.Sanitize()

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			bucket TEXT NOT NULL,
			object_key TEXT NOT NULL,
			destination TEXT NOT NULL,
			temp_path TEXT NOT NULL,
			etag TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			part_size_bytes BIGINT NOT NULL,
			ranges JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (bucket, object_key, destination)
		);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (updated_at);
	`,
		quotedTable,
		indexUpdatedAt, quotedTable,
	)

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// DropPostgres drops the checkpoint table.
func DropPostgres(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if err := validateTableName(table); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgx.Identifier{table}.Sanitize())
	_, err := pool.Exec(ctx, sql)
	return err
}

// ValidatePostgresSchema checks that the table exists with the expected columns.
func ValidatePostgresSchema(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if err := validateTableName(table); err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("validate table schema: check table exists: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate table schema: table %s does not exist", table)
	}

	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := pool.Query(ctx, query, table)
	if err != nil {
		return fmt.Errorf("validate table schema: query columns: %w", err)
	}
	defer rows.Close()

	actualColumns := make(map[string]columnInfo)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return fmt.Errorf("validate table schema: scan column: %w", err)
		}
		actualColumns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: nullable == "YES",
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("validate table schema: rows error: %w", err)
	}

	return compareColumns(table, postgresCheckpointSchema, actualColumns)
}

// PostgresStore is a Store backed by a PostgreSQL table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore returns a store over an already migrated table.
func NewPostgresStore(pool *pgxpool.Pool, table string) (*PostgresStore, error) {
	if err := validateTableName(table); err != nil {
		return nil, fmt.Errorf("new postgres store: %w", err)
	}
	return &PostgresStore{pool: pool, table: pgx.Identifier{table}.Sanitize()}, nil
}

// Ping verifies database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Load(ctx context.Context, bucket, key, destination string) (Record, error) {
	query := fmt.Sprintf(`
		SELECT id, temp_path, etag, size_bytes, part_size_bytes, ranges, created_at, updated_at
		FROM %s
		WHERE bucket = $1 AND object_key = $2 AND destination = $3
	`, s.table)

	rec := Record{Bucket: bucket, Key: key, Destination: destination}
	var ranges []byte

	err := s.pool.QueryRow(ctx, query, bucket, key, destination).Scan(
		&rec.ID, &rec.TempPath, &rec.ETag, &rec.Size, &rec.PartSize, &ranges, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load: %w", err)
	}

	if err = json.Unmarshal(ranges, &rec.Ranges); err != nil {
		return Record{}, fmt.Errorf("load: decode ranges: %w", err)
	}

	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) (Record, error) {
	if err := rec.validate(); err != nil {
		return Record{}, fmt.Errorf("save: %w", err)
	}

	ranges, err := json.Marshal(nonNilRanges(rec.Ranges))
	if err != nil {
		return Record{}, fmt.Errorf("save: encode ranges: %w", err)
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, bucket, object_key, destination, temp_path, etag,
			size_bytes, part_size_bytes, ranges)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (bucket, object_key, destination) DO UPDATE SET
			temp_path = EXCLUDED.temp_path,
			etag = EXCLUDED.etag,
			size_bytes = EXCLUDED.size_bytes,
			part_size_bytes = EXCLUDED.part_size_bytes,
			ranges = EXCLUDED.ranges,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, s.table)

	err = s.pool.QueryRow(ctx, query,
		rec.ID, rec.Bucket, rec.Key, rec.Destination, rec.TempPath, rec.ETag,
		rec.Size, rec.PartSize, string(ranges),
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("save: %w", err)
	}

	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, bucket, key, destination string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE bucket = $1 AND object_key = $2 AND destination = $3`, s.table)

	if _, err := s.pool.Exec(ctx, query, bucket, key, destination); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
