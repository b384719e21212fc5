package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// quoteIdentifier safely quotes a SQLite identifier
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// MigrateSQLite creates the checkpoint table and its index when missing.
func MigrateSQLite(ctx context.Context, db *sql.DB, table string) error {
	if err := validateTableName(table); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	quotedTable := quoteIdentifier(table)
	indexUpdatedAt := quoteIdentifier(fmt.Sprintf("idx_%s_updated_at", table))

	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL PRIMARY KEY,
			bucket TEXT NOT NULL,
			object_key TEXT NOT NULL,
			destination TEXT NOT NULL,
			temp_path TEXT NOT NULL,
			etag TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			part_size_bytes INTEGER NOT NULL,
			ranges TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (bucket, object_key, destination)
		)
	`, quotedTable)

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("migrate: create table: %w", err)
	}

	indexSQL := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s ON %s (updated_at)
	`, indexUpdatedAt, quotedTable)

	if _, err := db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("migrate: create index updated_at: %w", err)
	}

	return nil
}

// DropSQLite drops the checkpoint table.
func DropSQLite(ctx context.Context, db *sql.DB, table string) error {
	if err := validateTableName(table); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdentifier(table)))
	return err
}

// ValidateSQLiteSchema checks that the table exists with the expected columns.
func ValidateSQLiteSchema(ctx context.Context, db *sql.DB, table string) error {
	if err := validateTableName(table); err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	exists, err := sqliteTableExists(ctx, db, table)
	if err != nil {
		return fmt.Errorf("validate table schema: %w", err)
	}

	if !exists {
		return fmt.Errorf("validate table schema: table %s does not exist", table)
	}

	// SQLite uses PRAGMA table_info to get column information
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(table))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("validate table schema: query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actualColumns := make(map[string]columnInfo)
	for rows.Next() {
		var cid int
		var name, dataType string
		var notNull int
		var dfltValue sql.NullString
		var pk int

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("validate table schema: scan column: %w", err)
		}
		actualColumns[name] = columnInfo{
			name:       name,
			dataType:   strings.ToLower(dataType),
			isNullable: notNull == 0,
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("validate table schema: rows error: %w", err)
	}

	return compareColumns(table, sqliteCheckpointSchema, actualColumns)
}

func sqliteTableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var name string
	query := `SELECT name FROM sqlite_master WHERE type='table' AND name=?`
	err := db.QueryRowContext(ctx, query, table).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return true, nil
}

// SQLiteStore is a Store backed by a SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// NewSQLiteStore returns a store over an already migrated table.
func NewSQLiteStore(db *sql.DB, table string) (*SQLiteStore, error) {
	if err := validateTableName(table); err != nil {
		return nil, fmt.Errorf("new sqlite store: %w", err)
	}
	return &SQLiteStore{db: db, table: quoteIdentifier(table), now: time.Now}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, bucket, key, destination string) (Record, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT id, temp_path, etag, size_bytes, part_size_bytes, ranges, created_at, updated_at
		FROM %s
		WHERE bucket = ? AND object_key = ? AND destination = ?`, s.table)

	rec := Record{Bucket: bucket, Key: key, Destination: destination}
	var idStr, ranges, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, bucket, key, destination).Scan(
		&idStr, &rec.TempPath, &rec.ETag, &rec.Size, &rec.PartSize, &ranges, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load: %w", err)
	}

	rec.ID, err = uuid.Parse(idStr)
	if err != nil {
		return Record{}, fmt.Errorf("load: parse uuid: %w", err)
	}

	if err = json.Unmarshal([]byte(ranges), &rec.Ranges); err != nil {
		return Record{}, fmt.Errorf("load: decode ranges: %w", err)
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("load: parse created_at: %w", err)
	}

	rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("load: parse updated_at: %w", err)
	}

	return rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) (Record, error) {
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
	now := s.now().UTC().Format(time.RFC3339Nano)

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, bucket, object_key, destination, temp_path, etag,
			size_bytes, part_size_bytes, ranges, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket, object_key, destination) DO UPDATE SET
			temp_path = excluded.temp_path,
			etag = excluded.etag,
			size_bytes = excluded.size_bytes,
			part_size_bytes = excluded.part_size_bytes,
			ranges = excluded.ranges,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`, s.table)

	var idStr, createdAt, updatedAt string
	err = s.db.QueryRowContext(ctx, query,
		rec.ID.String(), rec.Bucket, rec.Key, rec.Destination, rec.TempPath, rec.ETag,
		rec.Size, rec.PartSize, string(ranges), now, now,
	).Scan(&idStr, &createdAt, &updatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("save: %w", err)
	}

	rec.ID, _ = uuid.Parse(idStr)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	return rec, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, bucket, key, destination string) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`DELETE FROM %s WHERE bucket = ? AND object_key = ? AND destination = ?`, s.table)

	if _, err := s.db.ExecContext(ctx, query, bucket, key, destination); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func nonNilRanges(r []Range) []Range {
	if r == nil {
		return []Range{}
	}
	return r
}
