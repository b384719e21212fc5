// Package checkpoint persists the progress of ranged downloads so an
// interrupted transfer can resume where it stopped.
//
// A Record is keyed by (bucket, key, destination). It remembers the object
// ETag and size the transfer started against; callers must discard a record
// when either no longer matches the object.
//
// Two backends are provided: SQLite (modernc.org/sqlite) and PostgreSQL
// (pgx). Connect picks one from a Config, runs migrations and validates the
// table schema.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no checkpoint exists for a transfer.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrInvalidRecord is returned when a record is missing its identity.
	ErrInvalidRecord = errors.New("invalid checkpoint record")
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "oss_checkpoints"

// Range is the progress of one byte range of a download.
type Range struct {
	Offset  int64  `json:"offset"`
	Size    int64  `json:"size"`
	Written int64  `json:"written"`
	CRC     uint64 `json:"crc"`
}

// Done reports whether the whole range has been written.
func (r Range) Done() bool { return r.Written >= r.Size }

// Record is the persisted state of one download.
type Record struct {
	ID          uuid.UUID
	Bucket      string
	Key         string
	Destination string
	TempPath    string
	ETag        string
	Size        int64
	PartSize    int64
	Ranges      []Range
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Written returns the number of bytes already on disk across all ranges.
func (r Record) Written() int64 {
	var n int64
	for _, rg := range r.Ranges {
		n += rg.Written
	}
	return n
}

// Matches reports whether the record was taken against the given object version.
func (r Record) Matches(etag string, size int64) bool {
	return r.ETag == etag && r.Size == size
}

func (r Record) validate() error {
	if r.Bucket == "" || r.Key == "" || r.Destination == "" {
		return fmt.Errorf("%w: bucket, key and destination are required", ErrInvalidRecord)
	}
	return nil
}

// Store loads and saves download checkpoints.
type Store interface {
	// Load returns the checkpoint for a transfer or ErrNotFound.
	Load(ctx context.Context, bucket, key, destination string) (Record, error)
	// Save inserts or replaces the checkpoint and returns it with ID and
	// timestamps filled in.
	Save(ctx context.Context, rec Record) (Record, error)
	// Delete removes the checkpoint. Deleting a missing one is not an error.
	Delete(ctx context.Context, bucket, key, destination string) error
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

func validateTableName(name string) error {
	if name == "" {
		return errors.New("validate table: table name cannot be empty")
	}
	if !IsValidTableName(name) {
		return fmt.Errorf("validate table: invalid table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", name)
	}
	return nil
}
