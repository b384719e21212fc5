// Package filesystem provides the local file side of transfers: download
// destinations that are written through a temp file and atomically renamed
// into place, and upload sources with content type detection.
package filesystem

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrCommitted is returned when a destination is used after Commit or Abort.
	ErrCommitted = errors.New("destination already finished")
	// ErrTempMissing is returned by Resume when the temp file is gone.
	ErrTempMissing = errors.New("temp file missing")
)

// Destination is a download target. Bytes go to a temp file beside the final
// path; Commit syncs it and renames it into place. The temp file lives in
// the same directory so the rename never crosses file systems.
type Destination struct {
	root     *os.Root
	dir      string
	name     string
	tmpName  string
	file     *os.File
	finished bool
}

// Create starts a new destination for path, creating intermediate
// directories as needed.
func Create(path string) (*Destination, error) {
	dir, name, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create intermediate directories: %w", err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open destination dir: %w", err)
	}

	tmpName := tmpFileName(name)
	f, err := root.OpenFile(tmpName, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		_ = root.Close()
		return nil, fmt.Errorf("could not open temp file: %w", err)
	}

	return &Destination{root: root, dir: dir, name: name, tmpName: tmpName, file: f}, nil
}

// Resume reopens the temp file of an interrupted download. tmpPath must be
// in the same directory as path.
func Resume(path, tmpPath string) (*Destination, error) {
	dir, name, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	tmpDir, tmpName := filepath.Split(tmpPath)
	if filepath.Clean(tmpDir) != dir {
		return nil, fmt.Errorf("resume: temp file %s is not beside %s", tmpPath, path)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open destination dir: %w", err)
	}

	f, err := root.OpenFile(tmpName, os.O_RDWR, 0)
	if err != nil {
		_ = root.Close()
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("resume %s: %w", tmpPath, ErrTempMissing)
		}
		return nil, fmt.Errorf("could not open temp file: %w", err)
	}

	return &Destination{root: root, dir: dir, name: name, tmpName: tmpName, file: f}, nil
}

// Path returns the final path of the download.
func (d *Destination) Path() string { return filepath.Join(d.dir, d.name) }

// TempPath returns the path of the temp file being written.
func (d *Destination) TempPath() string { return filepath.Join(d.dir, d.tmpName) }

// WriteAt writes p at offset off of the temp file. It is safe for
// concurrent use on disjoint ranges.
func (d *Destination) WriteAt(p []byte, off int64) (int, error) {
	if d.finished {
		return 0, ErrCommitted
	}
	return d.file.WriteAt(p, off)
}

// Truncate sets the temp file size, typically to the object size up front.
func (d *Destination) Truncate(size int64) error {
	if d.finished {
		return ErrCommitted
	}
	return d.file.Truncate(size)
}

// Commit flushes the temp file and renames it to the final path.
func (d *Destination) Commit() error {
	if d.finished {
		return ErrCommitted
	}
	d.finished = true
	defer d.closeRoot()

	if err := d.file.Sync(); err != nil {
		_ = d.file.Close()
		d.removeTemp()
		return fmt.Errorf("could not sync written file: %w", err)
	}
	if err := d.file.Close(); err != nil {
		d.removeTemp()
		return fmt.Errorf("could not close temp file: %w", err)
	}

	if err := d.root.Rename(d.tmpName, d.name); err != nil {
		d.removeTemp()
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Abort discards the temp file.
func (d *Destination) Abort() error {
	if d.finished {
		return nil
	}
	d.finished = true
	defer d.closeRoot()

	if err := d.file.Close(); err != nil {
		slog.Warn("failed to close tmp file", "err", err)
	}
	if err := d.root.Remove(d.tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove temp file: %w", err)
	}
	return nil
}

// Suspend closes the temp file but keeps it on disk so a later Resume can
// continue the download.
func (d *Destination) Suspend() error {
	if d.finished {
		return nil
	}
	d.finished = true
	defer d.closeRoot()

	if err := d.file.Sync(); err != nil {
		_ = d.file.Close()
		return fmt.Errorf("could not sync written file: %w", err)
	}
	return d.file.Close()
}

func (d *Destination) removeTemp() {
	if err := d.root.Remove(d.tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove tmp file", "err", err)
	}
}

func (d *Destination) closeRoot() {
	if err := d.root.Close(); err != nil {
		slog.Warn("failed to close destination dir", "err", err)
	}
}

func splitPath(path string) (string, string, error) {
	if path == "" || strings.HasSuffix(path, string(filepath.Separator)) {
		return "", "", fmt.Errorf("invalid destination path: %q", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("invalid destination path: %w", err)
	}
	return filepath.Dir(abs), filepath.Base(abs), nil
}

func tmpFileName(name string) string {
	return fmt.Sprintf(".%s.%s.part", name, uuid.New().String())
}

// Source is a local file opened for upload.
type Source struct {
	*os.File
	Size        int64
	ContentType string
}

var _ io.ReaderAt = (*Source)(nil)

// Open opens path for upload and detects its size and content type.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory", path)
	}

	return &Source{File: f, Size: info.Size(), ContentType: DetectContentType(path)}, nil
}

// DetectContentType guesses a content type from the file extension.
func DetectContentType(path string) string {
	ext := filepath.Ext(path)
	contentType := mime.TypeByExtension(ext)

	if contentType == "" {
		return "application/octet-stream"
	}

	return contentType
}
