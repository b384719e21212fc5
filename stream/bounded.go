// Package stream provides the byte source decorators used for transfers:
// Bound carves a read-only window out of a seekable source and Track mirrors
// every byte read into side writers such as checksum accumulators.
package stream

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrWriteUnsupported is returned by Write on read-only streams.
	ErrWriteUnsupported = errors.New("stream: write not supported")
	// ErrOutOfRange is returned for windows or positions outside the source.
	ErrOutOfRange = errors.New("stream: out of range")
	// ErrNotSeekable is returned when a rewind needs a seeker that is missing.
	ErrNotSeekable = errors.New("stream: not seekable")
)

// Source is the minimal byte source a Bounded view wraps.
type Source = io.ReadSeeker

// Bounded is a read-only window [offset, offset+length) over a Source. It
// keeps the base positioned at offset+position and never reads past the
// window end. Reads are not safe for concurrent use.
type Bounded struct {
	base   Source
	offset int64
	length int64
	pos    int64
	owns   bool
	closed bool
}

// BoundOption configures Bound.
type BoundOption func(*Bounded)

// BoundOwnership controls whether Close also closes the base. Bounded views
// own their base by default.
func BoundOwnership(owns bool) BoundOption {
	return func(b *Bounded) { b.owns = owns }
}

// Bound returns a view of length bytes starting at offset in base.
func Bound(base Source, offset, length int64, opts ...BoundOption) (*Bounded, error) {
	if base == nil {
		return nil, errors.New("stream: nil base")
	}
	b := &Bounded{base: base, owns: true}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.Adjust(offset, length); err != nil {
		return nil, err
	}
	return b, nil
}

// Adjust moves the window and rewinds to its start. Multipart uploads use it
// to resend exactly the same part after a failed attempt.
func (b *Bounded) Adjust(offset, length int64) error {
	if offset < 0 || length < 0 {
		return fmt.Errorf("%w: offset %d length %d", ErrOutOfRange, offset, length)
	}
	size, err := b.base.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("stream: size base: %w", err)
	}
	if offset+length > size {
		return fmt.Errorf("%w: window %d+%d exceeds source size %d", ErrOutOfRange, offset, length, size)
	}
	if _, err := b.base.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("stream: seek base: %w", err)
	}
	b.offset, b.length, b.pos = offset, length, 0
	return nil
}

// Read reads at most up to the window end, then returns io.EOF.
func (b *Bounded) Read(p []byte) (int, error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	remaining := b.length - b.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := b.base.Read(p)
	b.pos += int64(n)
	if err == io.EOF && b.pos < b.length {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// Seek positions the view relative to the window. The resulting position
// must lie within [0, length].
func (b *Bounded) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = b.length + offset
	default:
		return 0, fmt.Errorf("stream: invalid whence %d", whence)
	}
	if pos < 0 || pos > b.length {
		return 0, fmt.Errorf("%w: position %d outside window of %d bytes", ErrOutOfRange, pos, b.length)
	}
	if _, err := b.base.Seek(b.offset+pos, io.SeekStart); err != nil {
		return 0, fmt.Errorf("stream: seek base: %w", err)
	}
	b.pos = pos
	return pos, nil
}

// Len returns the number of unread bytes in the window.
func (b *Bounded) Len() int64 { return b.length - b.pos }

// Size returns the window length.
func (b *Bounded) Size() int64 { return b.length }

// Offset returns the window start in base coordinates.
func (b *Bounded) Offset() int64 { return b.offset }

// Write always fails.
func (b *Bounded) Write([]byte) (int, error) { return 0, ErrWriteUnsupported }

// Close closes the base when the view owns it. It is idempotent.
func (b *Bounded) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if !b.owns {
		return nil
	}
	if c, ok := b.base.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
