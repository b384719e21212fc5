package stream

import (
	"fmt"
	"io"
)

// Resetter is implemented by trackers that can only return to their initial
// state, such as hash accumulators.
type Resetter interface {
	Reset()
}

// Tracker tees every successful read into its trackers.
type Tracker struct {
	r        io.Reader
	trackers []io.Writer
}

// Track wraps r so that the bytes of each Read are written to every tracker
// before being returned.
func Track(r io.Reader, trackers ...io.Writer) *Tracker {
	return &Tracker{r: r, trackers: trackers}
}

func (t *Tracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		for _, w := range t.trackers {
			if _, werr := w.Write(p[:n]); werr != nil {
				return n, fmt.Errorf("stream: tracker write: %w", werr)
			}
		}
	}
	return n, err
}

// Seek repositions the source and every tracker. Seekable trackers move to
// the same absolute position; Resetter trackers reset on a seek to 0. Any
// other tracker makes the seek fail.
func (t *Tracker) Seek(offset int64, whence int) (int64, error) {
	s, ok := t.r.(io.Seeker)
	if !ok {
		return 0, ErrNotSeekable
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	for _, w := range t.trackers {
		switch tw := w.(type) {
		case io.Seeker:
			if _, err := tw.Seek(pos, io.SeekStart); err != nil {
				return 0, fmt.Errorf("stream: seek tracker: %w", err)
			}
		case Resetter:
			if pos != 0 {
				return 0, fmt.Errorf("%w: tracker can only rewind to 0, not %d", ErrNotSeekable, pos)
			}
			tw.Reset()
		default:
			return 0, fmt.Errorf("%w: tracker %T", ErrNotSeekable, w)
		}
	}
	return pos, nil
}

// Close closes the source if it is a Closer.
func (t *Tracker) Close() error {
	if c, ok := t.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
