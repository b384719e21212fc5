package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/checkpoint"
	"github.com/sagarc03/oss/crc"
	"github.com/sagarc03/oss/filesystem"
	"github.com/sagarc03/oss/retry"
	"github.com/sagarc03/oss/stream"
)

// Transfer sizing.
const (
	DefaultPartSize = 6 << 20
	DefaultParallel = 3
	MinPartSize     = 100 << 10
	MaxPartSize     = 5 << 30
	MaxParts        = 10000
)

// DownloadOptions tunes ranged downloads.
type DownloadOptions struct {
	PartSize int64
	Parallel int
	// DisableCRC skips the whole-object CRC-64 check. The server value is
	// still reported.
	DisableCRC bool
}

// DownloadResult summarizes a finished download.
type DownloadResult struct {
	Size int64
	ETag string
	// CRC64 is the checksum of the bytes written, in header form.
	CRC64 string
	// ServerCRC64 is the x-oss-hash-crc64ecma value verbatim.
	ServerCRC64 string
	// Verified is true when CRC64 was compared with ServerCRC64 and matched.
	Verified bool
	Attempts int
	Resumed  bool
}

func (c *Client) downloadOptions(op string, optFns []func(*DownloadOptions)) (DownloadOptions, error) {
	opts := DownloadOptions{
		PartSize:   DefaultPartSize,
		Parallel:   DefaultParallel,
		DisableCRC: c.cfg.DisableDownloadCRC,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PartSize < MinPartSize || opts.PartSize > MaxPartSize {
		return opts, oss.NewError(oss.KindArgument, op, fmt.Errorf("%w: %d", ErrInvalidPartSize, opts.PartSize))
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return opts, nil
}

// partSizeFor grows partSize until size fits in MaxParts parts.
func partSizeFor(size, partSize int64) int64 {
	if size > partSize*MaxParts {
		partSize = (size + MaxParts - 1) / MaxParts
	}
	return partSize
}

func planRanges(size, partSize int64) []checkpoint.Range {
	partSize = partSizeFor(size, partSize)
	ranges := make([]checkpoint.Range, 0, (size+partSize-1)/partSize)
	for off := int64(0); off < size; off += partSize {
		ranges = append(ranges, checkpoint.Range{Offset: off, Size: min(partSize, size-off)})
	}
	return ranges
}

// Download reads bucket/key into w with parallel ranged GETs pinned to the
// ETag seen by an initial HEAD. A failed range resumes from its last
// written byte. The combined CRC-64 of all ranges is compared with the
// object's checksum; on mismatch the whole object is fetched again, up to
// the retryer's attempt limit.
func (c *Client) Download(ctx context.Context, bucket, key string, w io.WriterAt, optFns ...func(*DownloadOptions)) (*DownloadResult, error) {
	const op = "Download"
	if err := requireObject(op, bucket, key); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, oss.Argumentf(op, "writer is required")
	}
	opts, err := c.downloadOptions(op, optFns)
	if err != nil {
		return nil, err
	}
	head, err := c.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, op, bucket, key, head, w, planRanges(head.Size, opts.PartSize), opts)
}

// DownloadFile downloads bucket/key to path through a temporary file that
// is renamed into place on success. With a checkpoint store configured an
// interrupted download keeps its temporary file and resumes on the next
// call for the same object version.
func (c *Client) DownloadFile(ctx context.Context, bucket, key, path string, optFns ...func(*DownloadOptions)) (*DownloadResult, error) {
	const op = "DownloadFile"
	if err := requireObject(op, bucket, key); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, oss.NewError(oss.KindArgument, op, ErrNoCheckpointPath)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, oss.NewError(oss.KindArgument, op, fmt.Errorf("resolve path: %w", err))
	}
	opts, err := c.downloadOptions(op, optFns)
	if err != nil {
		return nil, err
	}
	head, err := c.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	dest, rec, resumed, err := c.openDestination(ctx, op, bucket, key, absPath, head, opts)
	if err != nil {
		return nil, err
	}
	if resumed {
		c.logger.InfoContext(ctx, "resuming download",
			"bucket", bucket,
			"key", key,
			"path", absPath,
			"written", rec.Written(),
			"size", rec.Size,
		)
	}

	res, err := c.download(ctx, op, bucket, key, head, dest, rec.Ranges, opts)
	if err != nil {
		c.stopDownload(ctx, op, dest, rec, err)
		return nil, err
	}

	if err := dest.Commit(); err != nil {
		return nil, oss.NewError(oss.KindRequest, op, fmt.Errorf("commit %s: %w", absPath, err))
	}
	if c.checkpoints != nil {
		if err := c.checkpoints.Delete(context.WithoutCancel(ctx), bucket, key, absPath); err != nil {
			c.logger.WarnContext(ctx, "failed to delete checkpoint", "path", absPath, "error", err)
		}
	}
	res.Resumed = resumed
	return res, nil
}

// openDestination resumes a matching checkpoint or starts a new temp file.
// A checkpoint for another object version is discarded with its temp file.
func (c *Client) openDestination(ctx context.Context, op, bucket, key, absPath string,
	head *HeadObjectResult, opts DownloadOptions,
) (*filesystem.Destination, checkpoint.Record, bool, error) {
	if c.checkpoints != nil {
		rec, err := c.checkpoints.Load(ctx, bucket, key, absPath)
		switch {
		case err == nil && rec.Matches(head.ETag, head.Size) && rec.PartSize == opts.PartSize:
			dest, rerr := filesystem.Resume(absPath, rec.TempPath)
			if rerr == nil {
				return dest, rec, true, nil
			}
			c.logger.WarnContext(ctx, "discarding checkpoint", "path", absPath, "error", rerr)
			c.discardCheckpoint(ctx, rec)
		case err == nil:
			c.logger.InfoContext(ctx, "discarding stale checkpoint",
				"path", absPath,
				"etag", rec.ETag,
				"current_etag", head.ETag,
			)
			c.discardCheckpoint(ctx, rec)
		case errors.Is(err, checkpoint.ErrNotFound):
		default:
			return nil, checkpoint.Record{}, false, oss.NewError(oss.KindRequest, op, fmt.Errorf("load checkpoint: %w", err))
		}
	}

	dest, err := filesystem.Create(absPath)
	if err != nil {
		return nil, checkpoint.Record{}, false, oss.NewError(oss.KindRequest, op, fmt.Errorf("create %s: %w", absPath, err))
	}
	if err := dest.Truncate(head.Size); err != nil {
		_ = dest.Abort()
		return nil, checkpoint.Record{}, false, oss.NewError(oss.KindRequest, op, fmt.Errorf("allocate %s: %w", absPath, err))
	}
	rec := checkpoint.Record{
		Bucket:      bucket,
		Key:         key,
		Destination: absPath,
		TempPath:    dest.TempPath(),
		ETag:        head.ETag,
		Size:        head.Size,
		PartSize:    opts.PartSize,
		Ranges:      planRanges(head.Size, opts.PartSize),
	}
	return dest, rec, false, nil
}

func (c *Client) discardCheckpoint(ctx context.Context, rec checkpoint.Record) {
	if rec.TempPath != "" {
		if err := os.Remove(rec.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.WarnContext(ctx, "failed to remove temp file", "path", rec.TempPath, "error", err)
		}
	}
	if err := c.checkpoints.Delete(ctx, rec.Bucket, rec.Key, rec.Destination); err != nil {
		c.logger.WarnContext(ctx, "failed to delete checkpoint", "path", rec.Destination, "error", err)
	}
}

// stopDownload keeps the temp file and saves progress when the download can
// be resumed; integrity failures and runs without a store start over.
func (c *Client) stopDownload(ctx context.Context, op string, dest *filesystem.Destination, rec checkpoint.Record, cause error) {
	ctx = context.WithoutCancel(ctx)
	if c.checkpoints == nil || oss.KindOf(cause) == oss.KindIntegrity {
		if err := dest.Abort(); err != nil {
			c.logger.WarnContext(ctx, "failed to remove temp file", "op", op, "path", dest.TempPath(), "error", err)
		}
		if c.checkpoints != nil {
			if err := c.checkpoints.Delete(ctx, rec.Bucket, rec.Key, rec.Destination); err != nil {
				c.logger.WarnContext(ctx, "failed to delete checkpoint", "op", op, "error", err)
			}
		}
		return
	}

	if err := dest.Suspend(); err != nil {
		c.logger.WarnContext(ctx, "failed to suspend download", "op", op, "error", err)
		_ = dest.Abort()
		return
	}
	if _, err := c.checkpoints.Save(ctx, rec); err != nil {
		c.logger.WarnContext(ctx, "failed to save checkpoint", "op", op, "error", err)
		return
	}
	c.logger.InfoContext(ctx, "saved download checkpoint",
		"op", op,
		"path", rec.Destination,
		"written", rec.Written(),
		"size", rec.Size,
	)
}

func (c *Client) download(ctx context.Context, op, bucket, key string, head *HeadObjectResult,
	w io.WriterAt, ranges []checkpoint.Range, opts DownloadOptions,
) (*DownloadResult, error) {
	maxRounds := max(c.retryer.MaxAttempts(), 1)
	var attempts atomic.Int64

	for round := 0; ; round++ {
		if err := c.fetchRanges(ctx, op, bucket, key, head.ETag, w, ranges, opts.Parallel, &attempts); err != nil {
			return nil, oss.WithAttempts(err, op, int(attempts.Load()))
		}

		parts := make([]crc.Part, len(ranges))
		for i, rg := range ranges {
			parts[i] = crc.Part{CRC: rg.CRC, Size: rg.Size}
		}
		sum := crc.CombineParts(parts)

		res := &DownloadResult{
			Size:        head.Size,
			ETag:        head.ETag,
			CRC64:       crc.Format(sum),
			ServerCRC64: head.CRC64,
			Attempts:    int(attempts.Load()),
		}
		if opts.DisableCRC || head.CRC64 == "" {
			return res, nil
		}
		server, err := crc.Parse(head.CRC64)
		if err != nil {
			return nil, oss.NewError(oss.KindService, op, err)
		}
		if server == sum {
			res.Verified = true
			return res, nil
		}

		c.observer.ObserveIntegrityFailure(op)
		ierr := oss.IntegrityError(op, sum, server)
		if round+1 >= maxRounds {
			return nil, oss.WithAttempts(ierr, op, int(attempts.Load()))
		}
		c.logger.WarnContext(ctx, "downloaded object failed crc check, refetching",
			"op", op,
			"bucket", bucket,
			"key", key,
			"round", round+1,
		)
		for i := range ranges {
			ranges[i].Written, ranges[i].CRC = 0, 0
		}
		if err := retry.Sleep(ctx, c.retryer.RetryDelay(round, ierr)); err != nil {
			return nil, oss.WithAttempts(canceledError(op, err), op, int(attempts.Load()))
		}
	}
}

// fetchRanges completes every unfinished range. Each goroutine owns one
// element of ranges.
func (c *Client) fetchRanges(ctx context.Context, op, bucket, key, etag string, w io.WriterAt,
	ranges []checkpoint.Range, parallel int, attempts *atomic.Int64,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range ranges {
		if ranges[i].Done() {
			continue
		}
		rg := &ranges[i]
		g.Go(func() error {
			return c.fetchRange(gctx, op, bucket, key, etag, w, rg, attempts)
		})
	}
	return g.Wait()
}

// fetchRange streams one range into w. A body that breaks off mid-stream
// is requested again from the first missing byte.
func (c *Client) fetchRange(ctx context.Context, op, bucket, key, etag string, w io.WriterAt,
	rg *checkpoint.Range, attempts *atomic.Int64,
) error {
	maxAttempts := max(c.retryer.MaxAttempts(), 1)
	for attempt := 0; !rg.Done(); attempt++ {
		res, err := c.GetObject(ctx, &GetObjectRequest{
			Bucket:  bucket,
			Key:     key,
			Range:   &Range{Start: rg.Offset + rg.Written, End: rg.Offset + rg.Size - 1},
			IfMatch: etag,
		})
		if res != nil {
			attempts.Add(int64(res.Attempts))
		} else {
			var oe *oss.Error
			if errors.As(err, &oe) {
				attempts.Add(int64(oe.Attempts))
			}
		}
		if err != nil {
			return err
		}

		err = copyRange(op, w, rg, res.Body)
		_ = res.Body.Close()
		if err == nil && !rg.Done() {
			err = io.ErrUnexpectedEOF
		}
		if err == nil {
			return nil
		}

		var le *localError
		if errors.As(err, &le) {
			return le.err
		}
		err = transportError(ctx, op, err)
		if retry.IsCanceled(err) || attempt+1 >= maxAttempts || !c.retryer.IsErrorRetryable(err) {
			return err
		}
		c.logger.WarnContext(ctx, "range interrupted, resuming",
			"op", op,
			"key", key,
			"offset", rg.Offset,
			"written", rg.Written,
			"error", err,
		)
		if err := retry.Sleep(ctx, c.retryer.RetryDelay(attempt, err)); err != nil {
			return canceledError(op, err)
		}
	}
	return nil
}

// localError marks a failure on our side of the copy that must not be
// retried.
type localError struct{ err error }

func (e *localError) Error() string { return e.err.Error() }

// copyRange streams body into w from the range's next offset and extends
// the range's CRC-64 by what was written. When the local write fails or the
// body runs past the range, rg keeps its previous progress.
func copyRange(op string, w io.WriterAt, rg *checkpoint.Range, body io.Reader) error {
	start := rg.Offset + rg.Written
	acc := crc.New(rg.CRC)
	dst := &rangeSink{w: io.NewOffsetWriter(w, start), op: op}

	n, err := io.Copy(dst, stream.Track(io.LimitReader(body, rg.Size-rg.Written), acc))
	var le *localError
	if errors.As(err, &le) {
		return le
	}
	if err == nil && rg.Written+n == rg.Size {
		var extra [1]byte
		if k, _ := io.ReadFull(body, extra[:]); k > 0 {
			return &localError{oss.NewError(oss.KindService, op,
				fmt.Errorf("response overruns range at offset %d", rg.Offset))}
		}
	}
	rg.Written += n
	rg.CRC = acc.Sum64()
	return err
}

// rangeSink marks write failures as local so they are not retried.
type rangeSink struct {
	w  *io.OffsetWriter
	op string
}

func (s *rangeSink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, &localError{oss.NewError(oss.KindRequest, s.op, fmt.Errorf("write range: %w", err))}
	}
	return n, nil
}
