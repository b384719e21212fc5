package client

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/crc"
	"github.com/sagarc03/oss/filesystem"
	"github.com/sagarc03/oss/stream"
)

// UploadOptions tunes multipart uploads.
type UploadOptions struct {
	PartSize    int64
	Parallel    int
	ContentType string
	Metadata    map[string]string
	// DisableCRC skips both the per-part and the whole-object CRC-64 check.
	DisableCRC bool
}

// UploadedPart is one completed part.
type UploadedPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
	Size       int64  `xml:"-"`
	CRC64      uint64 `xml:"-"`
}

// UploadResult summarizes a completed multipart upload.
type UploadResult struct {
	ETag     string
	UploadID string
	Parts    int
	Size     int64
	CRC64    string
	// Verified is true when the combined part checksums matched the
	// service's whole-object checksum.
	Verified bool
}

type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

type completeMultipartUpload struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []UploadedPart `xml:"Part"`
}

type completeMultipartUploadResult struct {
	XMLName xml.Name `xml:"CompleteMultipartUploadResult"`
	ETag    string   `xml:"ETag"`
}

func (c *Client) uploadOptions(op string, optFns []func(*UploadOptions)) (UploadOptions, error) {
	opts := UploadOptions{
		PartSize:   DefaultPartSize,
		Parallel:   DefaultParallel,
		DisableCRC: c.cfg.DisableUploadCRC,
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

// Upload sends size bytes of src as a multipart upload. Every part is a
// bounded window over src, so a failed part is resent from its own start.
// Any failure aborts the upload.
func (c *Client) Upload(ctx context.Context, bucket, key string, src io.ReaderAt, size int64, optFns ...func(*UploadOptions)) (*UploadResult, error) {
	const op = "Upload"
	if err := requireObject(op, bucket, key); err != nil {
		return nil, err
	}
	if src == nil || size < 0 {
		return nil, oss.Argumentf(op, "source and a non-negative size are required")
	}
	opts, err := c.uploadOptions(op, optFns)
	if err != nil {
		return nil, err
	}
	crcOpt := func(o *Options) { o.DisableUploadCRC = opts.DisableCRC }

	uploadID, err := c.initiateMultipartUpload(ctx, bucket, key, opts, crcOpt)
	if err != nil {
		return nil, err
	}

	parts, err := c.uploadParts(ctx, bucket, key, uploadID, src, size, opts, crcOpt)
	if err != nil {
		c.abortMultipartUpload(ctx, bucket, key, uploadID)
		return nil, err
	}

	res, err := c.completeMultipartUpload(ctx, bucket, key, uploadID, parts, opts, crcOpt)
	if err != nil {
		c.abortMultipartUpload(ctx, bucket, key, uploadID)
		return nil, err
	}
	res.Size = size
	return res, nil
}

func (c *Client) initiateMultipartUpload(ctx context.Context, bucket, key string, opts UploadOptions, optFns ...func(*Options)) (string, error) {
	const op = "InitiateMultipartUpload"
	in := &oss.OperationInput{
		OpName: op,
		Method: http.MethodPost,
		Bucket: bucket,
		Key:    key,
	}
	in.SetParameter("uploads", "")
	in.SubResources = []string{"uploads"}
	if opts.ContentType != "" {
		in.Header().Set(oss.HeaderContentType, opts.ContentType)
	}
	setMetadata(in.Header(), opts.Metadata)

	out, err := c.Execute(ctx, in, optFns...)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Close() }()

	var doc initiateMultipartUploadResult
	if err := xml.NewDecoder(io.LimitReader(out.Body, maxErrorBody)).Decode(&doc); err != nil {
		return "", oss.NewError(oss.KindService, op, fmt.Errorf("decode response: %w", err))
	}
	if doc.UploadID == "" {
		return "", oss.NewError(oss.KindService, op, fmt.Errorf("response has no upload id"))
	}
	return doc.UploadID, nil
}

func (c *Client) uploadParts(ctx context.Context, bucket, key, uploadID string, src io.ReaderAt, size int64,
	opts UploadOptions, optFns ...func(*Options),
) ([]UploadedPart, error) {
	partSize := partSizeFor(size, opts.PartSize)
	count := int((size + partSize - 1) / partSize)
	if count == 0 {
		count = 1
	}
	parts := make([]UploadedPart, count)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i := range parts {
		off := int64(i) * partSize
		n := min(partSize, size-off)
		part := &parts[i]
		part.PartNumber = i + 1
		part.Size = n
		g.Go(func() error {
			body, err := stream.Bound(io.NewSectionReader(src, off, n), 0, n, stream.BoundOwnership(false))
			if err != nil {
				return oss.NewError(oss.KindRequest, "UploadPart", err)
			}
			etag, sum, err := c.uploadPart(gctx, bucket, key, uploadID, part.PartNumber, body, n, opts.DisableCRC, optFns...)
			if err != nil {
				return err
			}
			part.ETag, part.CRC64 = etag, sum
			c.logger.DebugContext(gctx, "uploaded part",
				"key", key,
				"part", part.PartNumber,
				"done", done.Add(1),
				"total", count,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// uploadPart sends one part and returns its ETag and CRC-64.
func (c *Client) uploadPart(ctx context.Context, bucket, key, uploadID string, number int, body *stream.Bounded, size int64,
	disableCRC bool, optFns ...func(*Options),
) (string, uint64, error) {
	const op = "UploadPart"
	in := &oss.OperationInput{
		OpName: op,
		Method: http.MethodPut,
		Bucket: bucket,
		Key:    key,
		Body:   body,
	}
	in.SetParameter("partNumber", strconv.Itoa(number))
	in.SetParameter("uploadId", uploadID)
	in.SubResources = []string{"partNumber", "uploadId"}
	in.Header().Set(oss.HeaderContentLength, strconv.FormatInt(size, 10))

	out, err := c.Execute(ctx, in, optFns...)
	if err != nil {
		return "", 0, err
	}
	_ = out.Close()

	var sum uint64
	if !disableCRC {
		// Execute already compared the header with what was sent.
		sum, err = c.partCRC(out.Headers.Get(oss.HeaderOSSCRC64), body)
		if err != nil {
			return "", 0, oss.NewError(oss.KindRequest, op, err)
		}
	}
	return out.Headers.Get(oss.HeaderETag), sum, nil
}

// partCRC trusts the service value when present and otherwise hashes the
// part locally.
func (c *Client) partCRC(header string, body *stream.Bounded) (uint64, error) {
	if header != "" {
		if v, err := crc.Parse(header); err == nil {
			return v, nil
		}
	}
	if err := body.Adjust(body.Offset(), body.Size()); err != nil {
		return 0, err
	}
	h := crc.NewECMA()
	if _, err := io.Copy(h, body); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

func (c *Client) completeMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []UploadedPart,
	opts UploadOptions, optFns ...func(*Options),
) (*UploadResult, error) {
	const op = "CompleteMultipartUpload"
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	payload, err := xml.Marshal(completeMultipartUpload{Parts: parts})
	if err != nil {
		return nil, oss.NewError(oss.KindRequest, op, fmt.Errorf("encode parts: %w", err))
	}
	in := &oss.OperationInput{
		OpName: op,
		Method: http.MethodPost,
		Bucket: bucket,
		Key:    key,
		Body:   bytes.NewReader(payload),
	}
	in.SetParameter("uploadId", uploadID)
	in.SubResources = []string{"uploadId"}
	in.Header().Set(oss.HeaderContentType, "application/xml")

	// The body is the part list, not object data, so its CRC says nothing
	// about the object.
	optFns = append(optFns, func(o *Options) { o.DisableUploadCRC = true })
	out, err := c.Execute(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Close() }()

	var doc completeMultipartUploadResult
	if err := xml.NewDecoder(io.LimitReader(out.Body, maxErrorBody)).Decode(&doc); err != nil && err != io.EOF {
		return nil, oss.NewError(oss.KindService, op, fmt.Errorf("decode response: %w", err))
	}

	res := &UploadResult{
		ETag:     doc.ETag,
		UploadID: uploadID,
		Parts:    len(parts),
	}
	if res.ETag == "" {
		res.ETag = out.Headers.Get(oss.HeaderETag)
	}
	if opts.DisableCRC {
		return res, nil
	}

	cparts := make([]crc.Part, len(parts))
	for i, p := range parts {
		cparts[i] = crc.Part{CRC: p.CRC64, Size: p.Size}
	}
	sum := crc.CombineParts(cparts)
	res.CRC64 = crc.Format(sum)

	if v := out.Headers.Get(oss.HeaderOSSCRC64); v != "" {
		server, err := crc.Parse(v)
		if err != nil {
			return nil, oss.NewError(oss.KindService, op, err)
		}
		if server != sum {
			c.observer.ObserveIntegrityFailure(op)
			return nil, oss.IntegrityError(op, sum, server)
		}
		res.Verified = true
	}
	return res, nil
}

// abortMultipartUpload releases the parts of a failed upload. It runs even
// when ctx is already canceled.
func (c *Client) abortMultipartUpload(ctx context.Context, bucket, key, uploadID string) {
	const op = "AbortMultipartUpload"
	ctx = context.WithoutCancel(ctx)
	in := &oss.OperationInput{
		OpName: op,
		Method: http.MethodDelete,
		Bucket: bucket,
		Key:    key,
	}
	in.SetParameter("uploadId", uploadID)
	in.SubResources = []string{"uploadId"}

	out, err := c.Execute(ctx, in)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to abort multipart upload",
			"bucket", bucket,
			"key", key,
			"upload_id", uploadID,
			"error", err,
		)
		return
	}
	_ = out.Close()
	c.logger.InfoContext(ctx, "aborted multipart upload", "bucket", bucket, "key", key, "upload_id", uploadID)
}

// UploadFile uploads the file at path with Upload.
func (c *Client) UploadFile(ctx context.Context, bucket, key, path string, optFns ...func(*UploadOptions)) (*UploadResult, error) {
	src, err := filesystem.Open(path)
	if err != nil {
		return nil, oss.NewError(oss.KindArgument, "UploadFile", err)
	}
	defer func() { _ = src.Close() }()

	if src.ContentType != "" {
		optFns = append([]func(*UploadOptions){func(o *UploadOptions) { o.ContentType = src.ContentType }}, optFns...)
	}
	return c.Upload(ctx, bucket, key, src, src.Size, optFns...)
}
