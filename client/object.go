package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/crc"
)

// HeadObjectResult is the metadata returned by HeadObject.
type HeadObjectResult struct {
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	// CRC64 is the x-oss-hash-crc64ecma value verbatim, "" when absent.
	CRC64      string
	ObjectType string
	Headers    http.Header
	RequestID  string
}

// HeadObject fetches object metadata.
func (c *Client) HeadObject(ctx context.Context, bucket, key string, optFns ...func(*Options)) (*HeadObjectResult, error) {
	const op = "HeadObject"
	if err := requireObject(op, bucket, key); err != nil {
		return nil, err
	}

	out, err := c.Execute(ctx, &oss.OperationInput{
		OpName: op,
		Method: http.MethodHead,
		Bucket: bucket,
		Key:    key,
	}, optFns...)
	if err != nil {
		return nil, err
	}
	_ = out.Close()

	size, err := strconv.ParseInt(out.Headers.Get(oss.HeaderContentLength), 10, 64)
	if err != nil {
		return nil, oss.NewError(oss.KindService, op, fmt.Errorf("parse content length: %w", err))
	}
	res := &HeadObjectResult{
		Size:        size,
		ETag:        out.Headers.Get(oss.HeaderETag),
		ContentType: out.Headers.Get(oss.HeaderContentType),
		CRC64:       out.Headers.Get(oss.HeaderOSSCRC64),
		ObjectType:  out.Headers.Get(oss.HeaderOSSObjectType),
		Headers:     out.Headers,
		RequestID:   out.RequestID(),
	}
	if lm := out.Headers.Get("Last-Modified"); lm != "" {
		res.LastModified, _ = http.ParseTime(lm)
	}
	return res, nil
}

// Range selects bytes [Start, End] of an object. End -1 reads to the end.
type Range struct {
	Start int64
	End   int64
}

func (r Range) String() string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// GetObjectRequest describes a GetObject call.
type GetObjectRequest struct {
	Bucket  string
	Key     string
	Range   *Range
	IfMatch string
}

// GetObjectResult holds an open object body. Body must be closed.
type GetObjectResult struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
	ContentRange  string
	ETag          string
	CRC64         string
	Headers       http.Header
	RequestID     string
	Attempts      int
}

// GetObject opens an object for reading. A whole-object read verifies the
// CRC-64 of the body against the service header when the body hits EOF.
func (c *Client) GetObject(ctx context.Context, req *GetObjectRequest, optFns ...func(*Options)) (*GetObjectResult, error) {
	const op = "GetObject"
	if req == nil {
		return nil, oss.Argumentf(op, "request is required")
	}
	if err := requireObject(op, req.Bucket, req.Key); err != nil {
		return nil, err
	}

	in := &oss.OperationInput{
		OpName: op,
		Method: http.MethodGet,
		Bucket: req.Bucket,
		Key:    req.Key,
	}
	if req.Range != nil {
		if req.Range.Start < 0 || (req.Range.End >= 0 && req.Range.End < req.Range.Start) {
			return nil, oss.Argumentf(op, "invalid range %d-%d", req.Range.Start, req.Range.End)
		}
		in.Header().Set(oss.HeaderRange, req.Range.String())
	}
	if req.IfMatch != "" {
		in.Header().Set(oss.HeaderIfMatch, req.IfMatch)
	}

	out, err := c.Execute(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}

	res := &GetObjectResult{
		Body:          out.Body,
		ContentLength: -1,
		ContentType:   out.Headers.Get(oss.HeaderContentType),
		ContentRange:  out.Headers.Get(oss.HeaderContentRange),
		ETag:          out.Headers.Get(oss.HeaderETag),
		CRC64:         out.Headers.Get(oss.HeaderOSSCRC64),
		Headers:       out.Headers,
		RequestID:     out.RequestID(),
		Attempts:      out.Attempts,
	}
	if n, err := strconv.ParseInt(out.Headers.Get(oss.HeaderContentLength), 10, 64); err == nil {
		res.ContentLength = n
	}

	if req.Range == nil && out.StatusCode == http.StatusOK && !c.cfg.DisableDownloadCRC && res.CRC64 != "" {
		if server, err := crc.Parse(res.CRC64); err == nil {
			res.Body = &verifyingReader{
				rc:       out.Body,
				h:        crc.NewECMA(),
				server:   server,
				op:       op,
				observer: c.observer,
			}
		}
	}
	return res, nil
}

// verifyingReader checks the running CRC-64 once the body is exhausted.
type verifyingReader struct {
	rc       io.ReadCloser
	h        *crc.CRC64
	server   uint64
	op       string
	observer Observer
	once     sync.Once
	err      error
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	if n > 0 {
		v.h.Update(p[:n])
	}
	if errors.Is(err, io.EOF) {
		v.once.Do(func() {
			if got := v.h.Sum64(); got != v.server {
				v.err = oss.IntegrityError(v.op, got, v.server)
				v.observer.ObserveIntegrityFailure(v.op)
			}
		})
		if v.err != nil {
			return n, v.err
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.rc.Close()
}

// PutObjectRequest describes a PutObject call. A seekable Body is resent on
// retry; any other body is sent once.
type PutObjectRequest struct {
	Bucket        string
	Key           string
	Body          io.Reader
	ContentLength int64 // -1 or 0 with a seekable body means measure it
	ContentType   string
	Metadata      map[string]string
}

// PutObjectResult is returned by PutObject.
type PutObjectResult struct {
	ETag      string
	CRC64     string
	RequestID string
	Attempts  int
	// Verified is true when the body's CRC-64 was checked against CRC64.
	Verified bool
}

// PutObject uploads a single object.
func (c *Client) PutObject(ctx context.Context, req *PutObjectRequest, optFns ...func(*Options)) (*PutObjectResult, error) {
	const op = "PutObject"
	if req == nil {
		return nil, oss.Argumentf(op, "request is required")
	}
	if err := requireObject(op, req.Bucket, req.Key); err != nil {
		return nil, err
	}

	in := &oss.OperationInput{
		OpName: op,
		Method: http.MethodPut,
		Bucket: req.Bucket,
		Key:    req.Key,
		Body:   req.Body,
	}
	if req.ContentLength > 0 {
		in.Header().Set(oss.HeaderContentLength, strconv.FormatInt(req.ContentLength, 10))
	}
	if req.ContentType != "" {
		in.Header().Set(oss.HeaderContentType, req.ContentType)
	}
	setMetadata(in.Header(), req.Metadata)

	out, err := c.Execute(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	_ = out.Close()

	return &PutObjectResult{
		ETag:      out.Headers.Get(oss.HeaderETag),
		CRC64:     out.Headers.Get(oss.HeaderOSSCRC64),
		RequestID: out.RequestID(),
		Attempts:  out.Attempts,
		Verified:  out.CRCVerified,
	}, nil
}

// DeleteObject removes an object. Deleting a missing object succeeds.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string, optFns ...func(*Options)) error {
	const op = "DeleteObject"
	if err := requireObject(op, bucket, key); err != nil {
		return err
	}
	out, err := c.Execute(ctx, &oss.OperationInput{
		OpName: op,
		Method: http.MethodDelete,
		Bucket: bucket,
		Key:    key,
	}, optFns...)
	if err != nil {
		return err
	}
	return out.Close()
}

func requireObject(op, bucket, key string) error {
	if bucket == "" {
		return oss.NewError(oss.KindArgument, op, ErrBucketRequired)
	}
	if key == "" {
		return oss.NewError(oss.KindArgument, op, ErrKeyRequired)
	}
	return nil
}

func setMetadata(h http.Header, meta map[string]string) {
	for _, k := range sortedKeys(meta) {
		name := k
		if !strings.HasPrefix(strings.ToLower(name), "x-oss-meta-") {
			name = "x-oss-meta-" + name
		}
		h.Set(name, meta[k])
	}
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
