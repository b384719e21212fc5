package client

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/paginator"
)

// ListObjectsV2Request describes one ListObjectsV2 page.
type ListObjectsV2Request struct {
	Bucket            string
	Prefix            string
	Delimiter         string
	StartAfter        string
	ContinuationToken string
	MaxKeys           int
}

// ObjectProperties describes one listed object.
type ObjectProperties struct {
	Key          string    `xml:"Key"`
	ETag         string    `xml:"ETag"`
	Type         string    `xml:"Type"`
	StorageClass string    `xml:"StorageClass"`
	Size         int64     `xml:"Size"`
	LastModified time.Time `xml:"LastModified"`
}

// CommonPrefix is a key prefix rolled up by the delimiter.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// ListObjectsV2Result is one page of a listing.
type ListObjectsV2Result struct {
	XMLName               xml.Name           `xml:"ListBucketResult"`
	Name                  string             `xml:"Name"`
	Prefix                string             `xml:"Prefix"`
	StartAfter            string             `xml:"StartAfter"`
	MaxKeys               int                `xml:"MaxKeys"`
	Delimiter             string             `xml:"Delimiter"`
	IsTruncated           bool               `xml:"IsTruncated"`
	KeyCount              int                `xml:"KeyCount"`
	ContinuationToken     string             `xml:"ContinuationToken"`
	NextContinuationToken string             `xml:"NextContinuationToken"`
	Contents              []ObjectProperties `xml:"Contents"`
	CommonPrefixes        []CommonPrefix     `xml:"CommonPrefixes"`
}

// ListObjectsV2 fetches one page of objects in a bucket.
func (c *Client) ListObjectsV2(ctx context.Context, req *ListObjectsV2Request, optFns ...func(*Options)) (*ListObjectsV2Result, error) {
	const op = "ListObjectsV2"
	if req == nil {
		return nil, oss.Argumentf(op, "request is required")
	}
	if req.Bucket == "" {
		return nil, oss.NewError(oss.KindArgument, op, ErrBucketRequired)
	}

	in := &oss.OperationInput{
		OpName: op,
		Method: http.MethodGet,
		Bucket: req.Bucket,
	}
	in.SetParameter("list-type", "2")
	in.SetParameter("encoding-type", "url")
	if req.Prefix != "" {
		in.SetParameter("prefix", req.Prefix)
	}
	if req.Delimiter != "" {
		in.SetParameter("delimiter", req.Delimiter)
	}
	if req.StartAfter != "" {
		in.SetParameter("start-after", req.StartAfter)
	}
	if req.ContinuationToken != "" {
		in.SetParameter("continuation-token", req.ContinuationToken)
	}
	if req.MaxKeys > 0 {
		in.SetParameter("max-keys", strconv.Itoa(req.MaxKeys))
	}

	out, err := c.Execute(ctx, in, optFns...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Close() }()

	var res ListObjectsV2Result
	if err := xml.NewDecoder(out.Body).Decode(&res); err != nil {
		return nil, oss.NewError(oss.KindService, op, fmt.Errorf("decode response: %w", err))
	}
	if err := res.decodeKeys(); err != nil {
		return nil, oss.NewError(oss.KindService, op, err)
	}
	return &res, nil
}

// decodeKeys reverses encoding-type=url on every key-bearing field.
func (r *ListObjectsV2Result) decodeKeys() error {
	fields := []*string{&r.Prefix, &r.StartAfter, &r.Delimiter}
	for i := range r.Contents {
		fields = append(fields, &r.Contents[i].Key)
	}
	for i := range r.CommonPrefixes {
		fields = append(fields, &r.CommonPrefixes[i].Prefix)
	}
	for _, f := range fields {
		v, err := unescapeKey(*f)
		if err != nil {
			return fmt.Errorf("decode key %q: %w", *f, err)
		}
		*f = v
	}
	return nil
}

func unescapeKey(s string) (string, error) {
	if s == "" {
		return s, nil
	}
	return url.QueryUnescape(s)
}

// ListObjectsV2Paginator walks every page of a listing.
type ListObjectsV2Paginator = paginator.Paginator[*ListObjectsV2Request, *ListObjectsV2Result]

// NewListObjectsV2Paginator pages through a listing by following
// NextContinuationToken while the service reports truncation.
func (c *Client) NewListObjectsV2Paginator(req *ListObjectsV2Request, optFns ...func(*Options)) *ListObjectsV2Paginator {
	first := *req
	return paginator.New(&first,
		func(ctx context.Context, r *ListObjectsV2Request) (*ListObjectsV2Result, error) {
			return c.ListObjectsV2(ctx, r, optFns...)
		},
		func(r *ListObjectsV2Request, page *ListObjectsV2Result) (*ListObjectsV2Request, bool) {
			if !page.IsTruncated || page.NextContinuationToken == "" {
				return r, false
			}
			next := *r
			next.ContinuationToken = page.NextContinuationToken
			next.StartAfter = ""
			return &next, true
		},
	)
}
