package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/signer"
)

// PresignResult is a URL that grants the signed request to whoever holds it.
type PresignResult struct {
	Method     string
	URL        string
	Expiration time.Time
	// SignedHeaders must be sent unchanged with the presigned request.
	SignedHeaders http.Header
}

// Presign signs in into a query-string URL valid until expiration. A zero
// expiration means fifteen minutes from now. Nothing is sent.
func (c *Client) Presign(ctx context.Context, in *oss.OperationInput, expiration time.Time) (*PresignResult, error) {
	if in == nil {
		return nil, oss.Argumentf("presign", "operation input is required")
	}
	op := "Presign"
	if in.OpName != "" {
		op = "Presign" + in.OpName
	}
	if err := validateInput(op, in); err != nil {
		return nil, err
	}

	creds, err := c.credentials.GetCredentials(ctx)
	if err != nil {
		return nil, oss.NewError(oss.KindArgument, op, fmt.Errorf("get credentials: %w", err))
	}
	if !creds.HasKeys() {
		return nil, oss.Argumentf(op, "presigning requires access keys")
	}

	now := c.now()
	if expiration.IsZero() {
		expiration = now.Add(oss.DefaultPresignExpires)
	}
	if !expiration.After(now) {
		return nil, oss.Argumentf(op, "expiration %s is in the past", expiration.Format(time.RFC3339))
	}

	u := c.requestURL(in.Bucket, in.Key, encodeParameters(in.Parameters))
	req, err := http.NewRequestWithContext(ctx, in.Method, u.String(), nil)
	if err != nil {
		return nil, oss.NewError(oss.KindRequest, op, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range in.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	sc := &signer.SigningContext{
		Product:           c.cfg.Product,
		Region:            c.cfg.Region,
		Bucket:            in.Bucket,
		Key:               in.Key,
		Request:           req,
		Credentials:       &creds,
		AuthMethodQuery:   true,
		Time:              now,
		Expiration:        expiration,
		AdditionalHeaders: c.cfg.AdditionalHeaders,
		SubResources:      in.SubResources,
	}
	if err := c.signer.Sign(ctx, sc); err != nil {
		return nil, err
	}

	return &PresignResult{
		Method:        in.Method,
		URL:           req.URL.String(),
		Expiration:    expiration,
		SignedHeaders: signer.SignedHeaders(req.Header, c.cfg.AdditionalHeaders),
	}, nil
}

// PresignObject presigns method on bucket/key for expires from now.
func (c *Client) PresignObject(ctx context.Context, method, bucket, key string, expires time.Duration) (*PresignResult, error) {
	if bucket == "" {
		return nil, oss.NewError(oss.KindArgument, "PresignObject", ErrBucketRequired)
	}
	if key == "" {
		return nil, oss.NewError(oss.KindArgument, "PresignObject", ErrKeyRequired)
	}
	var expiration time.Time
	if expires > 0 {
		expiration = c.now().Add(expires)
	}
	return c.Presign(ctx, &oss.OperationInput{
		OpName: "Object",
		Method: method,
		Bucket: bucket,
		Key:    key,
	}, expiration)
}
