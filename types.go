package oss

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Wire names shared by the signer, the pipeline and the service.
const (
	HeaderAuthorization    = "Authorization"
	HeaderDate             = "Date"
	HeaderContentMD5       = "Content-MD5"
	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderRange            = "Range"
	HeaderContentRange     = "Content-Range"
	HeaderETag             = "ETag"
	HeaderIfMatch          = "If-Match"
	HeaderOSSDate          = "x-oss-date"
	HeaderOSSContentSHA    = "x-oss-content-sha256"
	HeaderOSSSecurityToken = "x-oss-security-token"
	HeaderOSSCRC64         = "x-oss-hash-crc64ecma"
	HeaderOSSRequestID     = "x-oss-request-id"
	HeaderOSSErr           = "x-oss-err"
	HeaderOSSEC            = "x-oss-ec"
	HeaderOSSObjectType    = "x-oss-object-type"
	HeaderOSSPrefix        = "x-oss-"
	UnsignedPayload        = "UNSIGNED-PAYLOAD"
	DefaultProduct         = "oss"
	DefaultPresignExpires  = 15 * time.Minute
)

// Credentials is an immutable access key set obtained from a
// CredentialsProvider for a single signing operation.
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
	SecurityToken   string
	Expires         *time.Time
}

// HasKeys reports whether both the access key id and secret are set.
func (c Credentials) HasKeys() bool {
	return c.AccessKeyID != "" && c.AccessKeySecret != ""
}

// IsExpired reports whether an expiration is set and already passed.
func (c Credentials) IsExpired() bool {
	return c.Expires != nil && !c.Expires.After(time.Now())
}

// CredentialsProvider supplies credentials. It is queried before every
// signing operation; any caching is the provider's own business.
type CredentialsProvider interface {
	GetCredentials(ctx context.Context) (Credentials, error)
}

// CredentialsProviderFunc adapts a function to CredentialsProvider.
type CredentialsProviderFunc func(ctx context.Context) (Credentials, error)

func (f CredentialsProviderFunc) GetCredentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

// OperationInput is the generic request envelope executed by the client.
// Empty Bucket or Key mean the request is not scoped to one.
type OperationInput struct {
	OpName       string
	Method       string
	Bucket       string
	Key          string
	Headers      http.Header
	Parameters   map[string]string
	SubResources []string
	Body         io.Reader
}

// Header returns the input headers, allocating them on first use.
func (in *OperationInput) Header() http.Header {
	if in.Headers == nil {
		in.Headers = make(http.Header)
	}
	return in.Headers
}

// SetParameter sets a query parameter, allocating the map on first use.
func (in *OperationInput) SetParameter(name, value string) {
	if in.Parameters == nil {
		in.Parameters = make(map[string]string)
	}
	in.Parameters[name] = value
}

// OperationOutput is the generic response envelope. Body must be closed by
// the caller when it is non-nil.
type OperationOutput struct {
	Input      *OperationInput
	StatusCode int
	Status     string
	Headers    http.Header
	Body       io.ReadCloser
	Attempts   int

	// CRCVerified is set when the request body's CRC-64 was compared with
	// the one the service returned, and they matched.
	CRCVerified bool
}

// RequestID returns the service-assigned request id.
func (out *OperationOutput) RequestID() string {
	if out == nil || out.Headers == nil {
		return ""
	}
	return out.Headers.Get(HeaderOSSRequestID)
}

// Close closes the body if there is one.
func (out *OperationOutput) Close() error {
	if out == nil || out.Body == nil {
		return nil
	}
	return out.Body.Close()
}
