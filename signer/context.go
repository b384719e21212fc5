package signer

import (
	"context"
	"net/http"
	"time"

	"github.com/sagarc03/oss"
)

// SigningContext carries everything one signing call needs. It is built once
// per request by the caller, handed to exactly one Sign call and discarded.
// Sign fills StringToSign and, when they are zero, Time and Expiration.
type SigningContext struct {
	Product string
	Region  string
	Bucket  string
	Key     string

	Request     *http.Request
	Credentials *oss.Credentials

	// AuthMethodQuery selects query (presigned URL) placement instead of the
	// Authorization header.
	AuthMethodQuery bool

	// Time is the signing instant. Zero means now plus ClockOffset.
	Time        time.Time
	ClockOffset time.Duration

	// Expiration bounds query-mode signatures. Zero means Time plus
	// oss.DefaultPresignExpires.
	Expiration time.Time

	// AdditionalHeaders names extra headers to sign with the V4 scheme.
	AdditionalHeaders []string

	// SubResources names extra query parameters to canonicalize with the
	// legacy scheme.
	SubResources []string

	StringToSign string
}

// Signer authenticates the request held by a SigningContext in place.
type Signer interface {
	Sign(ctx context.Context, sc *SigningContext) error
}

// Nop leaves requests unsigned. It is used for anonymous access.
type Nop struct{}

// Sign does nothing.
func (Nop) Sign(context.Context, *SigningContext) error { return nil }

func (sc *SigningContext) signingTime() time.Time {
	if sc.Time.IsZero() {
		sc.Time = time.Now().Add(sc.ClockOffset)
	}
	return sc.Time.UTC()
}

func (sc *SigningContext) expiration() time.Time {
	if sc.Expiration.IsZero() {
		sc.Expiration = sc.signingTime().Add(oss.DefaultPresignExpires)
	}
	return sc.Expiration.UTC()
}

func validateCommon(sc *SigningContext) error {
	if sc == nil {
		return oss.Argumentf("sign", "signing context is required")
	}
	if sc.Request == nil {
		return oss.Argumentf("sign", "request is required")
	}
	if sc.Request.URL == nil {
		return oss.Argumentf("sign", "request url is required")
	}
	if sc.Credentials == nil {
		return oss.Argumentf("sign", "credentials are required")
	}
	if !sc.Credentials.HasKeys() {
		return oss.Argumentf("sign", "credentials have no access key id or secret")
	}
	return nil
}
