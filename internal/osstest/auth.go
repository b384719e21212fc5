package osstest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/signer"
)

type authError struct {
	status     int
	code       string
	message    string
	serverTime time.Time
}

func denied(code, message string) *authError {
	return &authError{status: http.StatusForbidden, code: code, message: message}
}

// authMiddleware recomputes V4 signatures, header and query mode, with the
// server's copy of the secret. V1 requests are only checked for a known
// access key id.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.verify {
			if err := s.authenticate(r); err != nil {
				writeError(w, r, err.status, err.code, err.message, err.serverTime)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(r *http.Request) *authError {
	auth := r.Header.Get(oss.HeaderAuthorization)
	q := r.URL.Query()
	switch {
	case strings.HasPrefix(auth, signer.SigningAlgorithmV4+" "):
		return s.verifyV4Header(r, auth)
	case strings.HasPrefix(auth, signer.AuthorizationPrefixV1+" "):
		ak, _, _ := strings.Cut(strings.TrimPrefix(auth, signer.AuthorizationPrefixV1+" "), ":")
		return s.knownKey(ak)
	case q.Get(signer.QueryV4Signature) != "":
		return s.verifyV4Query(r, q)
	case q.Get(signer.QueryV1Signature) != "":
		expires, err := strconv.ParseInt(q.Get(signer.QueryV1Expires), 10, 64)
		if err != nil || s.now().Unix() > expires {
			return denied("AccessDenied", "Request has expired.")
		}
		return s.knownKey(q.Get(signer.QueryV1AccessKeyID))
	default:
		return denied("AccessDenied", "You have no right to access this object.")
	}
}

func (s *Server) knownKey(ak string) *authError {
	if _, ok := s.accessKeys[ak]; !ok {
		return denied("InvalidAccessKeyId", "The OSS Access Key Id you provided does not exist in our records.")
	}
	return nil
}

// parseCredential splits ak/date/region/product/aliyun_v4_request.
func (s *Server) parseCredential(credential string) (string, string, string, *authError) {
	ak, scope, _ := strings.Cut(credential, "/")
	parts := strings.Split(scope, "/")
	if len(parts) != 4 || parts[3] != signer.V4RequestTerminator {
		return "", "", "", &authError{status: http.StatusBadRequest, code: "InvalidArgument", message: "malformed credential"}
	}
	if parts[1] != s.region {
		return "", "", "", denied("SignatureDoesNotMatch", "region mismatch")
	}
	secret, ok := s.accessKeys[ak]
	if !ok {
		return "", "", "", s.knownKey(ak)
	}
	return ak, secret, parts[2], nil
}

func (s *Server) verifyV4Header(r *http.Request, auth string) *authError {
	fields := make(map[string]string)
	for _, f := range strings.Split(strings.TrimPrefix(auth, signer.SigningAlgorithmV4+" "), ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(f), "=")
		fields[k] = v
	}
	ak, secret, product, aerr := s.parseCredential(fields["Credential"])
	if aerr != nil {
		return aerr
	}

	t, err := time.Parse(signer.TimeFormatV4, r.Header.Get(oss.HeaderOSSDate))
	if err != nil {
		return denied("AccessDenied", "missing or malformed x-oss-date")
	}
	if s.maxSkew > 0 {
		now := s.now()
		if d := t.Sub(now); d > s.maxSkew || d < -s.maxSkew {
			return &authError{
				status:     http.StatusForbidden,
				code:       "RequestTimeTooSkewed",
				message:    "The difference between the request time and the current time is too large.",
				serverTime: now,
			}
		}
	}

	req := &http.Request{
		Method: r.Method,
		URL:    &url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery},
		Header: r.Header.Clone(),
	}
	req.Header.Del(oss.HeaderAuthorization)

	var additional []string
	if v := fields["AdditionalHeaders"]; v != "" {
		additional = strings.Split(v, ";")
	}
	bucket, key := splitPath(r)
	sc := &signer.SigningContext{
		Product: product,
		Region:  s.region,
		Bucket:  bucket,
		Key:     key,
		Request: req,
		Credentials: &oss.Credentials{
			AccessKeyID:     ak,
			AccessKeySecret: secret,
			SecurityToken:   r.Header.Get(oss.HeaderOSSSecurityToken),
		},
		Time:              t,
		AdditionalHeaders: additional,
	}
	if err := signer.NewV4().Sign(context.Background(), sc); err != nil {
		return denied("SignatureDoesNotMatch", err.Error())
	}
	if req.Header.Get(oss.HeaderAuthorization) != auth {
		return denied("SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided.")
	}
	return nil
}

var v4QueryParams = []string{
	signer.QueryV4SignatureVersion,
	signer.QueryV4Date,
	signer.QueryV4Expires,
	signer.QueryV4Credential,
	signer.QueryV4AdditionalHeaders,
	signer.QueryV4SecurityToken,
	signer.QueryV4Signature,
}

func (s *Server) verifyV4Query(r *http.Request, q url.Values) *authError {
	ak, secret, product, aerr := s.parseCredential(q.Get(signer.QueryV4Credential))
	if aerr != nil {
		return aerr
	}
	t, err := time.Parse(signer.TimeFormatV4, q.Get(signer.QueryV4Date))
	if err != nil {
		return denied("AccessDenied", "malformed x-oss-date")
	}
	expires, err := strconv.ParseInt(q.Get(signer.QueryV4Expires), 10, 64)
	if err != nil {
		return denied("AccessDenied", "malformed x-oss-expires")
	}
	expiration := t.Add(time.Duration(expires) * time.Second)
	if s.now().After(expiration) {
		return denied("AccessDenied", "Request has expired.")
	}

	rest := make(url.Values, len(q))
	for k, v := range q {
		rest[k] = v
	}
	for _, k := range v4QueryParams {
		rest.Del(k)
	}
	var additional []string
	if v := q.Get(signer.QueryV4AdditionalHeaders); v != "" {
		additional = strings.Split(v, ";")
	}

	req := &http.Request{
		Method: r.Method,
		URL:    &url.URL{Path: r.URL.Path, RawQuery: rest.Encode()},
		Header: r.Header.Clone(),
	}
	bucket, key := splitPath(r)
	sc := &signer.SigningContext{
		Product: product,
		Region:  s.region,
		Bucket:  bucket,
		Key:     key,
		Request: req,
		Credentials: &oss.Credentials{
			AccessKeyID:     ak,
			AccessKeySecret: secret,
			SecurityToken:   q.Get(signer.QueryV4SecurityToken),
		},
		AuthMethodQuery:   true,
		Time:              t,
		Expiration:        expiration,
		AdditionalHeaders: additional,
	}
	if err := signer.NewV4().Sign(context.Background(), sc); err != nil {
		return denied("SignatureDoesNotMatch", err.Error())
	}
	if req.URL.Query().Get(signer.QueryV4Signature) != q.Get(signer.QueryV4Signature) {
		return denied("SignatureDoesNotMatch", "The request signature we calculated does not match the signature you provided.")
	}
	return nil
}
