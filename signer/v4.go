package signer

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/sagarc03/oss"
)

// V4 signs requests with the OSS4-HMAC-SHA256 scheme. Derived signing keys
// are cached per region, product and day; a V4 is safe for concurrent use.
type V4 struct {
	cache *keyCache
}

// NewV4 returns a V4 signer with an empty key cache.
func NewV4() *V4 {
	return &V4{cache: newKeyCache()}
}

// Sign authenticates sc.Request in place. Header mode adds x-oss-date, Date,
// x-oss-content-sha256 and Authorization; query mode only rewrites the URL
// query and leaves headers untouched.
func (s *V4) Sign(_ context.Context, sc *SigningContext) error {
	if err := validateCommon(sc); err != nil {
		return err
	}
	if sc.Region == "" {
		return oss.Argumentf("sign", "region is required for v4 signing")
	}
	if sc.Product == "" {
		return oss.Argumentf("sign", "product is required for v4 signing")
	}
	if sc.Request.Header == nil {
		sc.Request.Header = make(http.Header)
	}
	if sc.AuthMethodQuery {
		return s.signQuery(sc)
	}
	return s.signHeader(sc)
}

func (s *V4) signHeader(sc *SigningContext) error {
	req := sc.Request
	creds := sc.Credentials
	t := NewSigningTime(sc.signingTime())

	req.Header.Set(oss.HeaderOSSDate, t.TimeFormat())
	req.Header.Set(oss.HeaderDate, t.HTTPDate())
	if creds.SecurityToken != "" {
		req.Header.Set(oss.HeaderOSSSecurityToken, creds.SecurityToken)
	}
	headers := lowerHeaders(req.Header)
	if _, ok := headers[oss.HeaderOSSContentSHA]; !ok {
		req.Header.Set(oss.HeaderOSSContentSHA, oss.UnsignedPayload)
		headers[oss.HeaderOSSContentSHA] = []string{oss.UnsignedPayload}
	}

	additional := AdditionalHeaderNames(headers, sc.AdditionalHeaders)
	scope := BuildCredentialScope(t, sc.Region, sc.Product)
	creq := BuildCanonicalRequestV4(req.Method, canonicalURIV4(sc.Bucket, sc.Key),
		encodeQuery(parseRawQuery(req.URL.RawQuery)), headers, additional)
	sc.StringToSign = BuildStringToSignV4(t, scope, creq)
	signature := s.signature(sc, t)

	var b strings.Builder
	b.WriteString(SigningAlgorithmV4)
	b.WriteString(" Credential=")
	b.WriteString(creds.AccessKeyID)
	b.WriteByte('/')
	b.WriteString(scope)
	if len(additional) > 0 {
		b.WriteString(",AdditionalHeaders=")
		b.WriteString(strings.Join(additional, ";"))
	}
	b.WriteString(",Signature=")
	b.WriteString(signature)
	req.Header.Set(oss.HeaderAuthorization, b.String())
	return nil
}

func (s *V4) signQuery(sc *SigningContext) error {
	req := sc.Request
	creds := sc.Credentials
	t := NewSigningTime(sc.signingTime())

	expires := sc.expiration().Sub(t.Time)
	if expires <= 0 {
		return oss.Argumentf("presign", "expiration %s is not after signing time %s", sc.Expiration.Format(TimeFormatV4), t.TimeFormat())
	}
	if expires > MaxPresignExpires {
		return oss.Argumentf("presign", "expiration exceeds %s", MaxPresignExpires)
	}

	headers := lowerHeaders(req.Header)
	additional := AdditionalHeaderNames(headers, sc.AdditionalHeaders)
	scope := BuildCredentialScope(t, sc.Region, sc.Product)

	params := parseRawQuery(req.URL.RawQuery)
	params = append(params,
		queryParam{key: QueryV4SignatureVersion, value: SigningAlgorithmV4},
		queryParam{key: QueryV4Date, value: t.TimeFormat()},
		queryParam{key: QueryV4Expires, value: strconv.FormatInt(int64(expires.Seconds()), 10)},
		queryParam{key: QueryV4Credential, value: creds.AccessKeyID + "/" + scope},
	)
	if len(additional) > 0 {
		params = append(params, queryParam{key: QueryV4AdditionalHeaders, value: strings.Join(additional, ";")})
	}
	if creds.SecurityToken != "" {
		params = append(params, queryParam{key: QueryV4SecurityToken, value: creds.SecurityToken})
	}

	creq := BuildCanonicalRequestV4(req.Method, canonicalURIV4(sc.Bucket, sc.Key), encodeQuery(params), headers, additional)
	sc.StringToSign = BuildStringToSignV4(t, scope, creq)

	params = append(params, queryParam{key: QueryV4Signature, value: s.signature(sc, t)})
	req.URL.RawQuery = encodeQuery(params)
	return nil
}

func (s *V4) signature(sc *SigningContext, t SigningTime) string {
	creds := sc.Credentials
	var key []byte
	if s.cache != nil {
		key = s.cache.derive(creds.AccessKeyID, creds.AccessKeySecret, sc.Region, sc.Product, t)
	} else {
		key = DeriveKeyV4(creds.AccessKeySecret, sc.Region, sc.Product, t)
	}
	return hexHMAC(key, sc.StringToSign)
}

func canonicalURIV4(bucket, key string) string {
	uri := "/"
	if bucket != "" {
		uri += bucket + "/" + key
	}
	return EscapePath(uri, true)
}

// BuildCredentialScope returns date/region/product/aliyun_v4_request.
func BuildCredentialScope(t SigningTime, region, product string) string {
	return strings.Join([]string{t.ShortTimeFormat(), region, product, V4RequestTerminator}, "/")
}

// AdditionalHeaderNames lowercases the declared names and keeps those that
// are present in headers and not signed by default, sorted and deduplicated.
func AdditionalHeaderNames(headers map[string][]string, declared []string) []string {
	seen := make(map[string]struct{}, len(declared))
	var names []string
	for _, name := range declared {
		lk := strings.ToLower(strings.TrimSpace(name))
		if lk == "" || DefaultSignedHeaders.IsValid(lk) {
			continue
		}
		if _, ok := headers[lk]; !ok {
			continue
		}
		if _, dup := seen[lk]; dup {
			continue
		}
		seen[lk] = struct{}{}
		names = append(names, lk)
	}
	sort.Strings(names)
	return names
}

// BuildCanonicalHeadersV4 renders the default signed headers plus the
// additional ones as "key:value\n", sorted by lowercase key.
func BuildCanonicalHeadersV4(headers map[string][]string, additional []string) string {
	extra := make(map[string]struct{}, len(additional))
	for _, name := range additional {
		extra[name] = struct{}{}
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		if _, ok := extra[k]; ok || DefaultSignedHeaders.IsValid(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(joinTrimmed(headers[k]))
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildCanonicalRequestV4 assembles the canonical request from lowercase
// keyed headers and an already encoded canonical query.
func BuildCanonicalRequestV4(method, uri, query string, headers map[string][]string, additional []string) string {
	payload := firstValue(headers, oss.HeaderOSSContentSHA)
	if payload == "" {
		payload = oss.UnsignedPayload
	}
	return strings.Join([]string{
		method,
		uri,
		query,
		BuildCanonicalHeadersV4(headers, additional),
		strings.Join(additional, ";"),
		payload,
	}, "\n")
}

// BuildStringToSignV4 assembles the V4 string to sign.
func BuildStringToSignV4(t SigningTime, scope, canonicalRequest string) string {
	return strings.Join([]string{
		SigningAlgorithmV4,
		t.TimeFormat(),
		scope,
		sha256Hex(canonicalRequest),
	}, "\n")
}

// SignedHeaders returns the subset of h a presigned request must still carry
// for its signature to verify: the default signed headers plus the declared
// additional ones.
func SignedHeaders(h http.Header, additional []string) http.Header {
	out := make(http.Header)
	extra := make(map[string]struct{}, len(additional))
	for _, name := range additional {
		extra[strings.ToLower(name)] = struct{}{}
	}
	for k, v := range h {
		lk := strings.ToLower(k)
		if _, ok := extra[lk]; ok || DefaultSignedHeaders.IsValid(lk) {
			out[http.CanonicalHeaderKey(k)] = append(out[http.CanonicalHeaderKey(k)], v...)
		}
	}
	return out
}
