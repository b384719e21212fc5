package signer

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/sagarc03/oss"
)

// V1 signs requests with the legacy HMAC-SHA1 scheme.
type V1 struct{}

// NewV1 returns a legacy scheme signer.
func NewV1() *V1 {
	return &V1{}
}

// Sign authenticates sc.Request in place, either with the Authorization
// header or with query parameters when sc.AuthMethodQuery is set.
func (s *V1) Sign(_ context.Context, sc *SigningContext) error {
	if err := validateCommon(sc); err != nil {
		return err
	}
	if sc.Request.Header == nil {
		sc.Request.Header = make(http.Header)
	}
	if sc.AuthMethodQuery {
		return s.signQuery(sc)
	}
	return s.signHeader(sc)
}

func (s *V1) signHeader(sc *SigningContext) error {
	req := sc.Request
	creds := sc.Credentials
	t := NewSigningTime(sc.signingTime())

	date := t.HTTPDate()
	req.Header.Set(oss.HeaderDate, date)
	if creds.SecurityToken != "" {
		req.Header.Set(oss.HeaderOSSSecurityToken, creds.SecurityToken)
	}

	params := parseRawQuery(req.URL.RawQuery)
	resource := buildCanonicalResourceV1(sc.Bucket, sc.Key, params, sc.SubResources)
	sc.StringToSign = BuildStringToSignV1(req.Method, lowerHeaders(req.Header), date, resource)

	signature := hmacSHA1Base64(creds.AccessKeySecret, sc.StringToSign)
	req.Header.Set(oss.HeaderAuthorization, AuthorizationPrefixV1+" "+creds.AccessKeyID+":"+signature)
	return nil
}

func (s *V1) signQuery(sc *SigningContext) error {
	req := sc.Request
	creds := sc.Credentials
	expires := strconv.FormatInt(sc.expiration().Unix(), 10)

	params := parseRawQuery(req.URL.RawQuery)
	if creds.SecurityToken != "" {
		params = append(params, queryParam{key: QueryV1SecurityToken, value: creds.SecurityToken})
	}

	resource := buildCanonicalResourceV1(sc.Bucket, sc.Key, params, sc.SubResources)
	sc.StringToSign = BuildStringToSignV1(req.Method, lowerHeaders(req.Header), expires, resource)
	signature := hmacSHA1Base64(creds.AccessKeySecret, sc.StringToSign)

	params = append(params,
		queryParam{key: QueryV1AccessKeyID, value: creds.AccessKeyID},
		queryParam{key: QueryV1Expires, value: expires},
		queryParam{key: QueryV1Signature, value: signature},
	)
	req.URL.RawQuery = encodeQuery(params)
	return nil
}

// BuildStringToSignV1 assembles the legacy string to sign from lowercase
// keyed headers. date is the Date header in header mode and the Expires
// value in query mode.
func BuildStringToSignV1(method string, headers map[string][]string, date, resource string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(firstValue(headers, "content-md5"))
	b.WriteByte('\n')
	b.WriteString(firstValue(headers, "content-type"))
	b.WriteByte('\n')
	b.WriteString(date)
	b.WriteByte('\n')
	b.WriteString(BuildCanonicalHeadersV1(headers))
	b.WriteString(resource)
	return b.String()
}

// BuildCanonicalHeadersV1 renders every x-oss- header as "key:value\n",
// sorted by lowercase key.
func BuildCanonicalHeadersV1(headers map[string][]string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		if strings.HasPrefix(k, oss.HeaderOSSPrefix) {
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

// buildCanonicalResourceV1 renders /bucket/key followed by the signed query
// parameters. Parameters are signed when they carry the x-oss- prefix, are
// on the SignedParameters list or are named in subResources.
func buildCanonicalResourceV1(bucket, key string, params []queryParam, subResources []string) string {
	var b strings.Builder
	b.WriteByte('/')
	if bucket != "" {
		b.WriteString(bucket)
		b.WriteByte('/')
		b.WriteString(key)
	}

	sub := make(map[string]struct{}, len(subResources))
	for _, name := range subResources {
		sub[name] = struct{}{}
	}
	values := make(map[string]string)
	var keys []string
	for _, p := range params {
		if _, seen := values[p.key]; seen {
			continue
		}
		_, declared := sub[p.key]
		if !declared && !SignedParameters.IsValid(p.key) {
			continue
		}
		values[p.key] = p.value
		keys = append(keys, p.key)
	}
	if len(keys) == 0 {
		return b.String()
	}
	sort.Strings(keys)

	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		if v := values[k]; v != "" {
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}
