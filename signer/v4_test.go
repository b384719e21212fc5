package signer_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/signer"
)

var v4SignTime = time.Unix(1702743657, 0).UTC()

func v4FixtureRequest(t *testing.T) *http.Request {
	t.Helper()
	q := url.Values{
		"param1":  {"value1"},
		"+param1": {"value3"},
		"|param1": {"value4"},
		"+param2": {""},
		"|param2": {""},
		"param2":  {""},
	}
	return newRequest(t, http.MethodPut, "http://bucket.oss-cn-hangzhou.aliyuncs.com/1234%2B-/123/1.txt?"+q.Encode())
}

func v4Context(req *http.Request, creds *oss.Credentials) *signer.SigningContext {
	return &signer.SigningContext{
		Product:     "oss",
		Region:      "cn-hangzhou",
		Bucket:      "bucket",
		Key:         "1234+-/123/1.txt",
		Request:     req,
		Credentials: creds,
		Time:        v4SignTime,
	}
}

func TestV4_SignHeaderAdditionalHeaders(t *testing.T) {
	req := v4FixtureRequest(t)
	req.Header.Set("x-oss-head1", "value")
	req.Header.Set("abc", "value")
	req.Header.Set("ZAbc", "value")
	req.Header.Set("XYZ", "value")
	req.Header.Set("content-type", "text/plain")
	req.Header.Set("x-oss-content-sha256", "UNSIGNED-PAYLOAD")

	sc := v4Context(req, testCreds)
	sc.AdditionalHeaders = []string{"ZAbc", "abc"}

	require.NoError(t, signer.NewV4().Sign(context.Background(), sc))

	assert.Equal(t, "20231216T162057Z", req.Header.Get("x-oss-date"))
	assert.Equal(t, "Sat, 16 Dec 2023 16:20:57 GMT", req.Header.Get("Date"))
	assert.Equal(t, "OSS4-HMAC-SHA256\n20231216T162057Z\n20231216/cn-hangzhou/oss/aliyun_v4_request\n"+
		"2f3a82c8e59ccd335fc344901a1dd11cfe5c796ee403edcd6e9a9ef82d37c7e3", sc.StringToSign)
	assert.Equal(t, "OSS4-HMAC-SHA256 Credential=ak/20231216/cn-hangzhou/oss/aliyun_v4_request,"+
		"AdditionalHeaders=abc;zabc,"+
		"Signature=c367c7e6363ca95b0de3f0d5bcb8cbc675ed8e6eb733ed846ddde4a4df7b241d",
		req.Header.Get("Authorization"))
}

func TestV4_SignHeaderSecurityToken(t *testing.T) {
	req := v4FixtureRequest(t)
	req.Header.Set("x-oss-head1", "value")
	req.Header.Set("content-type", "text/plain")

	sc := v4Context(req, &oss.Credentials{AccessKeyID: "ak", AccessKeySecret: "sk", SecurityToken: "token"})

	require.NoError(t, signer.NewV4().Sign(context.Background(), sc))

	assert.Equal(t, "token", req.Header.Get("x-oss-security-token"))
	assert.Equal(t, "UNSIGNED-PAYLOAD", req.Header.Get("x-oss-content-sha256"))
	assert.Equal(t, "OSS4-HMAC-SHA256 Credential=ak/20231216/cn-hangzhou/oss/aliyun_v4_request,"+
		"Signature=b721c591161c75a357e552ca729556b055b967b8a8f05b47e5269cd120d7b33b",
		req.Header.Get("Authorization"))
}

func TestV4_SignHeaderKeepsPayloadHash(t *testing.T) {
	req := newRequest(t, http.MethodPut, "http://b.example.com/k")
	req.Header.Set("x-oss-content-sha256", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")

	sc := &signer.SigningContext{
		Product: "oss", Region: "cn-hangzhou", Bucket: "b", Key: "k",
		Request: req, Credentials: testCreds, Time: v4SignTime,
	}
	require.NoError(t, signer.NewV4().Sign(context.Background(), sc))

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", req.Header.Get("x-oss-content-sha256"))
}

func TestV4_SignQuery(t *testing.T) {
	req := v4FixtureRequest(t)
	req.Header.Set("x-oss-head1", "value")
	req.Header.Set("abc", "value")
	req.Header.Set("ZAbc", "value")
	req.Header.Set("XYZ", "value")
	req.Header.Set("content-type", "application/octet-stream")
	before := req.Header.Clone()

	sc := v4Context(req, &oss.Credentials{AccessKeyID: "ak", AccessKeySecret: "sk", SecurityToken: "token"})
	sc.AuthMethodQuery = true
	sc.Expiration = v4SignTime.Add(time.Hour)
	sc.AdditionalHeaders = []string{"ZAbc", "abc"}

	require.NoError(t, signer.NewV4().Sign(context.Background(), sc))

	assert.Equal(t, before, req.Header, "query mode must not touch headers")

	q := req.URL.Query()
	assert.Equal(t, "OSS4-HMAC-SHA256", q.Get("x-oss-signature-version"))
	assert.Equal(t, "20231216T162057Z", q.Get("x-oss-date"))
	assert.Equal(t, "3600", q.Get("x-oss-expires"))
	assert.Equal(t, "ak/20231216/cn-hangzhou/oss/aliyun_v4_request", q.Get("x-oss-credential"))
	assert.Equal(t, "abc;zabc", q.Get("x-oss-additional-headers"))
	assert.Equal(t, "token", q.Get("x-oss-security-token"))
	assert.Equal(t, "e45c87fde433bea182906dfe107ce66f8d6cad7eb17f6ae654c0e567bdd976d3", q.Get("x-oss-signature"))
	assert.Contains(t, req.URL.RawQuery, "x-oss-credential=ak%2F20231216%2Fcn-hangzhou%2Foss%2Faliyun_v4_request")
	assert.True(t, strings.HasSuffix(req.URL.RawQuery, "&%7Cparam1=value4&%7Cparam2"), "keys sort before escaping: %s", req.URL.RawQuery)
}

func TestV4_SignQueryDefaultExpiration(t *testing.T) {
	req := newRequest(t, http.MethodGet, "http://b.example.com/k")
	sc := &signer.SigningContext{
		Product: "oss", Region: "cn-hangzhou", Bucket: "b", Key: "k",
		Request: req, Credentials: testCreds, Time: v4SignTime, AuthMethodQuery: true,
	}
	require.NoError(t, signer.NewV4().Sign(context.Background(), sc))

	assert.Equal(t, "900", req.URL.Query().Get("x-oss-expires"))
	assert.Equal(t, v4SignTime.Add(15*time.Minute), sc.Expiration)
}

func TestV4_SignQueryExpirationBounds(t *testing.T) {
	tests := []struct {
		name       string
		expiration time.Time
	}{
		{name: "in the past", expiration: v4SignTime.Add(-time.Second)},
		{name: "beyond seven days", expiration: v4SignTime.Add(7*24*time.Hour + time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodGet, "http://b.example.com/k")
			sc := &signer.SigningContext{
				Product: "oss", Region: "cn-hangzhou", Bucket: "b", Key: "k",
				Request: req, Credentials: testCreds, Time: v4SignTime,
				AuthMethodQuery: true, Expiration: tt.expiration,
			}
			err := signer.NewV4().Sign(context.Background(), sc)
			assert.ErrorIs(t, err, oss.ErrArgument)
		})
	}
}

func TestV4_Deterministic(t *testing.T) {
	s := signer.NewV4()
	sign := func() string {
		req := v4FixtureRequest(t)
		req.Header.Set("x-oss-head1", "value")
		sc := v4Context(req, testCreds)
		require.NoError(t, s.Sign(context.Background(), sc))
		return req.Header.Get("Authorization")
	}
	first := sign()
	assert.Equal(t, first, sign(), "cached signing key must give the same signature")
	assert.Equal(t, first, func() string {
		req := v4FixtureRequest(t)
		req.Header.Set("x-oss-head1", "value")
		sc := v4Context(req, testCreds)
		require.NoError(t, (&signer.V4{}).Sign(context.Background(), sc))
		return req.Header.Get("Authorization")
	}())
}

func TestV4_KeyCacheHonorsSecretRotation(t *testing.T) {
	s := signer.NewV4()
	sign := func(secret string) string {
		req := newRequest(t, http.MethodGet, "http://b.example.com/k")
		sc := &signer.SigningContext{
			Product: "oss", Region: "cn-hangzhou", Bucket: "b", Key: "k", Request: req,
			Credentials: &oss.Credentials{AccessKeyID: "ak", AccessKeySecret: secret},
			Time:        v4SignTime,
		}
		require.NoError(t, s.Sign(context.Background(), sc))
		return req.Header.Get("Authorization")
	}
	assert.NotEqual(t, sign("sk1"), sign("sk2"))
}

func TestAdditionalHeaderNames(t *testing.T) {
	headers := map[string][]string{
		"abc":          {"v"},
		"zabc":         {"v"},
		"content-type": {"text/plain"},
		"x-oss-meta-a": {"v"},
	}
	got := signer.AdditionalHeaderNames(headers, []string{"ZAbc", "abc", "Content-Type", "x-oss-meta-a", "missing", "ABC"})
	assert.Equal(t, []string{"abc", "zabc"}, got)
}

func TestBuildCanonicalRequestV4(t *testing.T) {
	headers := map[string][]string{
		"abc":                  {"value"},
		"zabc":                 {"value"},
		"xyz":                  {"value"},
		"content-type":         {"text/plain"},
		"x-oss-content-sha256": {"UNSIGNED-PAYLOAD"},
		"x-oss-date":           {"20231216T162057Z"},
		"x-oss-head1":          {"value"},
		"date":                 {"Sat, 16 Dec 2023 16:20:57 GMT"},
	}
	got := signer.BuildCanonicalRequestV4(http.MethodPut,
		signer.EscapePath("/bucket/1234+-/123/1.txt", true),
		"%2Bparam1=value3&%2Bparam2&param1=value1&param2&%7Cparam1=value4&%7Cparam2",
		headers, []string{"abc", "zabc"})

	want := strings.Join([]string{
		"PUT",
		"/bucket/1234%2B-/123/1.txt",
		"%2Bparam1=value3&%2Bparam2&param1=value1&param2&%7Cparam1=value4&%7Cparam2",
		"abc:value\ncontent-type:text/plain\nx-oss-content-sha256:UNSIGNED-PAYLOAD\nx-oss-date:20231216T162057Z\nx-oss-head1:value\nzabc:value\n",
		"abc;zabc",
		"UNSIGNED-PAYLOAD",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestEscapePath(t *testing.T) {
	tests := []struct {
		in        string
		keepSlash bool
		want      string
	}{
		{in: "abc-_.~XYZ019", want: "abc-_.~XYZ019"},
		{in: "a b+c", want: "a%20b%2Bc"},
		{in: "/dir/a b", keepSlash: true, want: "/dir/a%20b"},
		{in: "/dir/a", want: "%2Fdir%2Fa"},
		{in: "ü", want: "%C3%BC"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, signer.EscapePath(tt.in, tt.keepSlash))
		})
	}
}

func TestSignedHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	h.Set("x-oss-meta-a", "1")
	h.Set("abc", "v")
	h.Set("User-Agent", "x")

	got := signer.SignedHeaders(h, []string{"abc"})
	assert.Equal(t, "text/plain", got.Get("Content-Type"))
	assert.Equal(t, "1", got.Get("x-oss-meta-a"))
	assert.Equal(t, "v", got.Get("abc"))
	assert.Empty(t, got.Get("User-Agent"))
}
