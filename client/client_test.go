package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/credentials"
	"github.com/sagarc03/oss/internal/osstest"
	"github.com/sagarc03/oss/metrics"
	"github.com/sagarc03/oss/retry"
	"github.com/sagarc03/oss/transport"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      client.Config
		endpoint string
		wantErr  error
	}{
		{
			name:     "default endpoint from region",
			cfg:      client.Config{Region: "cn-hangzhou"},
			endpoint: "https://oss-cn-hangzhou.aliyuncs.com",
		},
		{
			name:     "endpoint without scheme",
			cfg:      client.Config{Region: "cn-hangzhou", Endpoint: "oss.example.com/"},
			endpoint: "https://oss.example.com",
		},
		{
			name:     "v1 needs no region",
			cfg:      client.Config{Endpoint: "http://127.0.0.1:9000", SignatureVersion: client.SignatureV1},
			endpoint: "http://127.0.0.1:9000",
		},
		{
			name:    "no region or endpoint",
			cfg:     client.Config{},
			wantErr: client.ErrEndpointRequired,
		},
		{
			name:    "v4 without region",
			cfg:     client.Config{Endpoint: "http://127.0.0.1:9000"},
			wantErr: client.ErrRegionRequired,
		},
		{
			name:    "unknown signature version",
			cfg:     client.Config{Region: "cn-hangzhou", SignatureVersion: "v2"},
			wantErr: client.ErrUnknownSignatureVersion,
		},
		{
			name:    "unsupported scheme",
			cfg:     client.Config{Region: "cn-hangzhou", Endpoint: "ftp://oss.example.com"},
			wantErr: client.ErrInvalidEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := client.New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.endpoint, c.Endpoint().String())
		})
	}
}

func TestClient_Addressing(t *testing.T) {
	tests := []struct {
		name      string
		cfg       client.Config
		wantHost  string
		wantPath  string
		wantQuery string
	}{
		{
			name:     "virtual hosted",
			cfg:      client.Config{Region: "cn-hangzhou"},
			wantHost: "bucket.oss-cn-hangzhou.aliyuncs.com",
			wantPath: "/dir/a%20b%2Bc.txt",
		},
		{
			name:     "path style",
			cfg:      client.Config{Region: "cn-hangzhou", UsePathStyle: true},
			wantHost: "oss-cn-hangzhou.aliyuncs.com",
			wantPath: "/bucket/dir/a%20b%2Bc.txt",
		},
		{
			name:     "ip endpoint forces path style",
			cfg:      client.Config{Region: "cn-hangzhou", Endpoint: "http://10.0.0.1:8080"},
			wantHost: "10.0.0.1:8080",
			wantPath: "/bucket/dir/a%20b%2Bc.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *http.Request
			hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				got = r
				return okResponse(r), nil
			})}
			c, err := client.New(tt.cfg,
				client.WithHTTPClient(hc),
				client.WithCredentialsProvider(credentials.Anonymous{}),
			)
			require.NoError(t, err)

			in := &oss.OperationInput{Method: http.MethodGet, Bucket: "bucket", Key: "dir/a b+c.txt"}
			in.SetParameter("versionId", "v 1")
			in.SetParameter("acl", "")
			out, err := c.Execute(context.Background(), in)
			require.NoError(t, err)
			defer func() { _ = out.Close() }()

			require.NotNil(t, got)
			assert.Equal(t, tt.wantHost, got.URL.Host)
			assert.Equal(t, tt.wantPath, got.URL.EscapedPath())
			assert.Equal(t, "acl&versionId=v%201", got.URL.RawQuery)
			assert.Empty(t, got.Header.Get(oss.HeaderAuthorization), "anonymous requests are unsigned")
			assert.Equal(t, 1, out.Attempts)
		})
	}
}

func TestExecute_Validation(t *testing.T) {
	c, err := client.New(client.Config{Region: "cn-hangzhou"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Execute(ctx, nil)
	assert.ErrorIs(t, err, oss.ErrArgument)

	_, err = c.Execute(ctx, &oss.OperationInput{Bucket: "b"})
	assert.ErrorIs(t, err, client.ErrMethodRequired)

	_, err = c.Execute(ctx, &oss.OperationInput{Method: http.MethodGet, Key: "k"})
	assert.ErrorIs(t, err, client.ErrBucketRequired)
	assert.Equal(t, oss.KindArgument, oss.KindOf(err))
}

func TestExecute_SignsV4(t *testing.T) {
	srv := osstest.New(t)
	c := newTestClient(t, srv)

	_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
		Bucket:      testBucket,
		Key:         "dir/a b+c.txt",
		Body:        strings.NewReader("hello"),
		ContentType: "text/plain",
		Metadata:    map[string]string{"owner": "me"},
	})
	require.NoError(t, err)

	got, ok := srv.Object(testBucket, "dir/a b+c.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].Header.Get(oss.HeaderAuthorization), "OSS4-HMAC-SHA256 Credential="+osstest.DefaultAccessKey+"/"))
	assert.Equal(t, "me", reqs[0].Header.Get("x-oss-meta-owner"))
}

func TestExecute_WrongSecretIsRejected(t *testing.T) {
	srv := osstest.New(t)
	c := newTestClient(t, srv,
		client.WithCredentialsProvider(credentials.Static(osstest.DefaultAccessKey, "wrong", "")),
	)

	_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
		Bucket: testBucket,
		Key:    "k",
		Body:   strings.NewReader("x"),
	})
	require.Error(t, err)

	var oe *oss.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "SignatureDoesNotMatch", oe.Code)
	assert.Equal(t, http.StatusForbidden, oe.StatusCode)
	assert.Equal(t, 1, oe.Attempts)
}

func TestExecute_SignsV1(t *testing.T) {
	srv := osstest.New(t)
	c := newTestClientWithConfig(t, client.Config{
		Endpoint:         srv.URL,
		SignatureVersion: client.SignatureV1,
	})

	_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
		Bucket: testBucket,
		Key:    "v1.txt",
		Body:   strings.NewReader("legacy"),
	})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasPrefix(reqs[0].Header.Get(oss.HeaderAuthorization), "OSS "+osstest.DefaultAccessKey+":"))
}

func TestExecute_Retries(t *testing.T) {
	t.Run("retryable status then success", func(t *testing.T) {
		srv := osstest.New(t)
		obs := newRecordingObserver()
		c := newTestClient(t, srv, client.WithObserver(obs))

		srv.FailNext(2, http.StatusServiceUnavailable, "ServiceUnavailable")
		res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "retry.txt",
			Body:   bytes.NewReader([]byte("payload")),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, 2, obs.count(obs.retries, "PutObject"))
		assert.Equal(t, 3, obs.count(obs.attempts, "PutObject"))

		got, _ := srv.Object(testBucket, "retry.txt")
		assert.Equal(t, "payload", string(got), "body is resent from its start")
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		srv.FailNext(10, http.StatusInternalServerError, "InternalError")
		_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "k",
			Body:   strings.NewReader("x"),
		})

		var oe *oss.Error
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, oss.KindService, oe.Kind)
		assert.Equal(t, "InternalError", oe.Code)
		assert.Equal(t, 3, oe.Attempts)
		assert.NotEmpty(t, oe.RequestID)
		assert.Equal(t, "0000-00000000", oe.EC)
		assert.Equal(t, 3, srv.CountRequests(http.MethodPut))
	})

	t.Run("non retryable status", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		srv.FailNext(1, http.StatusForbidden, "AccessDenied")
		_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "k",
			Body:   strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, oss.ErrService)
		assert.Equal(t, 1, srv.CountRequests(http.MethodPut))
	})

	t.Run("unseekable body is sent once", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		srv.FailNext(1, http.StatusServiceUnavailable, "ServiceUnavailable")
		_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket:        testBucket,
			Key:           "stream.txt",
			Body:          onlyReader{strings.NewReader("streamed")},
			ContentLength: 8,
		})
		require.Error(t, err)
		assert.Equal(t, 1, srv.CountRequests(http.MethodPut))
	})

	t.Run("metrics observer", func(t *testing.T) {
		srv := osstest.New(t)
		reg := prometheus.NewRegistry()
		c := newTestClient(t, srv, client.WithObserver(metrics.NewClientMetrics(reg)))

		srv.FailNext(1, http.StatusServiceUnavailable, "ServiceUnavailable")
		_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "k",
			Body:   strings.NewReader("x"),
		})
		require.NoError(t, err)

		count, err := testutil.GatherAndCount(reg, "oss_client_attempts_total")
		require.NoError(t, err)
		assert.Equal(t, 2, count, "one ok series and one error series")
	})
}

func TestExecute_ClockSkewIsCorrected(t *testing.T) {
	serverNow := func() time.Time { return time.Now().Add(time.Hour) }
	srv := osstest.New(t, osstest.WithClock(serverNow), osstest.WithMaxSkew(15*time.Minute))
	c := newTestClient(t, srv)

	res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
		Bucket: testBucket,
		Key:    "skew.txt",
		Body:   strings.NewReader("tick"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestExecute_Cancellation(t *testing.T) {
	t.Run("canceled before sending", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.HeadObject(ctx, testBucket, "k")
		assert.ErrorIs(t, err, oss.ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, srv.Requests())
	})

	t.Run("canceled during backoff", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv, client.WithRetryer(retry.NewStandard(
			retry.WithBackoff(retry.NewFixed(time.Hour)),
		)))

		srv.FailNext(1, http.StatusServiceUnavailable, "ServiceUnavailable")
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := c.PutObject(ctx, &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "k",
			Body:   strings.NewReader("x"),
		})
		assert.Equal(t, oss.KindCanceled, oss.KindOf(err))
		assert.Less(t, time.Since(start), 10*time.Second)
	})
}

func TestExecute_UploadCRC(t *testing.T) {
	t.Run("mismatch is retried", func(t *testing.T) {
		srv := osstest.New(t)
		obs := newRecordingObserver()
		c := newTestClient(t, srv, client.WithObserver(obs))

		srv.CorruptCRC(1)
		res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "crc.txt",
			Body:   strings.NewReader("checked"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, 1, obs.count(obs.integrity, "PutObject"))
	})

	t.Run("persistent mismatch fails", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		srv.CorruptCRC(10)
		_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "crc.txt",
			Body:   strings.NewReader("checked"),
		})
		assert.ErrorIs(t, err, oss.ErrIntegrity)
		assert.Contains(t, err.Error(), "after 3 attempts")
	})

	t.Run("disabled", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		srv.CorruptCRC(1)
		res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "crc.txt",
			Body:   strings.NewReader("checked"),
		}, func(o *client.Options) { o.DisableUploadCRC = true })
		require.NoError(t, err)
		assert.Equal(t, 1, res.Attempts)
	})
}

func TestExecute_EarlyErrorResponseDoesNotRaceRewind(t *testing.T) {
	// Answering before the body is read leaves the transport writing it
	// while the next attempt rewinds the same reader. Run with -race.
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := newTestClientWithConfig(t, client.Config{Region: osstest.DefaultRegion, Endpoint: srv.URL})
	body := bytes.NewReader(payload(16 << 20))
	_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
		Bucket: testBucket,
		Key:    "big.bin",
		Body:   body,
	})

	var oe *oss.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 3, oe.Attempts)
	assert.Equal(t, int32(3), hits.Load())

	// The caller owns the reader again once PutObject returns
	_, err = body.Seek(0, io.SeekStart)
	require.NoError(t, err)
	n, err := io.Copy(io.Discard, body)
	require.NoError(t, err)
	assert.Equal(t, int64(16<<20), n)
}

func TestExecute_TimeoutIsRetried(t *testing.T) {
	cfg := func(srv *osstest.Server) client.Config {
		return client.Config{
			Region:    osstest.DefaultRegion,
			Endpoint:  srv.URL,
			Transport: transport.Config{ReadWriteTimeout: 100 * time.Millisecond},
		}
	}

	t.Run("resent after timeout", func(t *testing.T) {
		srv := osstest.New(t)
		obs := newRecordingObserver()
		c := newTestClientWithConfig(t, cfg(srv), client.WithObserver(obs))

		srv.StallNext(1, time.Second)
		res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "slow.txt",
			Body:   strings.NewReader("eventually"),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
		assert.True(t, res.Verified)
		assert.Equal(t, 1, obs.count(obs.retries, "PutObject"))

		got, ok := srv.Object(testBucket, "slow.txt")
		require.True(t, ok)
		assert.Equal(t, "eventually", string(got))

		reqs := srv.Requests()
		require.Len(t, reqs, 2)
		assert.NotEmpty(t, reqs[1].Header.Get(oss.HeaderAuthorization), "second attempt is signed again")
	})

	t.Run("not retried", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClientWithConfig(t, cfg(srv), client.WithRetryer(retry.Nop{}))

		srv.StallNext(1, time.Second)
		_, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "slow.txt",
			Body:   strings.NewReader("never"),
		})
		require.ErrorIs(t, err, oss.ErrTimeout)
		assert.Equal(t, oss.KindTimeout, oss.KindOf(err))
		_, ok := srv.Object(testBucket, "slow.txt")
		assert.False(t, ok)
	})
}

func TestPutObject_Verified(t *testing.T) {
	t.Run("checked against the service", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "v.txt",
			Body:   strings.NewReader("verified"),
		})
		require.NoError(t, err)
		assert.True(t, res.Verified)
	})

	t.Run("no body", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		res, err := c.PutObject(context.Background(), &client.PutObjectRequest{Bucket: testBucket, Key: "empty"})
		require.NoError(t, err)
		assert.NotEmpty(t, res.CRC64)
		assert.False(t, res.Verified)
	})

	t.Run("check disabled", func(t *testing.T) {
		srv := osstest.New(t)
		c := newTestClient(t, srv)

		res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
			Bucket: testBucket,
			Key:    "v.txt",
			Body:   strings.NewReader("verified"),
		}, func(o *client.Options) { o.DisableUploadCRC = true })
		require.NoError(t, err)
		assert.NotEmpty(t, res.CRC64)
		assert.False(t, res.Verified)
	})

	tests := []struct {
		name string
		crc  string
	}{
		{name: "unparsable header", crc: "not-a-number"},
		{name: "missing header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				if r.Body != nil {
					_, _ = io.Copy(io.Discard, r.Body)
					_ = r.Body.Close()
				}
				resp := okResponse(r)
				if tt.crc != "" {
					resp.Header.Set(oss.HeaderOSSCRC64, tt.crc)
				}
				return resp, nil
			})}
			c := newTestClientWithConfig(t, client.Config{Region: osstest.DefaultRegion, Endpoint: "http://127.0.0.1:1"},
				client.WithHTTPClient(hc))

			res, err := c.PutObject(context.Background(), &client.PutObjectRequest{
				Bucket: testBucket,
				Key:    "v.txt",
				Body:   strings.NewReader("verified"),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.crc, res.CRC64)
			assert.False(t, res.Verified)
		})
	}
}

func TestHeadObject(t *testing.T) {
	srv := osstest.New(t)
	c := newTestClient(t, srv)
	data := payload(1234)
	srv.Put(testBucket, "head.bin", data)

	res, err := c.HeadObject(context.Background(), testBucket, "head.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), res.Size)
	assert.Equal(t, srv.ETag(testBucket, "head.bin"), res.ETag)
	assert.NotEmpty(t, res.CRC64)
	assert.Equal(t, "Normal", res.ObjectType)
	assert.False(t, res.LastModified.IsZero())

	_, err = c.HeadObject(context.Background(), testBucket, "missing")
	var oe *oss.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, http.StatusNotFound, oe.StatusCode)
	assert.Equal(t, "NoSuchKey", oe.Code, "HEAD errors are decoded from x-oss-err")
	assert.NotEmpty(t, oe.RequestID)
}

func TestGetObject(t *testing.T) {
	srv := osstest.New(t)
	c := newTestClient(t, srv)
	data := payload(4096)
	srv.Put(testBucket, "get.bin", data)
	ctx := context.Background()

	t.Run("whole object", func(t *testing.T) {
		res, err := c.GetObject(ctx, &client.GetObjectRequest{Bucket: testBucket, Key: "get.bin"})
		require.NoError(t, err)
		defer func() { _ = res.Body.Close() }()

		got, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Equal(t, int64(4096), res.ContentLength)
	})

	t.Run("range", func(t *testing.T) {
		res, err := c.GetObject(ctx, &client.GetObjectRequest{
			Bucket: testBucket,
			Key:    "get.bin",
			Range:  &client.Range{Start: 100, End: 199},
		})
		require.NoError(t, err)
		defer func() { _ = res.Body.Close() }()

		got, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Equal(t, data[100:200], got)
		assert.Equal(t, "bytes 100-199/4096", res.ContentRange)
	})

	t.Run("corrupted body fails crc check", func(t *testing.T) {
		srv.CorruptBody(1)
		res, err := c.GetObject(ctx, &client.GetObjectRequest{Bucket: testBucket, Key: "get.bin"})
		require.NoError(t, err)
		defer func() { _ = res.Body.Close() }()

		_, err = io.ReadAll(res.Body)
		assert.ErrorIs(t, err, oss.ErrIntegrity)
	})

	t.Run("if-match mismatch", func(t *testing.T) {
		_, err := c.GetObject(ctx, &client.GetObjectRequest{Bucket: testBucket, Key: "get.bin", IfMatch: `"other"`})
		var oe *oss.Error
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, http.StatusPreconditionFailed, oe.StatusCode)
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := c.GetObject(ctx, &client.GetObjectRequest{
			Bucket: testBucket,
			Key:    "get.bin",
			Range:  &client.Range{Start: 10, End: 5},
		})
		assert.ErrorIs(t, err, oss.ErrArgument)
	})
}

func TestDeleteObject(t *testing.T) {
	srv := osstest.New(t)
	c := newTestClient(t, srv)
	srv.Put(testBucket, "gone.txt", []byte("bye"))

	require.NoError(t, c.DeleteObject(context.Background(), testBucket, "gone.txt"))
	_, ok := srv.Object(testBucket, "gone.txt")
	assert.False(t, ok)

	err := c.DeleteObject(context.Background(), "", "k")
	assert.True(t, errors.Is(err, client.ErrBucketRequired))
	err = c.DeleteObject(context.Background(), testBucket, "")
	assert.True(t, errors.Is(err, client.ErrKeyRequired))
}
