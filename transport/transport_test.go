package transport_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/oss/transport"
)

func TestNewTransport_Defaults(t *testing.T) {
	tr := transport.NewTransport(transport.Config{})
	assert.Equal(t, transport.DefaultMaxConnections, tr.MaxConnsPerHost)
	assert.Equal(t, transport.DefaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, transport.DefaultReadWriteTimeout, tr.ResponseHeaderTimeout)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)

	tr = transport.NewTransport(transport.Config{MaxConnections: 7, InsecureSkipVerify: true})
	assert.Equal(t, 7, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
}

func TestNew_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := transport.New(transport.Config{}).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestNew_StalledBodyTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := transport.New(transport.Config{ReadWriteTimeout: 100 * time.Millisecond})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	require.Error(t, err)
	var ne net.Error
	require.True(t, errors.As(err, &ne), "got %T: %v", err, err)
	assert.True(t, ne.Timeout())
}
