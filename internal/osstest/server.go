// Package osstest runs an in-memory OSS endpoint for tests.
//
// The server speaks the path-style subset the client uses: object HEAD, GET
// with Range and If-Match, PUT, DELETE, ListObjectsV2 and multipart uploads.
// Responses carry x-oss-hash-crc64ecma the way the service does. Faults can
// be queued to fail, corrupt or cut off upcoming responses.
package osstest

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sagarc03/oss/crc"
)

// Defaults used when no option overrides them.
const (
	DefaultRegion    = "cn-hangzhou"
	DefaultAccessKey = "test-access-key"
	DefaultSecretKey = "test-secret-key"
)

type object struct {
	data         []byte
	etag         string
	crc          uint64
	contentType  string
	meta         http.Header
	lastModified time.Time
}

type upload struct {
	bucket string
	key    string
	parts  map[int][]byte
	header http.Header
}

// RecordedRequest is what the server saw of one request.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
}

// Server is a fake OSS endpoint backed by memory.
type Server struct {
	*httptest.Server

	region     string
	product    string
	accessKeys map[string]string
	verify     bool
	maxSkew    time.Duration
	now        func() time.Time

	mu       sync.Mutex
	buckets  map[string]map[string]*object
	uploads  map[string]*upload
	faults   faultSet
	requests []RecordedRequest
}

// Option configures a Server.
type Option func(*Server)

// WithAccessKeys replaces the accepted key pairs.
func WithAccessKeys(keys map[string]string) Option {
	return func(s *Server) { s.accessKeys = keys }
}

// WithRegion sets the region V4 signatures are checked against.
func WithRegion(region string) Option {
	return func(s *Server) { s.region = region }
}

// WithoutAuth accepts unsigned requests.
func WithoutAuth() Option {
	return func(s *Server) { s.verify = false }
}

// WithClock sets the server clock.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithMaxSkew rejects V4 requests whose x-oss-date is further than d from
// the server clock with RequestTimeTooSkewed.
func WithMaxSkew(d time.Duration) Option {
	return func(s *Server) { s.maxSkew = d }
}

// New starts a server and closes it when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		region:     DefaultRegion,
		product:    "oss",
		accessKeys: map[string]string{DefaultAccessKey: DefaultSecretKey},
		verify:     true,
		now:        time.Now,
		buckets:    make(map[string]map[string]*object),
		uploads:    make(map[string]*upload),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.Router())
	t.Cleanup(s.Close)
	return s
}

// Router returns the request routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recordMiddleware)
	r.Use(s.authMiddleware)
	r.Use(s.faultMiddleware)

	r.Get("/{bucket}", s.handleList)
	r.Get("/{bucket}/*", s.handleGet)
	r.Head("/{bucket}/*", s.handleHead)
	r.Put("/{bucket}/*", s.handlePut)
	r.Post("/{bucket}/*", s.handlePost)
	r.Delete("/{bucket}/*", s.handleDelete)
	return r
}

// Put stores an object directly.
func (s *Server) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(bucket, key, data, "application/octet-stream", nil)
}

// Object returns a copy of a stored object's bytes.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// ETag returns the ETag of a stored object.
func (s *Server) ETag(bucket, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.buckets[bucket][key]; ok {
		return obj.etag
	}
	return ""
}

// Uploads returns the number of multipart uploads still open.
func (s *Server) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// Requests returns every request seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// CountRequests counts the requests with method.
func (s *Server) CountRequests(method string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (s *Server) putLocked(bucket, key string, data []byte, contentType string, meta http.Header) *object {
	objects, ok := s.buckets[bucket]
	if !ok {
		objects = make(map[string]*object)
		s.buckets[bucket] = objects
	}
	sum := md5.Sum(data)
	obj := &object{
		data:         data,
		etag:         `"` + strings.ToUpper(hex.EncodeToString(sum[:])) + `"`,
		crc:          crc.Checksum(data),
		contentType:  contentType,
		meta:         meta,
		lastModified: s.now().UTC().Truncate(time.Second),
	}
	objects[key] = obj
	return obj
}

func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// splitPath returns the bucket and decoded key of a path-style request.
func splitPath(r *http.Request) (string, string) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	return bucket, key
}
