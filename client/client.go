package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/checkpoint"
	"github.com/sagarc03/oss/credentials"
	"github.com/sagarc03/oss/retry"
	"github.com/sagarc03/oss/signer"
	"github.com/sagarc03/oss/transport"
)

// Signature versions accepted by Config.SignatureVersion.
const (
	SignatureV1 = "v1"
	SignatureV4 = "v4"
)

const tracerName = "github.com/sagarc03/oss/client"

// Config describes the service the client talks to.
type Config struct {
	// Region is required for V4 signing and for the default endpoint.
	Region string
	// Endpoint overrides https://oss-{region}.aliyuncs.com. A missing scheme
	// means https.
	Endpoint string
	// Product is the V4 signing product, "oss" when empty.
	Product string
	// SignatureVersion is v1 or v4, v4 when empty.
	SignatureVersion string
	// UsePathStyle addresses buckets as /bucket/key instead of bucket.host.
	// IP and localhost endpoints always use path style.
	UsePathStyle bool
	// AdditionalHeaders names extra headers to sign with V4.
	AdditionalHeaders []string

	DisableUploadCRC   bool
	DisableDownloadCRC bool

	Transport transport.Config
}

// Client executes signed operations against the service.
type Client struct {
	cfg         Config
	endpoint    *url.URL
	pathStyle   bool
	httpClient  *http.Client
	credentials oss.CredentialsProvider
	retryer     retry.Retryer
	signer      signer.Signer
	logger      *slog.Logger
	observer    Observer
	tracer      trace.Tracer
	checkpoints checkpoint.Store
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCredentialsProvider sets where access keys come from. The default
// reads them from the environment.
func WithCredentialsProvider(p oss.CredentialsProvider) Option {
	return func(c *Client) {
		c.credentials = p
	}
}

// WithRetryer replaces the default retry policy.
func WithRetryer(r retry.Retryer) Option {
	return func(c *Client) {
		c.retryer = r
	}
}

// WithSigner replaces the signer picked from Config.SignatureVersion.
func WithSigner(s signer.Signer) Option {
	return func(c *Client) {
		c.signer = s
	}
}

// WithLogger sets the logger, slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithObserver receives per-attempt instrumentation.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithTracerProvider sets the provider spans are started from. The global
// otel provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithCheckpointStore enables resumable DownloadFile.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(c *Client) {
		c.checkpoints = s
	}
}

// WithClock sets the clock used for signing times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a new Client with the given config and options.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Product == "" {
		cfg.Product = oss.DefaultProduct
	}
	if cfg.SignatureVersion == "" {
		cfg.SignatureVersion = SignatureV4
	}

	endpoint, err := resolveEndpoint(cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:         cfg,
		endpoint:    endpoint,
		pathStyle:   cfg.UsePathStyle || isPathStyleHost(endpoint.Hostname()),
		credentials: credentials.Env(),
		retryer:     retry.NewStandard(),
		logger:      slog.Default(),
		observer:    nopObserver{},
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	if c.signer == nil {
		switch cfg.SignatureVersion {
		case SignatureV1:
			c.signer = signer.NewV1()
		case SignatureV4:
			if cfg.Region == "" {
				return nil, fmt.Errorf("new client: %w", ErrRegionRequired)
			}
			c.signer = signer.NewV4()
		default:
			return nil, fmt.Errorf("new client: %w: %s", ErrUnknownSignatureVersion, cfg.SignatureVersion)
		}
	}
	if c.httpClient == nil {
		c.httpClient = transport.New(cfg.Transport)
	}
	if c.retryer == nil {
		c.retryer = retry.Nop{}
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

// Endpoint returns the resolved service endpoint.
func (c *Client) Endpoint() *url.URL {
	u := *c.endpoint
	return &u
}

func resolveEndpoint(region, endpoint string) (*url.URL, error) {
	if endpoint == "" {
		if region == "" {
			return nil, fmt.Errorf("new client: %w", ErrEndpointRequired)
		}
		endpoint = "https://oss-" + region + ".aliyuncs.com"
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("new client: parse endpoint: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("new client: %w: %s", ErrInvalidEndpoint, endpoint)
	}
	u.Path, u.RawPath, u.RawQuery, u.Fragment = "", "", "", ""
	return u, nil
}

func isPathStyleHost(host string) bool {
	return host == "localhost" || net.ParseIP(host) != nil
}

// requestURL addresses bucket and key on the endpoint. query must already
// be encoded.
func (c *Client) requestURL(bucket, key, query string) *url.URL {
	u := &url.URL{Scheme: c.endpoint.Scheme, Host: c.endpoint.Host, RawQuery: query}

	var path, rawPath string
	switch {
	case bucket == "":
		path, rawPath = "/", "/"
	case c.pathStyle:
		path = "/" + bucket + "/" + key
		rawPath = "/" + bucket + "/" + signer.EscapePath(key, true)
	default:
		u.Host = bucket + "." + c.endpoint.Host
		path = "/" + key
		rawPath = "/" + signer.EscapePath(key, true)
	}
	u.Path = path
	if rawPath != path {
		u.RawPath = rawPath
	}
	return u
}
