// Package httpclient is the HTTP facade used by scan scripts.
//
// A Client owns the connection pools, the DNS cache and the request
// governor. Each scan unit gets its own Sender, which carries the mutable
// per-script defaults (proxy, timeout, redirect cap, headers) and turns a
// per-call Options record into one request and a normalized Response.
//
// TLS verification is always off.
package httpclient

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// DefaultUserAgent is merged into the default headers unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Config holds facade configuration.
type Config struct {
	// Timeout is the default per-request timeout (default: 10s)
	Timeout time.Duration

	// Redirects is the default redirect cap (default: 10, 0 = never follow)
	Redirects int

	// Proxy is the default proxy URL (optional)
	Proxy string

	// Headers are the default request headers
	Headers map[string]string

	// MaxIdleConns across all hosts (default: 100)
	MaxIdleConns int

	// MaxConnsPerHost (default: 25)
	MaxConnsPerHost int

	// IdleConnTimeout (default: 90s)
	IdleConnTimeout time.Duration

	// DialTimeout (default: 10s)
	DialTimeout time.Duration

	// TLSHandshakeTimeout (default: 10s)
	TLSHandshakeTimeout time.Duration

	// MaxBodySize caps the bytes kept from a response body (default: 10MB)
	MaxBodySize int64

	// DNSCacheTTL is how long successful lookups are reused (default: 5m)
	DNSCacheTTL time.Duration
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             10 * time.Second,
		Redirects:           10,
		Headers:             map[string]string{"User-Agent": DefaultUserAgent},
		MaxIdleConns:        100,
		MaxConnsPerHost:     25,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DNSCacheTTL:         5 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Redirects < 0 {
		c.Redirects = 0
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxConnsPerHost == 0 {
		c.MaxConnsPerHost = d.MaxConnsPerHost
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = d.IdleConnTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.TLSHandshakeTimeout == 0 {
		c.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	if c.DNSCacheTTL == 0 {
		c.DNSCacheTTL = d.DNSCacheTTL
	}
	c.Headers = WithDefaultUserAgent(c.Headers)
}

// WithDefaultUserAgent returns a copy of h that carries a User-Agent,
// adding DefaultUserAgent when h has none (any case).
func WithDefaultUserAgent(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+1)
	hasUA := false
	for k, v := range h {
		out[k] = v
		if http.CanonicalHeaderKey(k) == "User-Agent" {
			hasUA = true
		}
	}
	if !hasUA {
		out["User-Agent"] = DefaultUserAgent
	}
	return out
}

// Governor is consulted before every send.
type Governor interface {
	Acquire(ctx context.Context) error
}

// Hooks observe sends. Both are optional.
type Hooks struct {
	// BeforeSend runs after the governor admitted the request.
	BeforeSend func(method, url string)

	// AfterSend runs once the response body was read or the send failed.
	// elapsed includes time spent waiting on the governor.
	AfterSend func(resp *Response, err error, elapsed time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithGovernor sets the request governor.
func WithGovernor(g Governor) Option {
	return func(c *Client) { c.governor = g }
}

// WithHooks sets the send hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

type protoMode int

const (
	protoAuto protoMode = iota
	protoHTTP1
	protoHTTP2
)

type transportKey struct {
	proxy string
	mode  protoMode
}

// Client builds and caches transports keyed by proxy and protocol mode.
type Client struct {
	cfg      Config
	dns      *DNSCache
	dialer   *cachingDialer
	governor Governor
	hooks    Hooks
	logger   *slog.Logger

	mu         sync.Mutex
	transports map[transportKey]http.RoundTripper
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	cfg.applyDefaults()

	dns := NewDNSCache(cfg.DNSCacheTTL, 30*time.Second)
	c := &Client{
		cfg:        cfg,
		dns:        dns,
		dialer:     newCachingDialer(dns, cfg.DialTimeout),
		logger:     slog.Default(),
		transports: make(map[transportKey]http.RoundTripper),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// NewSender returns a Sender seeded with the client defaults.
func (c *Client) NewSender() *Sender {
	headers := make(map[string]string, len(c.cfg.Headers))
	for k, v := range c.cfg.Headers {
		headers[k] = v
	}
	return &Sender{
		client:    c,
		proxy:     c.cfg.Proxy,
		timeout:   c.cfg.Timeout,
		redirects: c.cfg.Redirects,
		headers:   headers,
	}
}

// CloseIdleConnections releases pooled connections of every cached transport.
func (c *Client) CloseIdleConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rt := range c.transports {
		if ci, ok := rt.(interface{ CloseIdleConnections() }); ok {
			ci.CloseIdleConnections()
		}
	}
}

func (c *Client) tlsConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // scanners must reach misconfigured hosts
	}
}

func (c *Client) transport(key transportKey) (http.RoundTripper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rt, ok := c.transports[key]; ok {
		return rt, nil
	}

	pc, err := ParseProxyURL(key.proxy)
	if err != nil {
		return nil, err
	}

	var dial func(ctx context.Context, network, addr string) (net.Conn, error) = c.dialer.DialContext
	if pc.IsSOCKS() {
		sd, err := newSOCKSDialer(pc, c.dialer, c.cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		dial = sd.DialContext
	}

	var rt http.RoundTripper
	if key.mode == protoHTTP2 {
		if pc != nil && !pc.IsSOCKS() {
			return nil, ErrInvalidProxy
		}
		rt = c.newHTTP2Transport(dial)
	} else {
		t := &http.Transport{
			MaxIdleConns:          c.cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   c.cfg.MaxConnsPerHost,
			MaxConnsPerHost:       c.cfg.MaxConnsPerHost,
			IdleConnTimeout:       c.cfg.IdleConnTimeout,
			TLSHandshakeTimeout:   c.cfg.TLSHandshakeTimeout,
			ExpectContinueTimeout: time.Second,
			DialContext:           dial,
			TLSClientConfig:       c.tlsConfig(),
			ForceAttemptHTTP2:     key.mode == protoAuto,
		}
		if pc != nil && !pc.IsSOCKS() {
			t.Proxy = http.ProxyURL(pc.URL)
		}
		if key.mode == protoHTTP1 {
			// A non-nil empty map disables the HTTP/2 upgrade.
			t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		}
		rt = t
	}

	c.transports[key] = rt
	return rt, nil
}

// h2Transport speaks HTTP/2 only: TLS with ALPN for https and prior-knowledge
// cleartext (h2c) for http.
type h2Transport struct {
	tls *http2.Transport
	h2c *http2.Transport
}

func (c *Client) newHTTP2Transport(dial func(ctx context.Context, network, addr string) (net.Conn, error)) *h2Transport {
	return &h2Transport{
		tls: &http2.Transport{
			TLSClientConfig: c.tlsConfig(),
			IdleConnTimeout: c.cfg.IdleConnTimeout,
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				raw, err := dial(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				conn := tls.Client(raw, cfg)
				if err := conn.HandshakeContext(ctx); err != nil {
					raw.Close()
					return nil, err
				}
				return conn, nil
			},
		},
		h2c: &http2.Transport{
			AllowHTTP:       true,
			IdleConnTimeout: c.cfg.IdleConnTimeout,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		},
	}
}

func (t *h2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "http" {
		return t.h2c.RoundTrip(req)
	}
	return t.tls.RoundTrip(req)
}

func (t *h2Transport) CloseIdleConnections() {
	t.tls.CloseIdleConnections()
	t.h2c.CloseIdleConnections()
}
