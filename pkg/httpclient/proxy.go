package httpclient

// Proxy handling for the facade. Scripts and the CLI may pass any of:
//
//	http://host:port       HTTP CONNECT proxy
//	https://host:port      HTTPS CONNECT proxy
//	socks5://host:port     local DNS
//	socks5h://host:port    DNS resolved by the proxy
//
// A value without a scheme is treated as http://.

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

var supportedProxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// ProxyConfig is a parsed proxy URL.
type ProxyConfig struct {
	URL      *url.URL
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
}

// ParseProxyURL validates a proxy URL. An empty string yields nil, nil.
func ParseProxyURL(raw string) (*ProxyConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !supportedProxySchemes[scheme] {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidProxy)
	}

	port := parsed.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "8080"
		case "https":
			port = "8443"
		default:
			port = "1080"
		}
	}

	pc := &ProxyConfig{
		URL:    parsed,
		Scheme: scheme,
		Host:   parsed.Hostname(),
		Port:   port,
	}
	if parsed.User != nil {
		pc.Username = parsed.User.Username()
		pc.Password, _ = parsed.User.Password()
	}
	return pc, nil
}

// IsSOCKS reports whether the proxy speaks SOCKS.
func (p *ProxyConfig) IsSOCKS() bool {
	return p != nil && strings.HasPrefix(p.Scheme, "socks")
}

// Address returns host:port.
func (p *ProxyConfig) Address() string {
	if p == nil {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// ContextDialer dials with a context.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// socksDialer adds a dial timeout to a golang.org/x/net/proxy dialer.
type socksDialer struct {
	dialer  proxy.Dialer
	timeout time.Duration
}

func (s *socksDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if cd, ok := s.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := s.dialer.Dial(network, address)
		ch <- result{conn, err}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, fmt.Errorf("proxy dial: %w", ctx.Err())
	case r := <-ch:
		return r.conn, r.err
	}
}

// newSOCKSDialer builds a dialer that tunnels through a SOCKS proxy. Plain
// TCP connects go through forward.
func newSOCKSDialer(pc *ProxyConfig, forward proxy.Dialer, timeout time.Duration) (ContextDialer, error) {
	u := &url.URL{Scheme: pc.Scheme, Host: pc.Address()}
	if pc.Username != "" {
		u.User = url.UserPassword(pc.Username, pc.Password)
	}

	d, err := proxy.FromURL(u, forward)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	return &socksDialer{dialer: d, timeout: timeout}, nil
}
