package httpclient

// DNS resolution for every transport built by this package uses Go's own
// resolver (net.Resolver{PreferGo: true}) behind a small TTL cache. The
// system resolver is never consulted through cgo, so behaviour is the same
// on every platform and a scan hitting one host thousands of times resolves
// it once per TTL.

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// DNSCache caches host lookups. It is safe for concurrent use.
type DNSCache struct {
	cache       sync.Map // host -> *dnsEntry
	resolver    *net.Resolver
	ttl         time.Duration
	negativeTTL time.Duration
}

type dnsEntry struct {
	mu        sync.Mutex
	addrs     []string
	err       error
	expiresAt time.Time
}

// NewDNSCache creates a cache. Failed lookups are kept for negativeTTL.
func NewDNSCache(ttl, negativeTTL time.Duration) *DNSCache {
	return &DNSCache{
		resolver:    &net.Resolver{PreferGo: true},
		ttl:         ttl,
		negativeTTL: negativeTTL,
	}
}

// LookupHost returns the addresses for host, resolving on miss or expiry.
func (d *DNSCache) LookupHost(ctx context.Context, host string) ([]string, error) {
	v, _ := d.cache.LoadOrStore(host, &dnsEntry{})
	e := v.(*dnsEntry)

	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().Before(e.expiresAt) {
		return e.addrs, e.err
	}

	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		// A cancelled lookup says nothing about the host.
		if ctx.Err() != nil {
			return nil, err
		}
		e.addrs, e.err = nil, err
		e.expiresAt = time.Now().Add(d.negativeTTL)
		return nil, err
	}
	if len(addrs) == 0 {
		err = fmt.Errorf("dnscache: no addresses for %s", host)
		e.addrs, e.err = nil, err
		e.expiresAt = time.Now().Add(d.negativeTTL)
		return nil, err
	}

	e.addrs, e.err = addrs, nil
	e.expiresAt = time.Now().Add(d.ttl)
	return addrs, nil
}

// Invalidate drops host from the cache.
func (d *DNSCache) Invalidate(host string) {
	d.cache.Delete(host)
}

// Len returns the number of cached hosts, expired or not.
func (d *DNSCache) Len() int {
	n := 0
	d.cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// cachingDialer resolves through a DNSCache and then dials each address in
// turn until one connects.
type cachingDialer struct {
	cache  *DNSCache
	dialer *net.Dialer
}

func newCachingDialer(cache *DNSCache, timeout time.Duration) *cachingDialer {
	return &cachingDialer{
		cache: cache,
		dialer: &net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		},
	}
}

// Dial satisfies proxy.Dialer so SOCKS connections reuse the cache.
func (c *cachingDialer) Dial(network, address string) (net.Conn, error) {
	return c.DialContext(context.Background(), network, address)
}

func (c *cachingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil || net.ParseIP(host) != nil {
		return c.dialer.DialContext(ctx, network, address)
	}

	addrs, err := c.cache.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, a := range addrs {
		conn, err := c.dialer.DialContext(ctx, network, net.JoinHostPort(a, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	c.cache.Invalidate(host)
	return nil, lastErr
}
