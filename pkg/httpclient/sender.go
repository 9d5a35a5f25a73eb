package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lotus-scan/lotus/pkg/iohelper"
)

// Part is one multipart form field.
type Part struct {
	Content     string
	Filename    string
	ContentType string
	Headers     map[string]string
}

// Options describe a single send. Zero values fall back to the Sender.
type Options struct {
	Method  string
	URL     string
	Headers map[string]string

	// NoMerge sends only Headers, without the Sender defaults.
	NoMerge bool

	Body      string
	Multipart map[string]Part

	// Timeout overrides the Sender timeout when > 0.
	Timeout time.Duration

	// Proxy overrides the Sender proxy when non-nil; "" means no proxy.
	Proxy *string

	// Redirects overrides the Sender redirect cap when non-nil.
	Redirects *int

	HTTP1Only bool
	HTTP2Only bool
}

// Sender carries per-script request defaults. Mutators persist across sends.
type Sender struct {
	client *Client

	mu        sync.Mutex
	proxy     string
	timeout   time.Duration
	redirects int
	headers   map[string]string
}

// SetProxy changes the default proxy; "" disables it.
func (s *Sender) SetProxy(proxyURL string) {
	s.mu.Lock()
	s.proxy = proxyURL
	s.mu.Unlock()
}

// SetTimeout changes the default timeout. Non-positive values are ignored.
func (s *Sender) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.timeout = d
	s.mu.Unlock()
}

// SetRedirects changes the default redirect cap.
func (s *Sender) SetRedirects(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.redirects = n
	s.mu.Unlock()
}

// MergeHeaders layers h over the default headers.
func (s *Sender) MergeHeaders(h map[string]string) {
	s.mu.Lock()
	for k, v := range h {
		s.headers[k] = v
	}
	s.mu.Unlock()
}

// Headers returns a copy of the default headers.
func (s *Sender) Headers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		out[k] = v
	}
	return out
}

type resolved struct {
	proxy     string
	timeout   time.Duration
	redirects int
	headers   map[string]string
}

func (s *Sender) resolve(opts Options) resolved {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := resolved{proxy: s.proxy, timeout: s.timeout, redirects: s.redirects}
	if opts.Proxy != nil {
		r.proxy = *opts.Proxy
	}
	if opts.Timeout > 0 {
		r.timeout = opts.Timeout
	}
	if opts.Redirects != nil {
		r.redirects = *opts.Redirects
	}

	r.headers = make(map[string]string, len(s.headers)+len(opts.Headers))
	if !opts.NoMerge || len(opts.Headers) == 0 {
		for k, v := range s.headers {
			r.headers[k] = v
		}
	}
	for k, v := range opts.Headers {
		r.headers[k] = v
	}
	return r
}

// Send performs one request. Failures are returned as *Error.
func (s *Sender) Send(ctx context.Context, opts Options) (*Response, error) {
	start := time.Now()
	resp, err := s.send(ctx, opts)
	if h := s.client.hooks.AfterSend; h != nil {
		h(resp, err, time.Since(start))
	}
	return resp, err
}

func (s *Sender) send(ctx context.Context, opts Options) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(opts.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, newError(KindExternal, opts.URL, fmt.Errorf("%w: bad url %q", ErrInvalidRequest, opts.URL))
	}
	if opts.HTTP1Only && opts.HTTP2Only {
		return nil, newError(KindExternal, opts.URL, fmt.Errorf("%w: http1_only and http2_only are exclusive", ErrInvalidRequest))
	}

	r := s.resolve(opts)

	body, contentType, err := buildBody(opts)
	if err != nil {
		return nil, newError(KindRequestBody, opts.URL, err)
	}

	mode := protoAuto
	switch {
	case opts.HTTP1Only:
		mode = protoHTTP1
	case opts.HTTP2Only:
		mode = protoHTTP2
	}
	rt, err := s.client.transport(transportKey{proxy: r.proxy, mode: mode})
	if err != nil {
		return nil, newError(KindExternal, opts.URL, err)
	}

	if g := s.client.governor; g != nil {
		if err := g.Acquire(ctx); err != nil {
			return nil, newError(Classify(err), opts.URL, err)
		}
	}
	if h := s.client.hooks.BeforeSend; h != nil {
		h(method, opts.URL)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, target.String(), body)
	if err != nil {
		return nil, newError(KindExternal, opts.URL, err)
	}
	for k, v := range r.headers {
		if http.CanonicalHeaderKey(k) == "Host" {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	hc := &http.Client{
		Transport:     rt,
		CheckRedirect: redirectPolicy(r.redirects),
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, newError(Classify(err), opts.URL, err)
	}
	defer iohelper.DrainAndClose(resp.Body)

	raw, err := iohelper.ReadBody(resp.Body, s.client.cfg.MaxBodySize)
	if err != nil {
		return nil, newError(KindTimeout, opts.URL, fmt.Errorf("%w: %v", ErrBodyRead, err))
	}

	s.client.logger.Debug("http response",
		"method", method,
		"url", opts.URL,
		"status", resp.StatusCode,
		"bytes", len(raw))

	return newResponse(resp, raw), nil
}

// redirectPolicy follows at most max hops and then hands back the last
// redirect response. A chain that revisits a URL is a loop.
func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return http.ErrUseLastResponse
		}
		next := req.URL.String()
		for _, prev := range via {
			if prev.URL.String() == next {
				return ErrRedirectLoop
			}
		}
		return nil
	}
}

func buildBody(opts Options) (io.Reader, string, error) {
	if len(opts.Multipart) > 0 {
		return buildMultipart(opts.Multipart)
	}
	if opts.Body == "" {
		return nil, "", nil
	}
	return strings.NewReader(opts.Body), "", nil
}

func buildMultipart(parts map[string]Part) (io.Reader, string, error) {
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range names {
		p := parts[name]

		h := make(textproto.MIMEHeader)
		disp := fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(name))
		if p.Filename != "" {
			disp += fmt.Sprintf(`; filename="%s"`, escapeQuotes(p.Filename))
		}
		h.Set("Content-Disposition", disp)
		if p.ContentType != "" {
			h.Set("Content-Type", p.ContentType)
		} else if p.Filename != "" {
			h.Set("Content-Type", "application/octet-stream")
		}
		for k, v := range p.Headers {
			h.Set(k, v)
		}

		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("multipart part %q: %w", name, err)
		}
		if _, err := io.WriteString(pw, p.Content); err != nil {
			return nil, "", fmt.Errorf("multipart part %q: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
