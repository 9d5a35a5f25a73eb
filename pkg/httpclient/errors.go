package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Kind is the script-facing classification of a failed send.
type Kind string

const (
	KindTimeout          Kind = "timeout_error"
	KindConnection       Kind = "connection_error"
	KindTooManyRedirects Kind = "too_many_redirects"
	KindRequestBody      Kind = "request_body_error"
	KindDecode           Kind = "decode_error"
	KindExternal         Kind = "external_error"
)

// Sentinel errors for facade failure modes.
var (
	// ErrInvalidProxy indicates a malformed or unsupported proxy URL.
	ErrInvalidProxy = errors.New("httpclient: invalid proxy")

	// ErrInvalidRequest indicates options that cannot form a request.
	ErrInvalidRequest = errors.New("httpclient: invalid request")

	// ErrRedirectLoop is returned when a redirect chain revisits a URL.
	ErrRedirectLoop = errors.New("httpclient: redirect loop")

	// ErrBodyRead indicates the response body could not be read in full.
	ErrBodyRead = errors.New("httpclient: body read failed")
)

// Error is returned by Sender.Send. Its message is the classification tag.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string { return string(e.Kind) }

func (e *Error) Unwrap() error { return e.Err }

// Detail returns the tag followed by the underlying cause, for logs.
func (e *Error) Detail() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func newError(kind Kind, rawURL string, err error) *Error {
	return &Error{Kind: kind, URL: rawURL, Err: err}
}

// Classify maps a transport error to its Kind. It returns "" for nil.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}

	switch {
	case errors.Is(err, ErrRedirectLoop):
		return KindTooManyRedirects
	case errors.Is(err, ErrBodyRead):
		return KindTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidProxy):
		return KindExternal
	case errors.Is(err, context.Canceled):
		return KindExternal
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	var (
		opErr   *net.OpError
		dnsErr  *net.DNSError
		recErr  tls.RecordHeaderError
		certErr *tls.CertificateVerificationError
		unkAuth x509.UnknownAuthorityError
	)
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return KindConnection
	case errors.As(err, &recErr), errors.As(err, &certErr), errors.As(err, &unkAuth):
		return KindConnection
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindConnection
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return KindConnection
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "malformed HTTP"),
		strings.Contains(msg, "http2: "),
		strings.Contains(msg, "invalid header"),
		strings.Contains(msg, "gzip"):
		return KindDecode
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "proxyconnect"):
		return KindConnection
	}
	return KindExternal
}
