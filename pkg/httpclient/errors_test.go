package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"deadline", &url.Error{Op: "Get", URL: "x", Err: context.DeadlineExceeded}, KindTimeout},
		{"body read", fmt.Errorf("%w: eof", ErrBodyRead), KindTimeout},
		{"redirect loop", &url.Error{Op: "Get", URL: "x", Err: ErrRedirectLoop}, KindTooManyRedirects},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, KindConnection},
		{"dns", &net.DNSError{Err: "no such host", Name: "x.invalid"}, KindConnection},
		{"eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), KindConnection},
		{"malformed", errors.New("net/http: HTTP/1.x transport connection broken: malformed HTTP response"), KindDecode},
		{"invalid proxy", fmt.Errorf("%w: nope", ErrInvalidProxy), KindExternal},
		{"canceled", context.Canceled, KindExternal},
		{"other", errors.New("something"), KindExternal},
		{"wrapped Error", newError(KindRequestBody, "u", errors.New("x")), KindRequestBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestError_Detail(t *testing.T) {
	e := newError(KindConnection, "http://x", errors.New("refused"))
	assert.Equal(t, "connection_error", e.Error())
	assert.Equal(t, "connection_error: refused", e.Detail())
	assert.Equal(t, "timeout_error", newError(KindTimeout, "", nil).Detail())
}

func TestParseProxyURL(t *testing.T) {
	pc, err := ParseProxyURL("")
	assert.NoError(t, err)
	assert.Nil(t, pc)

	pc, err = ParseProxyURL("127.0.0.1")
	assert.NoError(t, err)
	assert.Equal(t, "http", pc.Scheme)
	assert.Equal(t, "127.0.0.1:8080", pc.Address())
	assert.False(t, pc.IsSOCKS())

	pc, err = ParseProxyURL("socks5h://user:pw@proxy:9050")
	assert.NoError(t, err)
	assert.True(t, pc.IsSOCKS())
	assert.Equal(t, "user", pc.Username)
	assert.Equal(t, "pw", pc.Password)

	_, err = ParseProxyURL("ftp://proxy")
	assert.ErrorIs(t, err, ErrInvalidProxy)
}

func TestDNSCache_Localhost(t *testing.T) {
	cache := NewDNSCache(time.Minute, time.Second)

	addrs, err := cache.LookupHost(context.Background(), "localhost")
	if err != nil {
		t.Skipf("localhost does not resolve here: %v", err)
	}
	assert.NotEmpty(t, addrs)
	assert.Equal(t, 1, cache.Len())

	cache.Invalidate("localhost")
	assert.Equal(t, 0, cache.Len())
}
