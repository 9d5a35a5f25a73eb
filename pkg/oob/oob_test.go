package oob

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-scan/lotus/pkg/httpclient"
	"github.com/lotus-scan/lotus/pkg/jsonutil"
)

// fakeInteractsh speaks enough of the Interactsh protocol to round-trip one
// encrypted interaction.
type fakeInteractsh struct {
	mu         sync.Mutex
	pub        *rsa.PublicKey
	secret     string
	cid        string
	pending    []rawInteraction
	deregister bool
}

func (f *fakeInteractsh) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/register":
		body, _ := io.ReadAll(r.Body)
		var req registerRequest
		if err := jsonutil.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		pemKey, _ := base64.StdEncoding.DecodeString(req.PublicKey)
		block, _ := pem.Decode(pemKey)
		if block == nil {
			http.Error(w, "bad pem", 400)
			return
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		f.pub = key.(*rsa.PublicKey)
		f.secret = req.SecretKey
		f.cid = req.CorrelationID
		io.WriteString(w, `{"message":"registration successful"}`)

	case "/poll":
		if r.URL.Query().Get("id") != f.cid || r.URL.Query().Get("secret") != f.secret {
			http.Error(w, "unauthorized", 401)
			return
		}
		aesKey := make([]byte, 32)
		rand.Read(aesKey)
		encKey, _ := rsa.EncryptOAEP(sha256.New(), rand.Reader, f.pub, aesKey, nil)

		var data []string
		for _, in := range f.pending {
			plain, _ := jsonutil.Marshal(in)
			block, _ := aes.NewCipher(aesKey)
			out := make([]byte, aes.BlockSize+len(plain))
			iv := out[:aes.BlockSize]
			rand.Read(iv)
			cipher.NewCFBEncrypter(block, iv).XORKeyStream(out[aes.BlockSize:], plain) //nolint:staticcheck
			data = append(data, base64.StdEncoding.EncodeToString(out))
		}
		f.pending = nil
		resp, _ := jsonutil.Marshal(pollResponse{Data: data, AESKey: base64.StdEncoding.EncodeToString(encKey)})
		w.Write(resp)

	case "/deregister":
		f.deregister = true
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *InteractshClient {
	t.Helper()
	sender := httpclient.New(httpclient.DefaultConfig()).NewSender()
	c, err := NewInteractshClient(InteractshConfig{ServerURL: srv.URL}, sender)
	require.NoError(t, err)
	return c
}

func TestInteractsh_RegisterPollDecrypt(t *testing.T) {
	fake := &fakeInteractsh{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	host := c.URL()
	assert.True(t, strings.HasPrefix(host, c.GetCorrelationID()))
	assert.True(t, strings.HasSuffix(host, ".127.0.0.1"))
	assert.Len(t, strings.SplitN(host, ".", 2)[0], correlationIDLength+nonceLength)

	got, err := c.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	fake.mu.Lock()
	fake.pending = []rawInteraction{{
		Protocol:      "dns",
		UniqueID:      "abc",
		FullID:        host,
		QType:         "A",
		RemoteAddress: "10.0.0.1",
		Timestamp:     "2024-01-02T03:04:05.123Z",
	}}
	fake.mu.Unlock()

	got, err = c.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, InteractionDNS, got[0].Type)
	assert.Equal(t, host, got[0].FullID)
	assert.Equal(t, "A", got[0].QType)
	assert.Equal(t, 2024, got[0].Timestamp.Year())
	assert.Len(t, c.GetInteractions(), 1)

	require.NoError(t, c.Close(ctx))
	assert.True(t, fake.deregister)
}

func TestInteractsh_ServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Poll(context.Background())
	assert.ErrorIs(t, err, ErrServer)
}

func TestNewInteractshClient_Defaults(t *testing.T) {
	sender := httpclient.New(httpclient.DefaultConfig()).NewSender()

	c, err := NewInteractshClient(InteractshConfig{ServerURL: "oast.example"}, sender)
	require.NoError(t, err)
	assert.Equal(t, "oast.example", c.GetServer())
	assert.Equal(t, DefaultInteractshConfig().PollInterval, c.pollInterval)
	assert.Len(t, c.GetCorrelationID(), correlationIDLength)

	_, err = NewInteractshClient(InteractshConfig{ServerURL: "https://"}, sender)
	assert.ErrorIs(t, err, ErrInvalidServer)
}

func TestProtocolToType(t *testing.T) {
	tests := map[string]InteractionType{
		"DNS":   InteractionDNS,
		"http":  InteractionHTTP,
		"https": InteractionHTTPS,
		"smtp":  InteractionSMTP,
		"ldap":  InteractionLDAP,
		"ftp":   InteractionFTP,
		"other": InteractionHTTP,
	}
	for in, want := range tests {
		if got := protocolToType(in); got != want {
			t.Errorf("protocolToType(%q) = %q, want %q", in, got, want)
		}
	}
}
