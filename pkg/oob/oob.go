// Package oob provides Out-of-Band (OOB) detection for callback-based vulnerabilities
// against an Interactsh-compatible server.
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
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lotus-scan/lotus/pkg/httpclient"
	"github.com/lotus-scan/lotus/pkg/jsonutil"
)

// InteractionType represents the type of OOB interaction
type InteractionType string

const (
	InteractionDNS   InteractionType = "dns"
	InteractionHTTP  InteractionType = "http"
	InteractionHTTPS InteractionType = "https"
	InteractionSMTP  InteractionType = "smtp"
	InteractionLDAP  InteractionType = "ldap"
	InteractionFTP   InteractionType = "ftp"
)

// Interaction represents a detected OOB callback
type Interaction struct {
	ID            string          `json:"id"`
	Type          InteractionType `json:"type"`
	Protocol      string          `json:"protocol"`
	FullID        string          `json:"full_id"`
	QType         string          `json:"q_type,omitempty"`
	RemoteAddress string          `json:"remote_address"`
	Timestamp     time.Time       `json:"timestamp"`
	RawRequest    string          `json:"raw_request,omitempty"`
	RawResponse   string          `json:"raw_response,omitempty"`
}

// InteractshConfig configures the Interactsh client
type InteractshConfig struct {
	ServerURL    string        // Default: https://oast.fun
	Token        string        // Authorization header for private servers
	PollInterval time.Duration // Default: 5s
}

// DefaultInteractshConfig returns default configuration
func DefaultInteractshConfig() InteractshConfig {
	return InteractshConfig{
		ServerURL:    "https://oast.fun",
		PollInterval: 5 * time.Second,
	}
}

const (
	correlationIDLength = 20
	nonceLength         = 13
)

// InteractshClient registers an RSA key with the server and decrypts the
// interactions it hands back on poll.
type InteractshClient struct {
	serverURL     *url.URL
	token         string
	sender        *httpclient.Sender
	key           *rsa.PrivateKey
	secretKey     string
	correlationID string
	pollInterval  time.Duration

	mu           sync.RWMutex
	interactions []Interaction
	registered   bool
}

// NewInteractshClient creates an Interactsh client. Requests go through
// sender, which should not carry the scan's request governor.
func NewInteractshClient(config InteractshConfig, sender *httpclient.Sender) (*InteractshClient, error) {
	d := DefaultInteractshConfig()
	if config.ServerURL == "" {
		config.ServerURL = d.ServerURL
	}
	if config.PollInterval <= 0 {
		config.PollInterval = d.PollInterval
	}
	if !strings.Contains(config.ServerURL, "://") {
		config.ServerURL = "https://" + config.ServerURL
	}

	u, err := url.Parse(config.ServerURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidServer, config.ServerURL)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("oob: generate key: %w", err)
	}

	return &InteractshClient{
		serverURL:     u,
		token:         config.Token,
		sender:        sender,
		key:           key,
		secretKey:     uuid.NewString(),
		correlationID: generateCorrelationID(),
		pollInterval:  config.PollInterval,
	}, nil
}

// GetServer returns the OOB callback server
func (c *InteractshClient) GetServer() string {
	return c.serverURL.Hostname()
}

// GetCorrelationID returns the correlation ID
func (c *InteractshClient) GetCorrelationID() string {
	return c.correlationID
}

// URL returns a fresh callback host: <correlation><nonce>.<server>.
func (c *InteractshClient) URL() string {
	return c.correlationID + generateNonce() + "." + c.GetServer()
}

func (c *InteractshClient) endpoint(path string) string {
	u := *c.serverURL
	u.Path = path
	return u.String()
}

func (c *InteractshClient) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if c.token != "" {
		h["Authorization"] = c.token
	}
	return h
}

// Register registers with the Interactsh server
func (c *InteractshClient) Register(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registered {
		return nil
	}

	der, err := x509.MarshalPKIXPublicKey(&c.key.PublicKey)
	if err != nil {
		return fmt.Errorf("oob: marshal key: %w", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: der})

	body, err := jsonutil.Marshal(registerRequest{
		PublicKey:     base64.StdEncoding.EncodeToString(pemKey),
		SecretKey:     c.secretKey,
		CorrelationID: c.correlationID,
	})
	if err != nil {
		return err
	}

	resp, err := c.sender.Send(ctx, httpclient.Options{
		Method:  "POST",
		URL:     c.endpoint("/register"),
		Headers: c.headers(),
		Body:    string(body),
	})
	if err != nil {
		return fmt.Errorf("oob: register: %w", err)
	}
	if resp.Status != 200 {
		return fmt.Errorf("%w: register returned %d", ErrServer, resp.Status)
	}

	c.registered = true
	return nil
}

type registerRequest struct {
	PublicKey     string `json:"public-key"`
	SecretKey     string `json:"secret-key"`
	CorrelationID string `json:"correlation-id"`
}

type pollResponse struct {
	Data   []string `json:"data"`
	AESKey string   `json:"aes_key"`
}

type rawInteraction struct {
	Protocol      string `json:"protocol"`
	UniqueID      string `json:"unique-id"`
	FullID        string `json:"full-id"`
	QType         string `json:"q-type"`
	RawRequest    string `json:"raw-request"`
	RawResponse   string `json:"raw-response"`
	RemoteAddress string `json:"remote-address"`
	Timestamp     string `json:"timestamp"`
}

// Poll checks for new interactions
func (c *InteractshClient) Poll(ctx context.Context) ([]Interaction, error) {
	if err := c.Register(ctx); err != nil {
		return nil, err
	}

	q := url.Values{"id": {c.correlationID}, "secret": {c.secretKey}}
	resp, err := c.sender.Send(ctx, httpclient.Options{
		URL:     c.endpoint("/poll") + "?" + q.Encode(),
		Headers: c.headers(),
	})
	if err != nil {
		return nil, fmt.Errorf("oob: poll: %w", err)
	}
	if resp.Status != 200 {
		return nil, fmt.Errorf("%w: poll returned %d - %s", ErrServer, resp.Status, resp.Body)
	}

	var pr pollResponse
	if err := jsonutil.Unmarshal([]byte(resp.Body), &pr); err != nil {
		return nil, fmt.Errorf("oob: poll body: %w", err)
	}
	if len(pr.Data) == 0 {
		return nil, nil
	}

	aesKey, err := c.decryptKey(pr.AESKey)
	if err != nil {
		return nil, err
	}

	var interactions []Interaction
	for _, item := range pr.Data {
		plain, err := decryptItem(aesKey, item)
		if err != nil {
			return interactions, err
		}
		var d rawInteraction
		if err := jsonutil.Unmarshal(plain, &d); err != nil {
			return interactions, fmt.Errorf("oob: interaction: %w", err)
		}

		timestamp, _ := time.Parse(time.RFC3339Nano, d.Timestamp)
		if timestamp.IsZero() {
			timestamp = time.Now()
		}
		interactions = append(interactions, Interaction{
			ID:            d.UniqueID,
			Type:          protocolToType(d.Protocol),
			Protocol:      d.Protocol,
			FullID:        d.FullID,
			QType:         d.QType,
			RemoteAddress: d.RemoteAddress,
			Timestamp:     timestamp,
			RawRequest:    d.RawRequest,
			RawResponse:   d.RawResponse,
		})
	}

	c.mu.Lock()
	c.interactions = append(c.interactions, interactions...)
	c.mu.Unlock()

	return interactions, nil
}

func (c *InteractshClient) decryptKey(enc string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: aes key: %v", ErrDecrypt, err)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), nil, c.key, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: aes key: %v", ErrDecrypt, err)
	}
	return key, nil
}

// decryptItem reverses the server's AES-CFB encryption; the IV is the
// first block of the ciphertext.
func decryptItem(key []byte, item string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(item)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < aes.BlockSize {
		return nil, fmt.Errorf("%w: short ciphertext", ErrDecrypt)
	}
	iv, data := raw[:aes.BlockSize], raw[aes.BlockSize:]
	out := make([]byte, len(data))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, data) //nolint:staticcheck // wire format
	return out, nil
}

// GetInteractions returns all collected interactions
func (c *InteractshClient) GetInteractions() []Interaction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Interaction, len(c.interactions))
	copy(out, c.interactions)
	return out
}

// Close deregisters from the server.
func (c *InteractshClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registered {
		return nil
	}
	c.registered = false

	body, err := jsonutil.Marshal(map[string]string{
		"correlation-id": c.correlationID,
		"secret-key":     c.secretKey,
	})
	if err != nil {
		return err
	}
	_, err = c.sender.Send(ctx, httpclient.Options{
		Method:  "POST",
		URL:     c.endpoint("/deregister"),
		Headers: c.headers(),
		Body:    string(body),
	})
	return err
}

// StartPolling starts continuous polling for interactions
func (c *InteractshClient) StartPolling(ctx context.Context, callback func([]Interaction)) {
	go func() {
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				interactions, err := c.Poll(ctx)
				if err == nil && len(interactions) > 0 && callback != nil {
					callback(interactions)
				}
			}
		}
	}()
}

// Helper functions
func generateCorrelationID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:correlationIDLength]
}

func generateNonce() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:nonceLength]
}

func protocolToType(protocol string) InteractionType {
	switch strings.ToLower(protocol) {
	case "dns":
		return InteractionDNS
	case "http":
		return InteractionHTTP
	case "https":
		return InteractionHTTPS
	case "smtp":
		return InteractionSMTP
	case "ldap":
		return InteractionLDAP
	case "ftp":
		return InteractionFTP
	default:
		return InteractionHTTP
	}
}
