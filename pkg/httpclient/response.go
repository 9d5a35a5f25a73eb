package httpclient

import (
	"net/http"
	"strings"

	"github.com/lotus-scan/lotus/pkg/iohelper"
)

// Response is the normalized record handed to scripts.
type Response struct {
	Reason     string            `json:"reason"`
	Version    string            `json:"version"`
	IsRedirect bool              `json:"is_redirect"`
	URL        string            `json:"url"`
	Status     int               `json:"status"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers"`
}

func newResponse(resp *http.Response, raw []byte) *Response {
	headers := make(map[string]string, len(resp.Header))
	for k, vs := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ", ")
	}

	finalURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		Reason:     reasonPhrase(resp),
		Version:    resp.Proto,
		IsRedirect: resp.StatusCode >= 300 && resp.StatusCode < 400,
		URL:        finalURL,
		Status:     resp.StatusCode,
		Body:       iohelper.Lossy(raw),
		Headers:    headers,
	}
}

// reasonPhrase prefers the phrase the server sent over the canonical one.
func reasonPhrase(resp *http.Response) string {
	if _, phrase, ok := strings.Cut(resp.Status, " "); ok && phrase != "" {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}
