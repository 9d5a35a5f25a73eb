package encoding

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
)

func init() {
	for _, c := range []codec{
		{"plain", func(s string) string { return s }, func(s string) (string, error) { return s, nil }},
		{"url", URLEncode, URLDecode},
		{"double-url", func(s string) string { return URLEncode(URLEncode(s)) }, func(s string) (string, error) {
			once, err := URLDecode(s)
			if err != nil {
				return "", err
			}
			return URLDecode(once)
		}},
		{"base64", Base64Encode, Base64Decode},
		{"base64url", func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }, func(s string) (string, error) {
			b, err := base64.URLEncoding.DecodeString(s)
			return string(b), err
		}},
		{"html", HTMLEncode, func(s string) (string, error) { return HTMLDecode(s), nil }},
		{"html-entity", HTMLEncode, func(s string) (string, error) { return HTMLDecode(s), nil }},
		{"html-numeric", func(s string) string { return entities(s, "&#%d;") }, func(s string) (string, error) { return HTMLDecode(s), nil }},
		{"html-hex", func(s string) string { return entities(s, "&#x%x;") }, func(s string) (string, error) { return HTMLDecode(s), nil }},
		{"unicode", unicodeEscape, unicodeUnescape},
		{"js-hex", jsHex, jsUnhex},
		{"hex", func(s string) string { return hex.EncodeToString([]byte(s)) }, func(s string) (string, error) {
			b, err := hex.DecodeString(s)
			return string(b), err
		}},
	} {
		Register(c)
	}
}

// Base64Encode uses standard padded base64.
func Base64Encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// Base64Decode accepts padded or unpadded standard base64.
func Base64Decode(s string) (string, error) {
	s = strings.TrimSpace(s)
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var rawErr error
		if b, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr != nil {
			return "", err
		}
	}
	return string(b), nil
}

// URLEncode percent-encodes everything but unreserved characters; spaces
// become %20.
func URLEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// URLDecode reverses URLEncode and also accepts + for space.
func URLDecode(s string) (string, error) {
	return url.QueryUnescape(s)
}

// HTMLEncode escapes <, >, &, ' and ".
func HTMLEncode(s string) string { return html.EscapeString(s) }

// HTMLDecode resolves named and numeric entities.
func HTMLDecode(s string) string { return html.UnescapeString(s) }

func entities(s, format string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<', '>', '"', '\'', '&':
			fmt.Fprintf(&b, format, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unicodeEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r > 31 && r < 127 && !strings.ContainsRune(`<>"'&\`, r) {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			fmt.Fprintf(&b, `\u{%x}`, r)
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String()
}

func unicodeUnescape(s string) (string, error) {
	return strconv.Unquote(`"` + strings.ReplaceAll(unbrace(s), `"`, `\"`) + `"`)
}

// unbrace rewrites \u{XXXXX} escapes, which strconv does not know, to \UXXXXXXXX.
func unbrace(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, `\u{`)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		digits := s[i+3 : i+j]
		if len(digits) < 8 {
			digits = strings.Repeat("0", 8-len(digits)) + digits
		}
		b.WriteString(`\U` + digits)
		s = s[i+j+1:]
	}
}

func jsHex(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		fmt.Fprintf(&b, `\x%02x`, c)
	}
	return b.String()
}

func jsUnhex(s string) (string, error) {
	var out []byte
	for i := 0; i < len(s); {
		if i+3 < len(s) && s[i] == '\\' && s[i+1] == 'x' {
			v, err := strconv.ParseUint(s[i+2:i+4], 16, 8)
			if err != nil {
				return "", fmt.Errorf("js-hex at %d: %w", i, err)
			}
			out = append(out, byte(v))
			i += 4
			continue
		}
		out = append(out, s[i])
		i++
	}
	return string(out), nil
}
