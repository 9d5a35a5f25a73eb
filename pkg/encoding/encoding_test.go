package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payloads := []string{
		"",
		"<script>alert(1)</script>",
		"a b&c=d/é",
		"'\"\\ \t\n",
		"日本語 😀",
	}
	for _, name := range List() {
		for _, p := range payloads {
			enc, err := Encode(name, p)
			require.NoError(t, err, name)
			dec, err := Decode(name, enc)
			require.NoError(t, err, "%s(%q) -> %q", name, p, enc)
			assert.Equal(t, p, dec, "%s(%q) -> %q", name, p, enc)
		}
	}
}

func TestBase64(t *testing.T) {
	assert.Equal(t, "bG90dXM=", Base64Encode("lotus"))
	got, err := Base64Decode("bG90dXM")
	require.NoError(t, err)
	assert.Equal(t, "lotus", got)

	_, err = Base64Decode("!!!")
	assert.Error(t, err)
}

func TestURLEncode(t *testing.T) {
	assert.Equal(t, "a%20b%26c%3Dd", URLEncode("a b&c=d"))
	got, err := URLDecode("a+b%20c")
	require.NoError(t, err)
	assert.Equal(t, "a b c", got)
}

func TestHTML(t *testing.T) {
	assert.Equal(t, "&lt;a href=&#34;x&#34;&gt;", HTMLEncode(`<a href="x">`))
	assert.Equal(t, `<a href="x">`, HTMLDecode("&lt;a href=&quot;x&quot;&gt;"))
	out, err := Encode("html-hex", "<")
	require.NoError(t, err)
	assert.Equal(t, "&#x3c;", out)
}

func TestChainAndUnknown(t *testing.T) {
	out, err := Chain("<", "url", "base64")
	require.NoError(t, err)
	assert.Equal(t, Base64Encode("%3C"), out)

	_, err = Encode("rot13", "x")
	assert.ErrorIs(t, err, ErrUnknownEncoder)
	assert.Nil(t, Get("rot13"))
}
