package xss

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-scan/lotus/pkg/htmlutil"
)

const seed = "LOTUSSEED"

// assertLands reflects every payload into page in place of seed and checks
// its selector finds the element the payload created, and nothing before.
func assertLands(t *testing.T, page string, payloads []Payload) {
	t.Helper()
	require.NotEmpty(t, payloads)
	for _, p := range payloads {
		before, err := htmlutil.Search(page, p.Search)
		require.NoError(t, err, p.Search)
		assert.Empty(t, before, "selector %q matches the clean page", p.Search)

		reflected := strings.Replace(page, seed, p.Payload, 1)
		found, err := htmlutil.Search(reflected, p.Search)
		require.NoError(t, err, p.Search)
		assert.NotEmpty(t, found, "payload %q not found by %q", p.Payload, p.Search)
	}
}

func TestGenerate_Text(t *testing.T) {
	page := `<html><body><p>hello ` + seed + `</p></body></html>`
	g := New(Config{})

	payloads := g.Generate(page, htmlutil.Text, seed)
	assertLands(t, page, payloads)

	var hasImg, hasPlain bool
	for _, p := range payloads {
		if p.Payload == `<img src=x onerror=confirm(1)>` {
			hasImg = true
			assert.Equal(t, `img[onerror="confirm(1)"][src="x"]`, p.Search)
		}
		if p.Payload == `<lotusxss></lotusxss>` {
			hasPlain = true
			assert.Equal(t, "lotusxss", p.Search)
		}
	}
	assert.True(t, hasImg)
	assert.True(t, hasPlain)
}

func TestGenerate_Comment(t *testing.T) {
	page := `<html><body><!-- debug: ` + seed + ` --></body></html>`
	payloads := New(Config{}).Generate(page, htmlutil.Comment, seed)
	assertLands(t, page, payloads)
	for _, p := range payloads {
		assert.True(t, strings.HasPrefix(p.Payload, commentBreakout), p.Payload)
	}
}

func TestGenerate_TagName(t *testing.T) {
	page := `<html><body><div><` + seed + `></div></body></html>`
	payloads := New(Config{}).Generate(page, htmlutil.TagName, seed)
	assertLands(t, page, payloads)

	cfg := DefaultConfig()
	want := len(cfg.Attrs) * len(cfg.Funcs) * len(cfg.Values) * 2 * len(paddings)
	assert.Len(t, payloads, want)

	var backtick bool
	for _, p := range payloads {
		if strings.Contains(p.Payload, "alert`1`") {
			backtick = true
		}
	}
	assert.True(t, backtick)
}

func TestGenerate_AttrName(t *testing.T) {
	page := `<html><body><a ` + seed + `=1 href="/">x</a></body></html>`
	assertLands(t, page, New(Config{}).Generate(page, htmlutil.AttrName, seed))
}

func TestGenerate_AttrValueDoubleQuote(t *testing.T) {
	page := `<html><body><a href="` + seed + `">x</a></body></html>`
	payloads := New(Config{}).Generate(page, htmlutil.AttrValue, seed)
	assertLands(t, page, payloads)

	var quoted bool
	for _, p := range payloads {
		if strings.HasPrefix(p.Payload, `"`) {
			quoted = true
		}
		assert.False(t, strings.HasPrefix(p.Payload, `'`), p.Payload)
	}
	assert.True(t, quoted)
}

func TestGenerate_AttrValueSingleQuote(t *testing.T) {
	page := `<html><body><input value='q=` + seed + `'></body></html>`
	payloads := New(Config{}).Generate(page, htmlutil.AttrValue, seed)
	assertLands(t, page, payloads)
	for _, p := range payloads {
		assert.True(t, strings.HasPrefix(p.Payload, `'`), p.Payload)
	}
}

func TestGenerate_AttrValueUnquoted(t *testing.T) {
	page := `<html><body><a class="c" href=` + seed + `>x</a></body></html>`
	payloads := New(Config{}).Generate(page, htmlutil.AttrValue, seed)
	assertLands(t, page, payloads)
	for _, p := range payloads {
		assert.True(t, strings.HasPrefix(p.Payload, " "), p.Payload)
	}
}

func TestDetectQuote(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`<a href="x` + seed + `">`, `"`},
		{`<a href = '` + seed + `'>`, `'`},
		{`<a href=` + seed + `>`, ""},
		{`<p>` + seed + `</p>`, ""},
		{`<a title="a.b(c)" data-x="` + seed + `">`, `"`},
	}
	for _, tt := range tests {
		if got := detectQuote(tt.body, seed); got != tt.want {
			t.Errorf("detectQuote(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
	if got := detectQuote(`<a href="(x)">`, "(x)"); got != `"` {
		t.Errorf("metacharacters in seed: got %q", got)
	}
}

func TestGenerate_CustomConfigAndUnknownKind(t *testing.T) {
	g := New(Config{
		Tags:   []string{`<b id=$JS_FUNC$$JS_CMD$>`},
		Funcs:  []string{"f"},
		Values: []string{"1", "2"},
	})
	got := g.Generate("", htmlutil.Text, seed)
	assert.Equal(t, []Payload{
		{Search: `b[id="f1"]`, Payload: `<b id=f1>`},
		{Search: `b[id="f2"]`, Payload: `<b id=f2>`},
	}, got)

	assert.Empty(t, g.Generate("", htmlutil.Kind(99), seed))
}
