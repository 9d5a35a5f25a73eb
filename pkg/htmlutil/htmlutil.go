// Package htmlutil finds where a reflected value lands in an HTML document
// and builds CSS selectors that confirm a payload took effect.
package htmlutil

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoElement is returned when a fragment contains no element to select.
var ErrNoElement = errors.New("htmlutil: fragment has no element")

// Kind is the syntactic context a reflection was found in.
type Kind int

const (
	Text Kind = iota + 1
	TagName
	AttrName
	AttrValue
	Comment
)

var kindNames = map[Kind]string{
	Text:      "Text",
	TagName:   "TagName",
	AttrName:  "AttrName",
	AttrValue: "AttrValue",
	Comment:   "Comment",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k, true
		}
	}
	return 0, false
}

// Location is one reflection site. Value holds the full text of the node
// part that contained the payload.
type Location struct {
	Kind  Kind
	Value string
}

// Locate parses body and reports every node part containing payload, in
// document order. Tag and attribute names are compared case-insensitively
// since the parser lowercases them.
func Locate(body, payload string) []Location {
	if payload == "" {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	lower := strings.ToLower(payload)
	var out []Location
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if strings.Contains(n.Data, payload) {
				out = append(out, Location{Kind: Text, Value: n.Data})
			}
		case html.CommentNode:
			if strings.Contains(n.Data, payload) {
				out = append(out, Location{Kind: Comment, Value: n.Data})
			}
		case html.ElementNode:
			if strings.Contains(n.Data, lower) {
				out = append(out, Location{Kind: TagName, Value: n.Data})
			}
			for _, a := range n.Attr {
				if strings.Contains(a.Key, lower) {
					out = append(out, Location{Kind: AttrName, Value: a.Key})
				}
				if strings.Contains(a.Val, payload) {
					out = append(out, Location{Kind: AttrValue, Value: a.Val})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// Selector returns a CSS selector matching the first element of fragment,
// e.g. `img[src="x"][onerror="alert(1)"]`. Attributes are sorted by name.
func Selector(fragment string) (string, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return "", fmt.Errorf("htmlutil: parse fragment: %w", err)
	}

	el := firstElement(nodes)
	if el == nil {
		return "", ErrNoElement
	}

	attrs := make([]html.Attribute, len(el.Attr))
	copy(attrs, el.Attr)
	sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })

	var b strings.Builder
	b.WriteString(el.Data)
	for _, a := range attrs {
		fmt.Fprintf(&b, `[%s="%s"]`, a.Key, escapeValue(a.Val))
	}
	return b.String(), nil
}

func firstElement(nodes []*html.Node) *html.Node {
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n
		}
		if el := firstElement(children(n)); el != nil {
			return el
		}
	}
	return nil
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `, "\t", `\9 `, "\r", `\d `)

func escapeValue(s string) string { return valueEscaper.Replace(s) }

// AttrSelector matches any element whose attribute name equals value exactly.
func AttrSelector(name, value string) string {
	return fmt.Sprintf(`[%s="%s"]`, strings.ToLower(name), escapeValue(value))
}

// Search returns the outer HTML of every element in body matching selector.
func Search(body, selector string) ([]string, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmlutil: selector %q: %w", selector, err)
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("htmlutil: parse: %w", err)
	}

	matches := sel.MatchAll(doc)
	out := make([]string, 0, len(matches))
	for _, n := range matches {
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err != nil {
			return nil, fmt.Errorf("htmlutil: render: %w", err)
		}
		out = append(out, buf.String())
	}
	return out, nil
}
