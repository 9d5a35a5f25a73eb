package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	body := `<html><body>
<p>hello REFLECT world</p>
<a href="/x?q=REFLECT" REFLECTattr=1>link</a>
<!-- debug REFLECT -->
<REFLECTtag></REFLECTtag>
</body></html>`

	got := Locate(body, "REFLECT")
	kinds := make([]Kind, len(got))
	for i, l := range got {
		kinds[i] = l.Kind
	}
	assert.Equal(t, []Kind{Text, AttrValue, AttrName, Comment, TagName}, kinds)
	assert.Equal(t, "hello REFLECT world", got[0].Value)
	assert.Equal(t, "/x?q=REFLECT", got[1].Value)
	assert.Equal(t, "reflectattr", got[2].Value)
	assert.Equal(t, " debug REFLECT ", got[3].Value)
}

func TestLocate_NoHit(t *testing.T) {
	assert.Empty(t, Locate("<p>nothing</p>", "REFLECT"))
	assert.Empty(t, Locate("<p>x</p>", ""))
}

func TestSelector(t *testing.T) {
	sel, err := Selector(`<img src=x onerror="alert(1)">`)
	require.NoError(t, err)
	assert.Equal(t, `img[onerror="alert(1)"][src="x"]`, sel)

	sel, err = Selector(`<svg/onload=confirm(1)>`)
	require.NoError(t, err)
	assert.Equal(t, `svg[onload="confirm(1)"]`, sel)

	sel, err = Selector(`<a title='say "hi"'>`)
	require.NoError(t, err)
	assert.Equal(t, `a[title="say \"hi\""]`, sel)

	_, err = Selector("just text")
	assert.ErrorIs(t, err, ErrNoElement)
}

func TestSelectorMatchesItsFragment(t *testing.T) {
	for _, frag := range []string{
		`<img src=x onerror=prompt(1)>`,
		`<details open ontoggle="alert(1)">`,
		`<a title='say "hi"'>x</a>`,
		"<svg\tonload=alert(1)>",
	} {
		sel, err := Selector(frag)
		require.NoError(t, err, frag)
		found, err := Search("<html><body>"+frag+"</body></html>", sel)
		require.NoError(t, err, sel)
		assert.Len(t, found, 1, "selector %s for %s", sel, frag)
	}
}

func TestSearch(t *testing.T) {
	body := `<div><a class="x" href="/1">one</a><a href="/2">two</a></div>`

	found, err := Search(body, "a.x")
	require.NoError(t, err)
	assert.Equal(t, []string{`<a class="x" href="/1">one</a>`}, found)

	found, err = Search(body, `a[href="/none"]`)
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = Search(body, "a[")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("attrvalue")
	assert.True(t, ok)
	assert.Equal(t, AttrValue, k)
	_, ok = ParseKind("nope")
	assert.False(t, ok)
	assert.Equal(t, "Comment", Comment.String())
}

func TestAttrSelector(t *testing.T) {
	sel := AttrSelector("onFocus", "alert`1`")
	assert.Equal(t, "[onfocus=\"alert`1`\"]", sel)
	found, err := Search(`<x onfocus=alert`+"`1`"+`>`, sel)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
