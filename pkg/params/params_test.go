package params

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Message {
	t.Helper()
	m, err := Parse(raw)
	require.NoError(t, err)
	return m
}

func TestParams_OrderAndDecode(t *testing.T) {
	m := mustParse(t, "http://t/p?b=2&a=x%20y&flag&c=")
	assert.Equal(t, []Param{{"b", "2"}, {"a", "x y"}, {"flag", ""}, {"c", ""}}, m.Params())
	assert.Equal(t, "b=2&a=x%20y&flag&c=", m.RawQuery())
	assert.Equal(t, "/p", m.Path())
	assert.Equal(t, "t", m.Host())
}

func TestSetParam_ReplaceRoundTrip(t *testing.T) {
	m := mustParse(t, "http://t/p?id=1&q=test&lang=en")
	out := m.SetParam("q", `"><svg onload=alert(1)>`, true)

	u, err := url.Parse(out)
	require.NoError(t, err)
	vals := u.Query()
	assert.Len(t, vals, 3)
	assert.Equal(t, "1", vals.Get("id"))
	assert.Equal(t, "en", vals.Get("lang"))
	assert.Equal(t, `"><svg onload=alert(1)>`, vals.Get("q"))

	// message unchanged
	assert.Equal(t, "http://t/p?id=1&q=test&lang=en", m.URL())

	back := mustParse(t, out)
	names := []string{}
	for _, p := range back.Params() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"id", "q", "lang"}, names)
}

func TestSetParam_Append(t *testing.T) {
	m := mustParse(t, "http://t/?q=abc")
	out := m.SetParam("q", "'", false)
	assert.Equal(t, "http://t/?q=abc%27", out)
}

func TestSetParam_Missing(t *testing.T) {
	m := mustParse(t, "http://t/?a=1")
	assert.Equal(t, "http://t/?a=1&new=v%20w", m.SetParam("new", "v w", true))
}

func TestSetParam_KeepsUntouchedEncoding(t *testing.T) {
	m := mustParse(t, "http://t/?keep=a+b%2Fc&x=1#frag")
	assert.Equal(t, "http://t/?keep=a+b%2Fc&x=2#frag", m.SetParam("x", "2", true))
}

func TestSetAllParams(t *testing.T) {
	m := mustParse(t, "http://t/?a=1&b=2&a=3")
	got := m.SetAllParams("X", true)
	require.Len(t, got, 2)
	assert.Equal(t, Variant{Name: "a", URL: "http://t/?a=X&b=2&a=X"}, got[0])
	assert.Equal(t, Variant{Name: "b", URL: "http://t/?a=1&b=X&a=3"}, got[1])
}

func TestJoinAndSetURL(t *testing.T) {
	m := mustParse(t, "http://t/dir/page?x=1")
	j, err := m.Join("../admin")
	require.NoError(t, err)
	assert.Equal(t, "http://t/admin", j)

	j, err = m.Join("?y=2")
	require.NoError(t, err)
	assert.Equal(t, "http://t/dir/page?y=2", j)

	require.NoError(t, m.SetURL("https://other/?z=9"))
	assert.Equal(t, "https://other/?z=9", m.URL())
	assert.Equal(t, "/", m.Path())

	assert.ErrorIs(t, m.SetURL("relative/path"), ErrInvalidURL)
	_, err = Parse("::nope")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
