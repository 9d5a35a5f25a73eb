package finding

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinding_VulnJSON(t *testing.T) {
	data, err := NewVuln(Vulnerability{Name: "x", URL: "http://t/"}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"Vuln":{"name":"x","url":"http://t/"}}`, string(data))
}

func TestFinding_CVEJSON(t *testing.T) {
	f := NewCVE(CVE{
		Name: "CVE-2021-41773",
		Risk: "high",
		Matchers: []Matcher{
			{Kind: StatusCode, Value: 200},
			{Kind: ResponseBody, Value: "root:x:0:0"},
		},
	})
	data, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"CVE":{"name":"CVE-2021-41773","risk":"high","matchers":[{"StatusCode":200},{"ResponseBody":"root:x:0:0"}]}}`, string(data))
	assert.Equal(t, High, f.Severity())
	assert.Equal(t, "CVE", f.Kind())
}

func TestFinding_RawJSON(t *testing.T) {
	data, err := NewRaw(map[string]any{"custom": true}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"custom":true}`, string(data))

	_, err = Finding{}.MarshalJSON()
	assert.ErrorIs(t, err, ErrEmptyFinding)
}

func TestParseMatcherKind(t *testing.T) {
	for _, k := range []string{"RawResponse", "ResponseHeaders", "ResponseBody", "StatusCode", "General"} {
		got, err := ParseMatcherKind(k)
		require.NoError(t, err)
		assert.Equal(t, MatcherKind(k), got)
	}
	_, err := ParseMatcherKind("Body")
	assert.ErrorIs(t, err, ErrUnknownMatcher)
}

func TestSink_MarshalLine(t *testing.T) {
	s := NewSink()
	line, err := s.MarshalLine()
	require.NoError(t, err)
	assert.Nil(t, line)

	s.Add(NewVuln(Vulnerability{Name: "a"}))
	s.Add(NewVuln(Vulnerability{Name: "b", Risk: "low"}))
	line, err = s.MarshalLine()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Vuln":{"name":"a"}},{"Vuln":{"name":"b","risk":"low"}}]`, string(line))
	assert.NotContains(t, string(line), "\n")
}

func TestSink_ConcurrentAdd(t *testing.T) {
	s := NewSink()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(NewRaw(1))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, Critical, ParseSeverity(" CRITICAL "))
	assert.Equal(t, Medium, ParseSeverity("moderate"))
	assert.Equal(t, Unknown, ParseSeverity("spicy"))
	assert.Greater(t, High.Score(), Low.Score())
}
