package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotus-scan/lotus/pkg/checkpoint"
	"github.com/lotus-scan/lotus/pkg/target"
	"github.com/lotus-scan/lotus/pkg/ui"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &stdout, &stderr))
	assert.Equal(t, "lotus "+ui.Version+"\n", stdout.String())
}

func TestRun_UsageAndUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: lotus <command>")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"explode"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "explode"`)

	stdout.Reset()
	assert.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "scan")
}

func TestNew_WritesStarter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"new", "--type", "host", "--name", "open-redis"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), `SCAN_TYPE := "host"`)
	assert.Contains(t, stdout.String(), "open-redis")

	dir := t.TempDir()
	out := filepath.Join(dir, "check.tengo")
	require.Equal(t, 0, run([]string{"new", "-o", out}, &stdout, &stderr))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "main := func()")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"new", "-o", out}, &stdout, &stderr), "existing file needs --force")
	assert.Equal(t, 0, run([]string{"new", "-o", out, "--force"}, &stdout, &stderr))
}

func TestNew_UnknownType(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"new", "--type", "smtp"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown scan type "smtp"`)
}

const reflectScript = `
SCAN_TYPE := 2
main := func() {
	link := HttpMessage.setParam("q", "lotus-probe", true)
	resp := http.send(link)
	if is_error(resp) {
		return resp
	}
	if Matcher.match_body(resp.body, "lotus-probe") {
		Reports.add_vuln({name: "reflection", url: link, risk: "low", parameter: "q"})
	}
}
`

func reflectServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<p>"+r.URL.Query().Get("q")+"</p>")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestScan_EndToEnd(t *testing.T) {
	srv := reflectServer(t)
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "reflect.tengo", reflectScript)
	urls := writeFile(t, dir, "urls.txt", srv.URL+"/?q=1\n# comment\n\n"+srv.URL+"/a?q=2\n")
	out := filepath.Join(dir, "findings.jsonl")
	resume := filepath.Join(dir, "resume.cfg")

	var stdout, stderr bytes.Buffer
	code := run([]string{"scan", "--silent", "--urls", urls, "-o", out, "--resume", resume, scriptPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, `"name":"reflection"`)
		assert.Contains(t, line, `q=lotus-probe`)
	}

	cursors, err := checkpoint.Load(resume)
	require.NoError(t, err)
	assert.Equal(t, 2, cursors[target.URL])
}

func TestScan_FindingsGoToStdout(t *testing.T) {
	srv := reflectServer(t)
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "reflect.tengo", reflectScript)
	urls := writeFile(t, dir, "urls.txt", srv.URL+"/?q=1\n")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"scan", scriptPath, "--silent", "--urls", urls}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), `"Vuln"`)
	assert.True(t, strings.HasSuffix(stdout.String(), "\n"))
}

func TestScan_InputHandlerFromStdin(t *testing.T) {
	dir := t.TempDir()
	handler := writeFile(t, dir, "handler.tengo", `
parse_input := func(lines) {
	out := []
	for line in lines {
		out = append(out, {raw: line})
	}
	return out
}
`)
	scriptPath := writeFile(t, dir, "custom.tengo", `
SCAN_TYPE := "custom"
main := func() { Reports.add_raw(INPUT_DATA.raw) }
`)
	orig := scanStdin
	scanStdin = func() io.Reader { return strings.NewReader("alpha\nbeta\n") }
	t.Cleanup(func() { scanStdin = orig })

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"scan", "--silent", "--input-handler", handler, scriptPath}, &stdout, &stderr), stderr.String())
	got := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.ElementsMatch(t, []string{`["alpha"]`, `["beta"]`}, got)
}

func TestScan_NoTargetsFails(t *testing.T) {
	dir := t.TempDir()
	scriptPath := writeFile(t, dir, "s.tengo", `SCAN_TYPE := 2; main := func() {}`)
	urls := writeFile(t, dir, "urls.txt", "\n# nothing\n")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"scan", "--silent", "--urls", urls, scriptPath}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "[ERROR]")
}

func TestScan_BadFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"scan"}, &stdout, &stderr))
	assert.Equal(t, 1, run([]string{"scan", "--workers", "0", "x.tengo"}, &stdout, &stderr))
	assert.Equal(t, 0, run([]string{"scan", "-h"}, &stdout, &stderr))
}
