package metrics

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	r.Unit("url", OutcomeOK)
	r.Unit("url", OutcomeOK)
	r.Unit("host", OutcomeError)
	r.HTTPRequest("ok", 10*time.Millisecond)
	r.HTTPRequest("timeout_error", time.Second)
	r.Finding("Vuln")
	r.RateLimitSleep()
	r.ScriptError()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.unitsTotal.WithLabelValues("url", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.unitsTotal.WithLabelValues("host", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequestsTotal.WithLabelValues("timeout_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.findingsTotal.WithLabelValues("Vuln")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rateLimitSleeps))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scriptErrors))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Unit("url", OutcomeOK)
		r.HTTPRequest("ok", time.Millisecond)
		r.Finding("CVE")
		r.RateLimitSleep()
		r.ScriptError()
	})
}

func TestRecorder_Serve(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	r.Finding("Vuln")

	srv, err := r.Serve("127.0.0.1:0", nil)
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `lotus_findings_total{kind="Vuln"} 1`)
	assert.Contains(t, string(body), "lotus_ratelimit_sleeps_total 0")
}
