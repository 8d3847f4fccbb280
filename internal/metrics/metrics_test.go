package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncFetch("ok")
		m.IncRetry()
		m.IncPage("visited")
		m.AddRecords("heuristic", 3)
		m.IncItemError()
		m.IncRejected()
		m.SetStage("sector", 2)
	})
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncFetch("ok")
	m.IncFetch("ok")
	m.IncFetch("failed")
	m.AddRecords("row", 4)
	m.SetStage("location", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ExtractRecords.WithLabelValues("row")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilterStage.WithLabelValues("location")))
}

func TestRouter(t *testing.T) {
	m := New()
	m.IncRetry()
	srv := httptest.NewServer(Router(m))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "listingsmith_fetch_retries_total 1")
}
