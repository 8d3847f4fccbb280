package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
)

func testConfig() config.HTTPConfig {
	cfg := config.Default().HTTP
	cfg.RequestDelay = 0
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestFetchSendsConfiguredHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body>ok</body></html>`))
	}))
	defer server.Close()

	cfg := testConfig()
	f := New(cfg, nil, nil)

	resp, err := f.Fetch(context.Background(), server.URL+"/annonces")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, server.URL+"/annonces", resp.FinalURL)
	assert.Contains(t, string(resp.Body), "ok")
	assert.True(t, IsHTML(resp.ContentType))
	assert.Equal(t, cfg.UserAgent, got.Get("User-Agent"))
	assert.Equal(t, cfg.Accept, got.Get("Accept"))
	assert.Equal(t, cfg.AcceptLanguage, got.Get("Accept-Language"))
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`<html><body>enfin</body></html>`))
	}))
	defer server.Close()

	m := metrics.New()
	f := New(testConfig(), nil, m)

	resp, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "enfin")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchRetries))
}

func TestFetchGivesUpAfterRetryCount(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryCount = 2
	f := New(cfg, nil, nil)

	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusTooManyRequests, fe.Status)
	assert.Equal(t, 3, fe.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := New(testConfig(), nil, nil)

	_, err := f.Fetch(context.Background(), server.URL+"/absent")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchReportsRedirectTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/ventes/", http.StatusMovedPermanently)
			return
		}
		w.Write([]byte(`<html></html>`))
	}))
	defer server.Close()

	f := New(testConfig(), nil, nil)
	resp, err := f.Fetch(context.Background(), server.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/ventes/", resp.FinalURL)
}

func TestFetchHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	f := New(cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, server.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAllowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
		default:
			w.Write([]byte(`<html></html>`))
		}
	}))
	defer server.Close()

	m := metrics.New()
	f := New(testConfig(), nil, m)
	ctx := context.Background()

	assert.True(t, f.Allowed(ctx, server.URL+"/public/page"))
	assert.False(t, f.Allowed(ctx, server.URL+"/private/page"))
	assert.True(t, f.Allowed(ctx, server.URL+"/"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("disallowed")))
}

func TestAllowedWithoutRobotsFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := New(testConfig(), nil, nil)
	assert.True(t, f.Allowed(context.Background(), server.URL+"/private/page"))
}

func TestResponseUTF8(t *testing.T) {
	latin1 := &Response{
		Body:        []byte("<html><head><title>Ventes aux ench\xe8res</title></head></html>"),
		ContentType: "text/html; charset=iso-8859-1",
	}
	doc, err := latin1.Document()
	require.NoError(t, err)
	assert.Equal(t, "Ventes aux enchères", doc.Find("title").Text())

	undeclared := &Response{Body: []byte("<p>Fonds de commerce à céder</p>"), ContentType: "text/html"}
	assert.Equal(t, "<p>Fonds de commerce à céder</p>", string(undeclared.UTF8()))

	meta := &Response{Body: []byte(`<meta charset="windows-1252"><p>Cr\xe9ances</p>`), ContentType: "text/html"}
	assert.Contains(t, string(meta.UTF8()), "Créances")
}

func TestIsHTML(t *testing.T) {
	assert.True(t, IsHTML("text/html; charset=utf-8"))
	assert.True(t, IsHTML("application/xhtml+xml"))
	assert.True(t, IsHTML(""))
	assert.False(t, IsHTML("application/pdf"))
	assert.False(t, IsHTML("image/png"))
}
