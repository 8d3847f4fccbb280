package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
)

// robotsAgent is the product token matched against robots.txt groups
const robotsAgent = "listingsmith"

// Response is a fetched page
type Response struct {
	Status      int
	Body        []byte
	FinalURL    string
	ContentType string
}

// UTF8 returns the body transcoded to UTF-8 from the charset named by the
// Content-Type header, a byte order mark or a <meta> declaration. Without any
// of them, valid UTF-8 is kept and anything else is read as windows-1252.
func (r *Response) UTF8() []byte {
	rd, err := charset.NewReader(bytes.NewReader(r.Body), r.ContentType)
	if err != nil {
		return r.Body
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return r.Body
	}
	return b
}

// Document parses the UTF-8 body as HTML
func (r *Response) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(r.UTF8()))
}

// Fetcher retrieves one page
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// RobotsChecker reports whether a URL may be crawled
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// FetchError describes a fetch that did not produce a page. Transient errors
// (network, timeout, 5xx, 429) have already been retried when returned.
type FetchError struct {
	URL       string
	Status    int
	Attempts  int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a fetch failure worth retrying later
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// HTTPFetcher fetches pages over HTTP with the configured headers, a shared
// politeness limiter, bounded retries and a per-host robots.txt cache.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     config.HTTPConfig
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData
}

// New builds an HTTPFetcher. A zero request delay disables rate limiting.
func New(cfg config.HTTPConfig, log logrus.FieldLogger, m *metrics.Metrics) *HTTPFetcher {
	jar, _ := cookiejar.New(nil)
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	if log == nil {
		log = logging.Discard()
	}

	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}

	return &HTTPFetcher{
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout, Jar: jar},
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     log,
		metrics: m,
		robots:  make(map[string]*robotstxt.RobotsData),
	}
}

// Fetch performs a GET on rawURL. Network errors, 5xx and 429 responses are
// retried up to RetryCount times with a linear backoff; any other non-2xx
// status fails at once.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	log := f.log.WithField("url", rawURL)
	attempts := f.cfg.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *FetchError
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			f.metrics.IncRetry()
			if err := sleep(ctx, f.cfg.RetryDelay*time.Duration(attempt-1)); err != nil {
				return nil, &FetchError{URL: rawURL, Attempts: attempt - 1, Err: err}
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: rawURL, Attempts: attempt - 1, Err: err}
		}

		resp, err := f.do(ctx, rawURL)
		if err == nil {
			f.metrics.IncFetch("ok")
			return resp, nil
		}

		var fe *FetchError
		if !errors.As(err, &fe) {
			fe = &FetchError{URL: rawURL, Err: err}
		}
		fe.Attempts = attempt
		lastErr = fe

		if ctx.Err() != nil || !fe.Transient {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Debug("transient fetch failure")
	}

	f.metrics.IncFetch("failed")
	return nil, lastErr
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("building request: %w", err)}
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{
			URL:       rawURL,
			Status:    resp.StatusCode,
			Transient: retryableStatus(resp.StatusCode),
		}
	}

	var body io.Reader = resp.Body
	if f.cfg.MaxBodyBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("reading body: %w", err), Transient: true}
	}

	return &Response{
		Status:      resp.StatusCode,
		Body:        data,
		FinalURL:    resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (f *HTTPFetcher) setHeaders(req *http.Request) {
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Accept != "" {
		req.Header.Set("Accept", f.cfg.Accept)
	}
	if f.cfg.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Allowed checks rawURL against the robots.txt of its host. Hosts whose
// robots.txt cannot be fetched are treated as allowing everything.
func (f *HTTPFetcher) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	robots := f.robotsFor(ctx, u)
	if robots == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if !robots.TestAgent(path, robotsAgent) {
		f.metrics.IncFetch("disallowed")
		return false
	}
	return true
}

func (f *HTTPFetcher) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)

	f.robotsMu.Lock()
	robots, ok := f.robots[host]
	f.robotsMu.Unlock()
	if ok {
		return robots
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err == nil {
		f.setHeaders(req)
		var resp *http.Response
		resp, err = f.client.Do(req)
		if err == nil {
			robots, err = robotstxt.FromResponse(resp)
			resp.Body.Close()
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		f.log.WithField("url", robotsURL).WithError(err).Debug("robots.txt unavailable")
		robots = nil
	}

	f.robotsMu.Lock()
	f.robots[host] = robots
	f.robotsMu.Unlock()
	return robots
}

// IsHTML reports whether a Content-Type header names a web page
func IsHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mimeType := strings.TrimSpace(strings.Split(strings.ToLower(contentType), ";")[0])
	switch mimeType {
	case "text/html", "application/xhtml+xml", "application/xhtml", "text/xml", "application/xml":
		return true
	}
	return false
}
