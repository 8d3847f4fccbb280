package crawler

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

// Crawler explores one site breadth-first from a seed URL
type Crawler struct {
	opts    Options
	seed    string
	fetcher fetcher.Fetcher
	robots  fetcher.RobotsChecker
	log     logrus.FieldLogger
}

// New validates opts and returns a crawler fetching through f. When robots.txt
// is followed, f must also implement fetcher.RobotsChecker.
func New(opts Options, f fetcher.Fetcher) (*Crawler, error) {
	if opts.SeedURL == "" {
		return nil, &config.Error{Field: "seed_url", Reason: "missing"}
	}
	seed, err := utils.Canonicalize(opts.SeedURL)
	if err != nil || !utils.IsPageURL(seed) {
		return nil, &config.Error{Field: "seed_url", Reason: "not an absolute http(s) URL: " + opts.SeedURL}
	}
	if opts.Scope == "" {
		return nil, &config.Error{Field: "scope", Reason: "empty domain scope"}
	}
	if opts.MaxPages <= 0 {
		return nil, &config.Error{Field: "crawler.max_pages", Reason: "must be positive"}
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Visited == nil {
		opts.Visited = NewMemoryVisitedSet()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	c := &Crawler{
		opts:    opts,
		seed:    seed,
		fetcher: f,
		log:     opts.Logger.WithField("scope", opts.Scope),
	}
	if opts.FollowRobotsTxt {
		if rc, ok := f.(fetcher.RobotsChecker); ok {
			c.robots = rc
		}
	}
	return c, nil
}

// Crawl runs the crawl until the frontier drains, the page cap is reached or
// the deadline passes. Pages that fail to fetch stay in the result, marked
// failed. An error is returned only when ctx itself is cancelled or the
// visited set fails.
func (c *Crawler) Crawl(ctx context.Context) (*models.CrawlResult, error) {
	start := time.Now()

	crawlCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	fr := newFrontier(c.seed, c.opts.MaxPages, c.opts.Visited)
	c.log.WithFields(logrus.Fields{"seed": c.seed, "max_pages": c.opts.MaxPages, "workers": c.opts.Workers}).Info("crawl started")

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(crawlCtx)
	for i := 0; i < c.opts.Workers; i++ {
		g.Go(func() error {
			for {
				e, ok, err := fr.next(gctx)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				links, visitErr := c.visit(gctx, fr, e)
				if visitErr != nil {
					failed.Add(1)
				}
				fr.done(e, links)
			}
		})
	}
	err := g.Wait()

	hier := fr.hierarchy()
	result := &models.CrawlResult{
		SeedURL:    c.seed,
		Domain:     c.opts.Scope,
		URLs:       hier.URLs(),
		Hierarchy:  hier,
		TotalPages: hier.Len(),
		ErrorCount: int(failed.Load()),
		CrawlTime:  start,
		Duration:   time.Since(start),
	}

	if errors.Is(crawlCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		c.log.WithField("timeout", c.opts.Timeout).Warn("crawl deadline reached, returning partial result")
	}
	c.log.WithFields(logrus.Fields{"pages": result.TotalPages, "errors": result.ErrorCount, "duration": result.Duration}).Info("crawl finished")

	if err != nil {
		return result, err
	}
	return result, ctx.Err()
}

// visit fetches one page and returns the canonical in-scope links it holds
func (c *Crawler) visit(ctx context.Context, fr *frontier, e entry) ([]string, error) {
	log := c.log.WithFields(logrus.Fields{"url": e.url, "depth": e.depth})

	resp, err := c.fetcher.Fetch(ctx, e.url)
	if err != nil {
		fr.markFailed(e.id)
		c.opts.Metrics.IncPage("failed")
		log.WithError(err).Warn("fetch failed")
		return nil, err
	}
	if !fetcher.IsHTML(resp.ContentType) {
		c.opts.Metrics.IncPage("skipped")
		log.WithField("content_type", resp.ContentType).Debug("not a web page")
		return nil, nil
	}

	body := resp.UTF8()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		fr.markFailed(e.id)
		c.opts.Metrics.IncPage("failed")
		log.WithError(err).Warn("parse failed")
		return nil, err
	}

	fr.setTitle(e.id, pageTitle(body, doc))
	c.opts.Metrics.IncPage("visited")
	log.Debug("crawled")

	base := resp.FinalURL
	if base == "" {
		base = e.url
	}
	links := c.links(ctx, doc, base)

	if c.opts.Visit != nil {
		c.opts.Visit(ctx, &Page{
			URL:      e.url,
			FinalURL: base,
			Depth:    e.depth,
			Doc:      doc,
			Body:     body,
		})
	}
	return links, nil
}

// links collects the anchors of doc resolved against base, canonicalized and
// restricted to the crawl scope
func (c *Crawler) links(ctx context.Context, doc *goquery.Document, base string) []string {
	var out []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, err := utils.Resolve(base, href)
		if err != nil || !utils.IsPageURL(abs) {
			return
		}
		key, err := utils.Canonicalize(abs)
		if err != nil || seen[key] {
			return
		}
		if !utils.InScope(key, c.opts.Scope, c.opts.IncludeSubdomains) {
			return
		}
		seen[key] = true
		if c.robots != nil && !c.robots.Allowed(ctx, key) {
			c.log.WithField("url", key).Debug("disallowed by robots.txt")
			return
		}
		out = append(out, key)
	})
	return out
}

// pageTitle is the <title> element. Pages without one get the title
// trafilatura finds in their metadata (og:title, first heading).
func pageTitle(body []byte, doc *goquery.Document) string {
	if title := utils.CleanText(doc.Find("title").First().Text()); title != "" {
		return title
	}
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{})
	if err == nil && result != nil {
		return utils.CleanText(result.Metadata.Title)
	}
	return ""
}
