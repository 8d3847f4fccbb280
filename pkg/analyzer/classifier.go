package analyzer

import (
	"context"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/crawler"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

// Classifier finds the listing pages of a site from its home page
type Classifier struct {
	keywords         []string
	crawlMaxPages    int
	densityThreshold int
	fetcher          fetcher.Fetcher
	log              logrus.FieldLogger
	metrics          *metrics.Metrics
}

// NewClassifier builds a classifier over the configured keyword vocabulary
func NewClassifier(cfg config.ClassifierConfig, f fetcher.Fetcher, log logrus.FieldLogger, m *metrics.Metrics) *Classifier {
	if log == nil {
		log = logging.Discard()
	}
	threshold := cfg.DensityThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &Classifier{
		keywords:         utils.LowerAll(cfg.Keywords),
		crawlMaxPages:    cfg.CrawlMaxPages,
		densityThreshold: threshold,
		fetcher:          f,
		log:              log,
		metrics:          m,
	}
}

// Classify runs the three discovery tiers in order and stops at the first
// that finds something: navigation anchors, then every anchor, then a
// bounded crawl scored by keyword density.
func (c *Classifier) Classify(ctx context.Context, doc *goquery.Document, baseURL string) ([]string, models.DiscoveryStrategy, error) {
	if links := c.FromNavigation(doc, baseURL); len(links) > 0 {
		return links, models.StrategyNavigation, nil
	}
	if links := c.FromContent(doc, baseURL); len(links) > 0 {
		return links, models.StrategyContent, nil
	}
	links, err := c.FromCrawl(ctx, baseURL)
	if err != nil {
		return nil, models.StrategyNone, err
	}
	if len(links) == 0 {
		return nil, models.StrategyNone, nil
	}
	return links, models.StrategyCrawl, nil
}

// FromNavigation matches the text of anchors inside nav and header elements
// and inside elements whose class names a menu or nav
func (c *Classifier) FromNavigation(doc *goquery.Document, baseURL string) []string {
	regions := doc.Find("nav, header").AddSelection(doc.Find("[class]").FilterFunction(utils.ClassFilter("menu", "nav")))

	found := newURLSet()
	regions.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := utils.Lower(utils.VisibleText(a))
		if kw, ok := utils.FirstContained(text, c.keywords); ok {
			href, _ := a.Attr("href")
			if u := found.add(baseURL, href); u != "" {
				c.log.WithFields(logrus.Fields{"url": u, "keyword": kw}).Debug("listing link in navigation")
			}
		}
	})
	return found.sorted()
}

// FromContent matches every anchor of the page on its text or its href
func (c *Classifier) FromContent(doc *goquery.Document, baseURL string) []string {
	found := newURLSet()
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := utils.Lower(utils.VisibleText(a))
		if _, ok := utils.FirstContained(text, c.keywords); ok {
			found.add(baseURL, href)
			return
		}
		if _, ok := utils.FirstContained(utils.Lower(href), c.keywords); ok {
			found.add(baseURL, href)
		}
	})
	return found.sorted()
}

// FromCrawl crawls the site from baseURL, capped at crawlMaxPages, and keeps
// the pages dense enough in vocabulary keywords
func (c *Classifier) FromCrawl(ctx context.Context, baseURL string) ([]string, error) {
	var mu sync.Mutex
	var pages []string

	opts := crawler.Options{
		SeedURL:  baseURL,
		Scope:    utils.Hostname(baseURL),
		MaxPages: c.crawlMaxPages,
		Workers:  1,
		Logger:   c.log,
		Metrics:  c.metrics,
		Visit: func(_ context.Context, p *crawler.Page) {
			if c.IsListingPage(p.Doc) {
				mu.Lock()
				pages = append(pages, p.URL)
				mu.Unlock()
				c.log.WithField("url", p.URL).Debug("listing page found by density")
			}
		},
	}
	cr, err := crawler.New(opts, c.fetcher)
	if err != nil {
		return nil, err
	}
	if _, err := cr.Crawl(ctx); err != nil {
		return nil, err
	}
	sort.Strings(pages)
	return pages, nil
}

// Density counts the occurrences of every vocabulary keyword in text
func (c *Classifier) Density(text string) int {
	return utils.CountOccurrences(utils.Lower(text), c.keywords)
}

// IsListingPage applies the density gate to the visible text of doc
func (c *Classifier) IsListingPage(doc *goquery.Document) bool {
	return c.Density(utils.VisibleText(doc.Selection)) >= c.densityThreshold
}

// urlSet collects canonical page URLs
type urlSet map[string]struct{}

func newURLSet() urlSet { return make(urlSet) }

// add resolves href against base and stores it. It returns the stored URL,
// or "" when href is not a page link.
func (s urlSet) add(base, href string) string {
	abs, err := utils.Resolve(base, href)
	if err != nil || !utils.IsPageURL(abs) {
		return ""
	}
	key, err := utils.Canonicalize(abs)
	if err != nil {
		return ""
	}
	s[key] = struct{}{}
	return key
}

func (s urlSet) sorted() []string {
	out := make([]string, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
