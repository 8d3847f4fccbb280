package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

// Runner is anything that can crawl a site
type Runner interface {
	Crawl(ctx context.Context) (*models.CrawlResult, error)
}

// VisitedSet records canonical URLs already taken from the frontier. Add
// reports false when the URL was present.
type VisitedSet interface {
	Add(ctx context.Context, url string) (bool, error)
}

// Page is a successfully fetched page handed to the Visit hook
type Page struct {
	URL      string // canonical URL taken from the frontier
	FinalURL string // URL after redirects, the base for relative links
	Depth    int
	Doc      *goquery.Document
	Body     []byte
}

// VisitFunc observes every page the crawler fetches. It runs on worker
// goroutines and must be safe for concurrent use.
type VisitFunc func(ctx context.Context, page *Page)

// Options contains configuration for the crawler
type Options struct {
	SeedURL           string        // First page, depth 0
	Scope             string        // Host links must belong to
	MaxPages          int           // Visited pages cap
	Workers           int           // Concurrent fetches
	Timeout           time.Duration // Overall crawl deadline, 0 for none
	FollowRobotsTxt   bool          // Respect robots.txt
	IncludeSubdomains bool          // Match scope on eTLD+1

	Visit   VisitFunc
	Visited VisitedSet // defaults to an in-memory set
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// OptionsFromConfig maps the crawler section of the configuration onto
// Options for one seed. The scope is the seed host.
func OptionsFromConfig(cfg config.CrawlerConfig, seedURL string) Options {
	return Options{
		SeedURL:           seedURL,
		Scope:             utils.Hostname(seedURL),
		MaxPages:          cfg.MaxPages,
		Workers:           cfg.Workers,
		Timeout:           cfg.CrawlTimeout,
		FollowRobotsTxt:   cfg.FollowRobotsTxt,
		IncludeSubdomains: cfg.IncludeSubdomains,
	}
}
