package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
)

// Analyzer locates the listing pages of a site and the layout of their records
type Analyzer struct {
	config     *Config
	fetcher    fetcher.Fetcher
	classifier *Classifier
	detector   *Detector
	log        logrus.FieldLogger
	now        func() time.Time
}

// Config holds analyzer configuration
type Config struct {
	Classifier     config.ClassifierConfig
	InterSiteDelay time.Duration // pause between two sites of a batch
}

// ConfigFrom derives the analyzer configuration from the application
// configuration. Sites of a batch are spaced by twice the request delay.
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Classifier:     cfg.Classifier,
		InterSiteDelay: 2 * cfg.HTTP.RequestDelay,
	}
}

// New creates a new Analyzer instance
func New(cfg *Config, f fetcher.Fetcher, log logrus.FieldLogger, m *metrics.Metrics) *Analyzer {
	if log == nil {
		log = logging.Discard()
	}
	return &Analyzer{
		config:     cfg,
		fetcher:    f,
		classifier: NewClassifier(cfg.Classifier, f, log, m),
		detector:   NewDetector(f, log),
		log:        log,
		now:        time.Now,
	}
}

// Classifier exposes the link classifier used by the analyzer
func (a *Analyzer) Classifier() *Classifier { return a.classifier }

// Detector exposes the structure detector used by the analyzer
func (a *Analyzer) Detector() *Detector { return a.detector }

// AnalyzeSite checks that baseURL answers, discovers its listing pages and
// detects the layout of the first one. Failures are reported in the result.
func (a *Analyzer) AnalyzeSite(ctx context.Context, baseURL string) *models.SiteAnalysis {
	log := a.log.WithField("url", baseURL)
	result := &models.SiteAnalysis{
		BaseURL:      baseURL,
		ListingPages: []string{},
		AnalyzedAt:   a.now(),
	}

	resp, err := a.fetcher.Fetch(ctx, baseURL)
	if err != nil {
		log.WithError(err).Error("site unreachable")
		result.Error = err.Error()
		return result
	}
	result.Accessible = true

	doc, err := resp.Document()
	if err != nil {
		result.Error = fmt.Sprintf("parsing home page: %v", err)
		return result
	}

	base := resp.FinalURL
	if base == "" {
		base = baseURL
	}
	pages, strategy, err := a.classifier.Classify(ctx, doc, base)
	if err != nil {
		log.WithError(err).Error("listing discovery failed")
		result.Error = err.Error()
		return result
	}
	if len(pages) == 0 {
		log.Info("no listing page found")
		return result
	}

	result.ListingPages = pages
	result.Strategy = strategy
	result.Structure = a.detector.Detect(ctx, pages[0])

	log.WithFields(logrus.Fields{"pages": len(pages), "strategy": strategy}).Info("analysis finished")
	return result
}

// AnalyzeSites analyzes each site in turn, pausing between sites. It stops
// early when ctx is done and returns the analyses completed so far.
func (a *Analyzer) AnalyzeSites(ctx context.Context, sites []string) []*models.SiteAnalysis {
	results := make([]*models.SiteAnalysis, 0, len(sites))
	for i, site := range sites {
		if i > 0 && !pause(ctx, a.config.InterSiteDelay) {
			break
		}
		a.log.WithFields(logrus.Fields{"site": site, "index": i + 1, "total": len(sites)}).Info("analyzing site")
		results = append(results, a.AnalyzeSite(ctx, site))
	}
	return results
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
