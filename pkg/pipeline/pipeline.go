// Package pipeline chains site analysis, record extraction, filtering and
// persistence for a batch of seed sites.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/internal/store"
	"github.com/amosWeiskopf/listingsmith/pkg/analyzer"
	"github.com/amosWeiskopf/listingsmith/pkg/crawler"
	"github.com/amosWeiskopf/listingsmith/pkg/directory"
	"github.com/amosWeiskopf/listingsmith/pkg/extractor"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
	"github.com/amosWeiskopf/listingsmith/pkg/filter"
	"github.com/amosWeiskopf/listingsmith/pkg/reporter"
	"github.com/amosWeiskopf/listingsmith/pkg/sink"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

// Pipeline owns one instance of every component, all sharing a fetcher
type Pipeline struct {
	cfg       *config.Config
	fetcher   fetcher.Fetcher
	analyzer  *analyzer.Analyzer
	extractor *extractor.Extractor
	filter    *filter.Engine
	reporter  *reporter.Reporter
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Result summarizes one run
type Result struct {
	Sites      []*models.SiteAnalysis
	Extracted  int
	Records    []models.Record // records that passed the filters
	Statistics models.Statistics
	Files      []string
}

// New wires the components from cfg. cfg is expected to be validated.
func New(cfg *config.Config, f fetcher.Fetcher, log logrus.FieldLogger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = logging.Discard()
	}
	return &Pipeline{
		cfg:       cfg,
		fetcher:   f,
		analyzer:  analyzer.New(analyzer.ConfigFrom(cfg), f, log, m),
		extractor: extractor.New(cfg.Extractor, f, log, m),
		filter:    filter.New(cfg.Filter.Criteria(), log, m),
		reporter:  reporter.New(),
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// Analyzer returns the site analyzer
func (p *Pipeline) Analyzer() *analyzer.Analyzer { return p.analyzer }

// Extractor returns the record extractor
func (p *Pipeline) Extractor() *extractor.Extractor { return p.extractor }

// Filter returns the filter engine
func (p *Pipeline) Filter() *filter.Engine { return p.filter }

// Crawl explores the site of seedURL and returns its hierarchy. crawlID names
// the shared visited set when the redis backend is configured; an empty
// crawlID gives the crawl a fresh one.
func (p *Pipeline) Crawl(ctx context.Context, seedURL, crawlID string) (*models.CrawlResult, error) {
	opts := crawler.OptionsFromConfig(p.cfg.Crawler, seedURL)
	opts.Logger = p.log
	opts.Metrics = p.metrics

	if crawlID == "" {
		crawlID = opts.Scope + ":" + strconv.FormatInt(p.now().Unix(), 10)
	}
	visited, release, err := p.visitedSet(ctx, crawlID)
	if err != nil {
		return nil, err
	}
	defer release()
	opts.Visited = visited

	c, err := crawler.New(opts, p.fetcher)
	if err != nil {
		return nil, err
	}
	return c.Crawl(ctx)
}

func (p *Pipeline) visitedSet(ctx context.Context, namespace string) (crawler.VisitedSet, func(), error) {
	if p.cfg.Crawler.VisitedBackend != "redis" {
		return crawler.NewMemoryVisitedSet(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: p.cfg.Crawler.RedisAddr})
	set := store.NewRedisVisitedSet(client, namespace, p.cfg.Crawler.RedisTTL)
	if err := set.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", p.cfg.Crawler.RedisAddr, err)
	}
	p.log.WithFields(logrus.Fields{"addr": p.cfg.Crawler.RedisAddr, "namespace": namespace}).Info("using redis visited set")
	return set, func() { client.Close() }, nil
}

// WriteHierarchy renders the crawl report in format and writes it under the
// output directory. It returns the written path.
func (p *Pipeline) WriteHierarchy(res *models.CrawlResult, format string) (string, error) {
	out, err := p.reporter.GenerateHierarchyReport(res, format)
	if err != nil {
		return "", err
	}
	ext := format
	if format == "markdown" {
		ext = "md"
	}
	name := sink.Stem("hierarchy_"+utils.SanitizeFilename(res.Domain), p.now()) + "." + ext
	return p.writeFile(name, []byte(out))
}

// Directory scrapes the administrator directory at directoryURL, or the
// configured one when empty, and saves the in-region entries as JSON
func (p *Pipeline) Directory(ctx context.Context, directoryURL string) ([]models.DirectoryEntry, string, error) {
	if directoryURL == "" {
		directoryURL = p.cfg.Directory.URL
	}
	if directoryURL == "" {
		return nil, "", &config.Error{Field: "directory.url", Reason: "missing"}
	}

	scraper := directory.New(p.fetcher, p.filter, p.cfg.Directory.MaxPages, p.log)
	entries, err := scraper.Scrape(ctx, directoryURL)
	if err != nil {
		return entries, "", err
	}

	at := p.now()
	data, err := json.MarshalIndent(models.Directory{
		SourceURL:   directoryURL,
		Total:       len(entries),
		GeneratedAt: at,
		Entries:     entries,
	}, "", "  ")
	if err != nil {
		return entries, "", fmt.Errorf("failed to marshal directory: %w", err)
	}
	path, err := p.writeFile(sink.Stem("directory", at)+".json", data)
	return entries, path, err
}

// LoadAnalyses reads a site analysis file written by Discover
func LoadAnalyses(path string) ([]*models.SiteAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var analyses []*models.SiteAnalysis
	if err := json.Unmarshal(data, &analyses); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return analyses, nil
}

// Discover analyzes every site and saves the analyses as JSON
func (p *Pipeline) Discover(ctx context.Context, sites []string) ([]*models.SiteAnalysis, string, error) {
	analyses := p.analyzer.AnalyzeSites(ctx, sites)
	data, err := json.MarshalIndent(analyses, "", "  ")
	if err != nil {
		return analyses, "", fmt.Errorf("failed to marshal analyses: %w", err)
	}
	path, err := p.writeFile(sink.Stem("sites", p.now())+".json", data)
	return analyses, path, err
}

// Extract extracts the records of every listing page of the accessible
// sites, guided by each site's detected structure
func (p *Pipeline) Extract(ctx context.Context, sites []*models.SiteAnalysis) ([]models.Record, error) {
	var all []models.Record
	for _, site := range sites {
		if !site.Accessible || len(site.ListingPages) == 0 {
			continue
		}
		records, err := p.extractor.ExtractPages(ctx, site.ListingPages, site.Structure)
		all = append(all, records...)
		if err != nil {
			return all, err
		}
		p.log.WithFields(logrus.Fields{"site": site.BaseURL, "records": len(records)}).Info("site extracted")
	}
	return all, nil
}

// Apply runs the configured filter cascade and computes the statistics of
// what passed
func (p *Pipeline) Apply(records []models.Record) ([]models.Record, models.Statistics) {
	kept := p.filter.Apply(records, filter.OptionsFromConfig(p.cfg.Filter))
	return kept, p.filter.Statistics(kept)
}

// Save writes records in every configured storage format under stem
func (p *Pipeline) Save(ctx context.Context, stem string, records []models.Record) ([]string, error) {
	set, err := sink.Open(ctx, p.cfg.Storage, stem, p.log)
	if err != nil {
		return nil, err
	}
	defer set.Close()

	if err := set.Write(ctx, records); err != nil {
		return nil, err
	}
	return set.Formats(), nil
}

// Run analyzes sites, extracts their records, filters them and persists both
// the raw and the filtered sets along with a markdown summary
func (p *Pipeline) Run(ctx context.Context, sites []string) (*Result, error) {
	if len(sites) == 0 {
		return nil, &config.Error{Field: "sites", Reason: "no site to analyze"}
	}
	at := p.now()
	res := &Result{}

	analyses, path, err := p.Discover(ctx, sites)
	res.Sites = analyses
	if err != nil {
		return res, err
	}
	res.Files = append(res.Files, path)
	return p.finish(ctx, at, res)
}

// Resume extracts, filters and saves the records of sites analyzed by an
// earlier Discover, without analyzing them again
func (p *Pipeline) Resume(ctx context.Context, analyses []*models.SiteAnalysis) (*Result, error) {
	if len(analyses) == 0 {
		return nil, &config.Error{Field: "analysis", Reason: "no site analysis to resume from"}
	}
	return p.finish(ctx, p.now(), &Result{Sites: analyses})
}

func (p *Pipeline) finish(ctx context.Context, at time.Time, res *Result) (*Result, error) {
	analyses := res.Sites
	raw, err := p.Extract(ctx, analyses)
	res.Extracted = len(raw)
	if err != nil {
		return res, err
	}

	rawPath := filepath.Join(p.cfg.Storage.OutputDir, sink.Stem("records", at)+".json")
	if err := sink.NewJSONWriter(rawPath).Write(ctx, raw); err != nil {
		return res, err
	}
	res.Files = append(res.Files, rawPath)

	res.Records, res.Statistics = p.Apply(raw)
	if _, err := p.Save(ctx, sink.Stem("filtered", at), res.Records); err != nil {
		return res, err
	}

	summary, err := p.reporter.GenerateSummary(analyses, res.Statistics, "markdown")
	if err != nil {
		return res, err
	}
	path, err := p.writeFile(sink.Stem("summary", at)+".md", []byte(summary))
	if err != nil {
		return res, err
	}
	res.Files = append(res.Files, path)

	p.log.WithFields(logrus.Fields{
		"sites":     len(analyses),
		"extracted": res.Extracted,
		"kept":      len(res.Records),
	}).Info("run finished")
	return res, nil
}

func (p *Pipeline) writeFile(name string, data []byte) (string, error) {
	if err := os.MkdirAll(p.cfg.Storage.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(p.cfg.Storage.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
