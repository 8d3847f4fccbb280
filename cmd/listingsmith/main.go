package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
	"github.com/amosWeiskopf/listingsmith/pkg/pipeline"
	"github.com/amosWeiskopf/listingsmith/pkg/sink"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "listingsmith",
	Short: "ListingSmith - business-for-sale listings from judicial administrator sites",
	Long: `ListingSmith crawls the sites of judicial administrators, finds their
listing pages, extracts the businesses offered for sale and filters them by
sector, location, keywords and price.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [URL]",
	Short: "Crawl a site and save its page hierarchy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.stop()

		if n, _ := cmd.Flags().GetInt("max-pages"); n > 0 {
			a.cfg.Crawler.MaxPages = n
		}
		if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
			a.cfg.Crawler.Workers = n
		}
		format, _ := cmd.Flags().GetString("format")
		crawlID, _ := cmd.Flags().GetString("crawl-id")

		p := a.pipeline()
		result, err := p.Crawl(a.ctx, args[0], crawlID)
		if err != nil && result == nil {
			return fmt.Errorf("crawl failed: %w", err)
		}
		if err != nil {
			a.log.WithError(err).Warn("crawl interrupted, saving partial hierarchy")
		}

		path, werr := p.WriteHierarchy(result, format)
		if werr != nil {
			return fmt.Errorf("report generation failed: %w", werr)
		}
		fmt.Printf("Crawled %d pages from %s (%d errors)\n", result.TotalPages, result.Domain, result.ErrorCount)
		fmt.Printf("Hierarchy saved to %s\n", path)
		return nil
	},
}

var directoryCmd = &cobra.Command{
	Use:   "directory [URL]",
	Short: "Read the administrator directory and list the websites in the target region",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.stop()

		if n, _ := cmd.Flags().GetInt("max-pages"); n > 0 {
			a.cfg.Directory.MaxPages = n
		}
		var url string
		if len(args) > 0 {
			url = args[0]
		}

		entries, path, err := a.pipeline().Directory(a.ctx, url)
		if err != nil {
			return fmt.Errorf("directory scrape failed: %w", err)
		}
		fmt.Printf("Found %d administrators in the target region\n", len(entries))
		for _, e := range entries {
			if site := models.Deref(e.Website); site != "" {
				fmt.Printf("  %s: %s\n", e.Name, site)
			}
		}
		fmt.Printf("Directory saved to %s\n", path)
		return nil
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover [URL...]",
	Short: "Find the listing pages of sites and detect their layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.stop()

		sites := a.sites(args)
		if len(sites) == 0 {
			return &config.Error{Field: "sites", Reason: "pass URLs or set sites in the configuration"}
		}

		analyses, path, err := a.pipeline().Discover(a.ctx, sites)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		for _, s := range analyses {
			switch {
			case !s.Accessible:
				fmt.Printf("%s: unreachable (%s)\n", s.BaseURL, s.Error)
			case len(s.ListingPages) == 0:
				fmt.Printf("%s: no listing page\n", s.BaseURL)
			default:
				fmt.Printf("%s: %d listing pages via %s\n", s.BaseURL, len(s.ListingPages), s.Strategy)
				for _, u := range s.ListingPages {
					fmt.Printf("  %s\n", u)
				}
			}
		}
		fmt.Printf("Analysis saved to %s\n", path)
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [URL]",
	Short: "Extract the records of one listing page, or of a saved site analysis",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.stop()

		if noStructure, _ := cmd.Flags().GetBool("no-structure"); noStructure {
			a.cfg.Extractor.UseStructure = false
		}
		p := a.pipeline()

		var records []models.Record
		source, _ := cmd.Flags().GetString("analysis")
		switch {
		case source != "":
			analyses, err := pipeline.LoadAnalyses(source)
			if err != nil {
				return err
			}
			if records, err = p.Extract(a.ctx, analyses); err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
		case len(args) == 1:
			source = args[0]
			structure := p.Analyzer().Detector().Detect(a.ctx, source)
			if records, err = p.Extractor().Extract(a.ctx, source, structure); err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
		default:
			return &config.Error{Field: "url", Reason: "pass a listing page URL or --analysis"}
		}

		stem := sink.Stem("records", time.Now())
		formats, err := p.Save(a.ctx, stem, records)
		if err != nil {
			return fmt.Errorf("saving records failed: %w", err)
		}
		fmt.Printf("Extracted %d records from %s\n", len(records), source)
		fmt.Printf("Saved %s as %v in %s\n", stem, formats, a.cfg.Storage.OutputDir)
		return nil
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter [FILE]",
	Short: "Filter a saved JSON record set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.stop()

		set, err := sink.ReadJSON(args[0])
		if err != nil {
			return err
		}

		f := cmd.Flags()
		if f.Changed("include") {
			a.cfg.Filter.IncludeKeywords, _ = f.GetStringSlice("include")
		}
		if f.Changed("exclude") {
			a.cfg.Filter.ExcludeKeywords, _ = f.GetStringSlice("exclude")
		}
		if f.Changed("min-price") {
			a.cfg.Filter.MinPrice, _ = f.GetInt64("min-price")
		}
		if f.Changed("max-price") {
			a.cfg.Filter.MaxPrice, _ = f.GetInt64("max-price")
		}
		if off, _ := f.GetBool("no-sector"); off {
			a.cfg.Filter.BySector = false
		}
		if off, _ := f.GetBool("no-location"); off {
			a.cfg.Filter.ByLocation = false
		}
		if err := a.cfg.Validate(); err != nil {
			return err
		}

		p := a.pipeline()
		kept, stats := p.Apply(set.Records)
		stem := sink.Stem("filtered", time.Now())
		if _, err := p.Save(a.ctx, stem, kept); err != nil {
			return fmt.Errorf("saving records failed: %w", err)
		}
		fmt.Printf("Kept %d of %d records (%d with price, %d with location, %d with contact)\n",
			len(kept), set.Total, stats.WithPrice, stats.WithLocation, stats.WithContact)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [URL...]",
	Short: "Discover, extract, filter and save in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.stop()

		p := a.pipeline()
		var result *pipeline.Result
		if path, _ := cmd.Flags().GetString("analysis"); path != "" {
			analyses, err := pipeline.LoadAnalyses(path)
			if err != nil {
				return err
			}
			result, err = p.Resume(a.ctx, analyses)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
		} else {
			sites := a.sites(args)
			if fromDir, _ := cmd.Flags().GetBool("directory"); fromDir {
				entries, path, err := p.Directory(a.ctx, "")
				if err != nil {
					return fmt.Errorf("directory scrape failed: %w", err)
				}
				a.log.WithField("file", path).Infof("directory supplied %d sites", len(models.Websites(entries)))
				sites = append(sites, models.Websites(entries)...)
			}
			result, err = p.Run(a.ctx, sites)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
		}
		fmt.Printf("Analyzed %d sites, extracted %d records, kept %d\n",
			len(result.Sites), result.Extracted, len(result.Records))
		for _, path := range result.Files {
			fmt.Printf("  %s\n", path)
		}
		return nil
	},
}

func init() {
	// Crawl command flags
	crawlCmd.Flags().Int("max-pages", 0, "Maximum pages to visit (overrides crawler.max_pages)")
	crawlCmd.Flags().Int("workers", 0, "Concurrent fetches (overrides crawler.workers)")
	crawlCmd.Flags().String("format", "json", "Hierarchy format (json, yaml, markdown)")
	crawlCmd.Flags().String("crawl-id", "", "Shared visited-set name when crawler.visited_backend is redis")

	// Directory command flags
	directoryCmd.Flags().Int("max-pages", 0, "Further directory pages to follow (overrides directory.max_pages)")

	// Run command flags
	runCmd.Flags().Bool("directory", false, "Add the websites found in the directory at directory.url to the seed sites")
	runCmd.Flags().String("analysis", "", "Resume from a saved sites_*.json analysis instead of analyzing sites")

	// Extract command flags
	extractCmd.Flags().Bool("no-structure", false, "Ignore the detected layout and use heuristics only")
	extractCmd.Flags().String("analysis", "", "Extract every listing page of a saved sites_*.json analysis")

	// Filter command flags
	filterCmd.Flags().StringSlice("include", nil, "Keep records mentioning one of these keywords")
	filterCmd.Flags().StringSlice("exclude", nil, "Drop records mentioning one of these keywords")
	filterCmd.Flags().Int64("min-price", 0, "Minimum price, 0 for none")
	filterCmd.Flags().Int64("max-price", 0, "Maximum price, 0 for none")
	filterCmd.Flags().Bool("no-sector", false, "Skip the sector filter")
	filterCmd.Flags().Bool("no-location", false, "Skip the location filter")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(directoryCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(runCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve /metrics and /healthz on this address")
}

// app is the state shared by every command
type app struct {
	ctx     context.Context
	cancel  context.CancelFunc
	cfg     *config.Config
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func setup(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	a := &app{ctx: ctx, cancel: cancel, cfg: cfg, log: log, metrics: metrics.New()}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, a.metrics, log); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}
	return a, nil
}

func (a *app) pipeline() *pipeline.Pipeline {
	return pipeline.New(a.cfg, fetcher.New(a.cfg.HTTP, a.log, a.metrics), a.log, a.metrics)
}

func (a *app) sites(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return a.cfg.Sites
}

func (a *app) stop() { a.cancel() }

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
