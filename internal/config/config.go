package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/amosWeiskopf/listingsmith/internal/models"
)

// Config holds all application configuration
type Config struct {
	// Seed sites analyzed by the run command
	Sites []string `mapstructure:"sites"`

	// Administrator directory that supplies seed sites
	Directory DirectoryConfig `mapstructure:"directory"`

	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler"`

	// HTTP fetch configuration
	HTTP HTTPConfig `mapstructure:"http"`

	// Listing page discovery
	Classifier ClassifierConfig `mapstructure:"classifier"`

	// Record extraction
	Extractor ExtractorConfig `mapstructure:"extractor"`

	// Business filters
	Filter FilterConfig `mapstructure:"filter"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// DirectoryConfig locates the administrator directory
type DirectoryConfig struct {
	URL      string `mapstructure:"url"`
	MaxPages int    `mapstructure:"max_pages"` // further directory pages followed
}

// CrawlerConfig holds crawler-specific configuration
type CrawlerConfig struct {
	MaxPages          int           `mapstructure:"max_pages"`
	Workers           int           `mapstructure:"workers"`
	CrawlTimeout      time.Duration `mapstructure:"crawl_timeout"`
	FollowRobotsTxt   bool          `mapstructure:"follow_robots_txt"`
	IncludeSubdomains bool          `mapstructure:"include_subdomains"`
	VisitedBackend    string        `mapstructure:"visited_backend"` // "memory" or "redis"
	RedisAddr         string        `mapstructure:"redis_addr"`
	RedisTTL          time.Duration `mapstructure:"redis_ttl"`
}

// HTTPConfig holds the fetch capability settings
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Accept         string        `mapstructure:"accept"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
	RetryCount     int           `mapstructure:"retry_count"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// ClassifierConfig holds listing page discovery settings
type ClassifierConfig struct {
	Keywords         []string `mapstructure:"keywords"`
	CrawlMaxPages    int      `mapstructure:"crawl_max_pages"`
	DensityThreshold int      `mapstructure:"density_threshold"`
}

// ExtractorConfig holds record extraction settings
type ExtractorConfig struct {
	MaxPaginationPages int  `mapstructure:"max_pagination_pages"`
	UseStructure       bool `mapstructure:"use_structure"`
}

// FilterConfig holds the filter criteria and the stages run by default
type FilterConfig struct {
	TargetSectors       []string `mapstructure:"target_sectors"`
	TargetDepartments   []string `mapstructure:"target_departments"`
	TechKeywordFallback []string `mapstructure:"tech_keyword_fallback"`
	RegionKeywords      []string `mapstructure:"region_keywords"`
	BySector            bool     `mapstructure:"by_sector"`
	ByLocation          bool     `mapstructure:"by_location"`
	IncludeKeywords     []string `mapstructure:"include_keywords"`
	ExcludeKeywords     []string `mapstructure:"exclude_keywords"`
	MinPrice            int64    `mapstructure:"min_price"`
	MaxPrice            int64    `mapstructure:"max_price"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	OutputDir   string   `mapstructure:"output_dir"`
	Formats     []string `mapstructure:"formats"` // json, csv, xlsx, sqlite, postgres
	SQLitePath  string   `mapstructure:"sqlite_path"`
	PostgresDSN string   `mapstructure:"postgres_dsn"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "text"
	OutputPath string `mapstructure:"output_path"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Error reports an invalid or missing setting. It is fatal: a run stops
// before any page is fetched.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is or wraps a configuration Error
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Load loads configuration from file and environment. Each call builds a
// fresh value; nothing is cached between calls.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.listingsmith")
	}

	setDefaults(v)

	v.SetEnvPrefix("LISTINGSMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults and env
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// Default returns the built-in defaults, ignoring files and environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		// defaults are static; a decode failure is a programming error
		panic(fmt.Sprintf("config: decoding defaults: %v", err))
	}
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("sites", []string{})

	// Crawler defaults
	v.SetDefault("directory.url", "https://www.cnajmj.fr/annuaire/")
	v.SetDefault("directory.max_pages", 20)

	v.SetDefault("crawler.max_pages", 100)
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("crawler.crawl_timeout", "10m")
	v.SetDefault("crawler.follow_robots_txt", true)
	v.SetDefault("crawler.include_subdomains", false)
	v.SetDefault("crawler.visited_backend", "memory")
	v.SetDefault("crawler.redis_addr", "localhost:6379")
	v.SetDefault("crawler.redis_ttl", "24h")

	// HTTP defaults
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	v.SetDefault("http.accept_language", "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.request_delay", "1s")
	v.SetDefault("http.retry_count", 3)
	v.SetDefault("http.retry_delay", "1s")
	v.SetDefault("http.max_body_bytes", 10<<20)

	// Classifier defaults
	v.SetDefault("classifier.keywords", []string{
		"vente", "cession", "liquidation", "annonce", "offre",
		"entreprise à céder", "fonds de commerce", "actif", "enchère",
	})
	v.SetDefault("classifier.crawl_max_pages", 20)
	v.SetDefault("classifier.density_threshold", 3)

	// Extractor defaults
	v.SetDefault("extractor.max_pagination_pages", 5)
	v.SetDefault("extractor.use_structure", true)

	// Filter defaults
	v.SetDefault("filter.target_sectors", []string{
		"informatique", "data", "conseil", "numérique", "digital", "technologie",
		"software", "saas", "intelligence artificielle", "ia", "machine learning",
		"développement", "web", "cloud", "cybersécurité", "analyse", "consulting",
	})
	v.SetDefault("filter.target_departments", []string{"75", "77", "78", "91", "92", "93", "94", "95"})
	v.SetDefault("filter.tech_keyword_fallback", []string{
		"it", "tech", "logiciel", "software", "application", "site web", "webapp",
		"plateforme", "api", "erp", "crm", "saas", "paas", "cloud", "database",
		"développeur", "programmer", "data scientist", "analyste",
	})
	v.SetDefault("filter.region_keywords", []string{
		"paris", "île-de-france", "ile-de-france", "idf", "seine-et-marne", "yvelines",
		"essonne", "hauts-de-seine", "seine-saint-denis", "val-de-marne", "val-d'oise",
	})
	v.SetDefault("filter.by_sector", true)
	v.SetDefault("filter.by_location", true)
	v.SetDefault("filter.include_keywords", []string{})
	v.SetDefault("filter.exclude_keywords", []string{})
	v.SetDefault("filter.min_price", 0)
	v.SetDefault("filter.max_price", 0)

	// Storage defaults
	v.SetDefault("storage.output_dir", "./output")
	v.SetDefault("storage.formats", []string{"json", "csv"})
	v.SetDefault("storage.sqlite_path", "./output/records.db")
	v.SetDefault("storage.postgres_dsn", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output_path", "stderr")

	v.SetDefault("metrics.addr", "")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Directory.MaxPages < 0 {
		return &Error{Field: "directory.max_pages", Reason: "must not be negative"}
	}
	if c.Crawler.MaxPages <= 0 {
		return &Error{Field: "crawler.max_pages", Reason: "must be positive"}
	}
	if c.Crawler.Workers <= 0 {
		return &Error{Field: "crawler.workers", Reason: "must be positive"}
	}
	switch c.Crawler.VisitedBackend {
	case "memory", "":
	case "redis":
		if c.Crawler.RedisAddr == "" {
			return &Error{Field: "crawler.redis_addr", Reason: "required by the redis visited backend"}
		}
	default:
		return &Error{Field: "crawler.visited_backend", Reason: fmt.Sprintf("unknown backend %q", c.Crawler.VisitedBackend)}
	}
	if c.HTTP.RetryCount < 0 {
		return &Error{Field: "http.retry_count", Reason: "must not be negative"}
	}
	if c.HTTP.RequestDelay < 0 {
		return &Error{Field: "http.request_delay", Reason: "must not be negative"}
	}
	if c.Classifier.CrawlMaxPages <= 0 {
		return &Error{Field: "classifier.crawl_max_pages", Reason: "must be positive"}
	}
	if len(c.Classifier.Keywords) == 0 {
		return &Error{Field: "classifier.keywords", Reason: "at least one keyword is required"}
	}
	if c.Filter.MinPrice > 0 && c.Filter.MaxPrice > 0 && c.Filter.MinPrice > c.Filter.MaxPrice {
		return &Error{Field: "filter.min_price", Reason: "greater than filter.max_price"}
	}
	for _, f := range c.Storage.Formats {
		switch f {
		case "json", "csv", "xlsx", "sqlite":
		case "postgres":
			if c.Storage.PostgresDSN == "" {
				return &Error{Field: "storage.postgres_dsn", Reason: "required by the postgres format"}
			}
		default:
			return &Error{Field: "storage.formats", Reason: fmt.Sprintf("unknown format %q", f)}
		}
	}
	return nil
}

// Criteria returns the filter criteria carried by the configuration
func (f FilterConfig) Criteria() models.FilterCriteria {
	return models.FilterCriteria{
		TargetSectors:       append([]string(nil), f.TargetSectors...),
		TargetDepartments:   append([]string(nil), f.TargetDepartments...),
		TechKeywordFallback: append([]string(nil), f.TechKeywordFallback...),
		RegionKeywords:      append([]string(nil), f.RegionKeywords...),
	}
}
