package models

import "time"

// ItemTag names the kind of element that holds one record on a listing page
type ItemTag string

const (
	ItemRow      ItemTag = "row"
	ItemListItem ItemTag = "list-item"
	ItemBlock    ItemTag = "block"
)

// PageStructure describes how records are laid out on a listing page
type PageStructure struct {
	SourceURL         string  `json:"source_url" yaml:"source_url"`
	HasTable          bool    `json:"has_table" yaml:"has_table"`
	HasList           bool    `json:"has_list" yaml:"has_list"`
	HasCards          bool    `json:"has_cards" yaml:"has_cards"`
	ContainerSelector string  `json:"container_selector,omitempty" yaml:"container_selector,omitempty"`
	ItemTag           ItemTag `json:"item_tag,omitempty" yaml:"item_tag,omitempty"`
	Paginated         bool    `json:"paginated" yaml:"paginated"`
}

// DiscoveryStrategy records which classifier tier found the listing pages
type DiscoveryStrategy string

const (
	StrategyNone       DiscoveryStrategy = ""
	StrategyNavigation DiscoveryStrategy = "navigation"
	StrategyContent    DiscoveryStrategy = "content"
	StrategyCrawl      DiscoveryStrategy = "crawl"
)

// SiteAnalysis is the outcome of analyzing one site for listing pages
type SiteAnalysis struct {
	BaseURL      string            `json:"base_url" yaml:"base_url"`
	Accessible   bool              `json:"accessible" yaml:"accessible"`
	ListingPages []string          `json:"listing_pages" yaml:"listing_pages"`
	Strategy     DiscoveryStrategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Structure    *PageStructure    `json:"structure,omitempty" yaml:"structure,omitempty"`
	Error        string            `json:"error,omitempty" yaml:"error,omitempty"`
	AnalyzedAt   time.Time         `json:"analyzed_at" yaml:"analyzed_at"`
}
