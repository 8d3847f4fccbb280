package reporter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/listingsmith/internal/models"
)

const site = "https://www.aj-exemple.fr"

func testReporter() *Reporter {
	r := New()
	r.now = func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	return r
}

func sampleCrawl() *models.CrawlResult {
	h := models.NewHierarchy()
	root := h.Add(site, models.NoParent)
	a := h.Add(site+"/annonces", root)
	h.SetTitle(a, "Annonces")
	b := h.Add(site+"/contact", root)
	h.MarkFailed(b)
	h.Add(site+"/annonces/1", a)

	return &models.CrawlResult{
		SeedURL:    site,
		Domain:     "www.aj-exemple.fr",
		URLs:       h.URLs(),
		Hierarchy:  h,
		TotalPages: h.Len(),
		ErrorCount: 1,
		Duration:   1500 * time.Millisecond,
	}
}

func TestHierarchyReportJSON(t *testing.T) {
	out, err := testReporter().GenerateHierarchyReport(sampleCrawl(), "json")
	require.NoError(t, err)

	var got struct {
		TotalPages     int            `json:"total_pages"`
		ErrorCount     int            `json:"error_count"`
		Duration       string         `json:"duration"`
		DepthHistogram map[string]int `json:"depth_histogram"`
		Tree           struct {
			URL      string `json:"url"`
			Depth    int    `json:"depth"`
			Children []struct {
				URL      string            `json:"url"`
				Depth    int               `json:"depth"`
				Children []json.RawMessage `json:"children"`
			} `json:"children"`
		} `json:"tree"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, 4, got.TotalPages)
	assert.Equal(t, 1, got.ErrorCount)
	assert.Equal(t, "1.5s", got.Duration)
	assert.Equal(t, map[string]int{"0": 1, "1": 2, "2": 1}, got.DepthHistogram)
	assert.Equal(t, site, got.Tree.URL)
	require.Len(t, got.Tree.Children, 2)
	assert.Equal(t, site+"/annonces", got.Tree.Children[0].URL)
	assert.Equal(t, 1, got.Tree.Children[0].Depth)
	assert.Len(t, got.Tree.Children[0].Children, 1)
	assert.Empty(t, got.Tree.Children[1].Children)
}

func TestHierarchyReportYAML(t *testing.T) {
	out, err := testReporter().GenerateHierarchyReport(sampleCrawl(), "yaml")
	require.NoError(t, err)

	var got struct {
		Domain         string      `yaml:"domain"`
		DepthHistogram map[int]int `yaml:"depth_histogram"`
		Tree           struct {
			URL      string `yaml:"url"`
			Children []struct {
				Title  string `yaml:"title"`
				Failed bool   `yaml:"failed"`
			} `yaml:"children"`
		} `yaml:"tree"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))

	assert.Equal(t, "www.aj-exemple.fr", got.Domain)
	assert.Equal(t, map[int]int{0: 1, 1: 2, 2: 1}, got.DepthHistogram)
	require.Len(t, got.Tree.Children, 2)
	assert.Equal(t, "Annonces", got.Tree.Children[0].Title)
	assert.True(t, got.Tree.Children[1].Failed)
}

func TestHierarchyReportMarkdown(t *testing.T) {
	out, err := testReporter().GenerateHierarchyReport(sampleCrawl(), "markdown")
	require.NoError(t, err)

	assert.Contains(t, out, "# Crawl report for www.aj-exemple.fr")
	assert.Contains(t, out, "*Generated on March 15, 2024*")
	assert.Contains(t, out, "| 0 | 1 |\n| 1 | 2 |\n| 2 | 1 |\n")
	assert.Contains(t, out, "- "+site+"\n")
	assert.Contains(t, out, "  - [Annonces]("+site+"/annonces)\n")
	assert.Contains(t, out, "    - "+site+"/annonces/1\n")
	assert.Contains(t, out, "  - "+site+"/contact *(failed)*\n")
}

func TestHierarchyReportWithoutHierarchy(t *testing.T) {
	out, err := testReporter().GenerateHierarchyReport(&models.CrawlResult{SeedURL: site}, "markdown")
	require.NoError(t, err)
	assert.NotContains(t, out, "## Tree")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := testReporter().GenerateHierarchyReport(sampleCrawl(), "html")
	assert.EqualError(t, err, "unsupported format: html")

	_, err = testReporter().GenerateSummary(nil, models.Statistics{}, "pdf")
	assert.EqualError(t, err, "unsupported format: pdf")
}

func TestSummaryMarkdown(t *testing.T) {
	sites := []*models.SiteAnalysis{
		{
			BaseURL:      site,
			Accessible:   true,
			ListingPages: []string{site + "/annonces", site + "/ventes"},
			Strategy:     models.StrategyNavigation,
			Structure:    &models.PageStructure{ItemTag: models.ItemRow},
		},
		{BaseURL: "https://www.aj-ferme.fr", ListingPages: []string{}, Error: "unreachable"},
	}
	stats := models.Statistics{
		Total:        3,
		WithPrice:    2,
		WithLocation: 3,
		Sectors:      map[string]int{"saas": 1, "conseil": 2},
		Departments:  map[string]int{"75": 3},
	}

	out, err := testReporter().GenerateSummary(sites, stats, "markdown")
	require.NoError(t, err)

	assert.Contains(t, out, "| "+site+" | true | navigation | 2 | row |")
	assert.Contains(t, out, "| https://www.aj-ferme.fr | false | - | 0 | - |")
	assert.Contains(t, out, "- **With price:** 2")
	assert.Contains(t, out, "### Sectors\n\n- conseil: 2\n- saas: 1\n")
	assert.Contains(t, out, "- 75: 3")
}

func TestSummaryJSON(t *testing.T) {
	out, err := testReporter().GenerateSummary(nil, models.Statistics{Total: 0, Sectors: map[string]int{}}, "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []any{}, got["sites"])
	assert.Equal(t, "2024-03-15T09:00:00Z", got["generated_at"])
}
