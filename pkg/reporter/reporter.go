package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/listingsmith/internal/models"
)

// Reporter handles report generation in various formats
type Reporter struct {
	now func() time.Time
}

// New creates a new Reporter instance
func New() *Reporter {
	return &Reporter{now: time.Now}
}

// HierarchyReport is the crawl tree of one site with its depth histogram
type HierarchyReport struct {
	SeedURL        string           `json:"seed_url" yaml:"seed_url"`
	Domain         string           `json:"domain" yaml:"domain"`
	GeneratedAt    time.Time        `json:"generated_at" yaml:"generated_at"`
	TotalPages     int              `json:"total_pages" yaml:"total_pages"`
	ErrorCount     int              `json:"error_count" yaml:"error_count"`
	Duration       string           `json:"duration" yaml:"duration"`
	DepthHistogram map[int]int      `json:"depth_histogram" yaml:"depth_histogram"`
	Tree           *models.TreeNode `json:"tree" yaml:"tree"`
}

// SummaryReport gathers the site analyses and record statistics of a run
type SummaryReport struct {
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Sites       []*models.SiteAnalysis `json:"sites" yaml:"sites"`
	Statistics  models.Statistics      `json:"statistics" yaml:"statistics"`
}

// Hierarchy builds the hierarchy report of a crawl
func (r *Reporter) Hierarchy(res *models.CrawlResult) *HierarchyReport {
	report := &HierarchyReport{
		SeedURL:        res.SeedURL,
		Domain:         res.Domain,
		GeneratedAt:    r.now(),
		TotalPages:     res.TotalPages,
		ErrorCount:     res.ErrorCount,
		Duration:       res.Duration.Round(time.Millisecond).String(),
		DepthHistogram: map[int]int{},
	}
	if res.Hierarchy != nil {
		report.DepthHistogram = res.Hierarchy.DepthHistogram()
		report.Tree = res.Hierarchy.Tree()
	}
	return report
}

// GenerateHierarchyReport renders the crawl tree as json, yaml or markdown
func (r *Reporter) GenerateHierarchyReport(res *models.CrawlResult, format string) (string, error) {
	report := r.Hierarchy(res)
	switch format {
	case "json":
		return generateJSON(report)
	case "yaml":
		return generateYAML(report)
	case "markdown":
		return r.hierarchyMarkdown(report), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// GenerateSummary renders site analyses and statistics as json, yaml or markdown
func (r *Reporter) GenerateSummary(sites []*models.SiteAnalysis, stats models.Statistics, format string) (string, error) {
	if sites == nil {
		sites = []*models.SiteAnalysis{}
	}
	report := &SummaryReport{GeneratedAt: r.now(), Sites: sites, Statistics: stats}
	switch format {
	case "json":
		return generateJSON(report)
	case "yaml":
		return generateYAML(report)
	case "markdown":
		return r.summaryMarkdown(report), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// generateJSON creates a JSON formatted report
func generateJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

func generateYAML(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return buf.String(), nil
}

// hierarchyMarkdown creates a Markdown formatted crawl report
func (r *Reporter) hierarchyMarkdown(report *HierarchyReport) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Crawl report for %s\n\n", report.Domain)
	fmt.Fprintf(&buf, "*Generated on %s*\n\n", report.GeneratedAt.Format("January 2, 2006"))

	fmt.Fprintf(&buf, "- **Seed:** %s\n", report.SeedURL)
	fmt.Fprintf(&buf, "- **Pages:** %d\n", report.TotalPages)
	fmt.Fprintf(&buf, "- **Errors:** %d\n", report.ErrorCount)
	fmt.Fprintf(&buf, "- **Duration:** %s\n\n", report.Duration)

	fmt.Fprintf(&buf, "## Pages per depth\n\n")
	fmt.Fprintf(&buf, "| Depth | Pages |\n")
	fmt.Fprintf(&buf, "|-------|-------|\n")
	for _, depth := range sortedKeys(report.DepthHistogram) {
		fmt.Fprintf(&buf, "| %d | %d |\n", depth, report.DepthHistogram[depth])
	}
	fmt.Fprintf(&buf, "\n")

	if report.Tree != nil {
		fmt.Fprintf(&buf, "## Tree\n\n")
		writeTree(&buf, report.Tree, 0)
	}
	return buf.String()
}

func writeTree(buf *bytes.Buffer, n *models.TreeNode, indent int) {
	label := n.URL
	if n.Title != "" {
		label = fmt.Sprintf("[%s](%s)", n.Title, n.URL)
	}
	if n.Failed {
		label += " *(failed)*"
	}
	fmt.Fprintf(buf, "%s- %s\n", strings.Repeat("  ", indent), label)
	for _, c := range n.Children {
		writeTree(buf, c, indent+1)
	}
}

// summaryMarkdown creates a Markdown formatted run summary
func (r *Reporter) summaryMarkdown(report *SummaryReport) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Listing summary\n\n")
	fmt.Fprintf(&buf, "*Generated on %s*\n\n", report.GeneratedAt.Format("January 2, 2006"))

	if len(report.Sites) > 0 {
		fmt.Fprintf(&buf, "## Sites\n\n")
		fmt.Fprintf(&buf, "| Site | Accessible | Strategy | Listing pages | Item tag |\n")
		fmt.Fprintf(&buf, "|------|------------|----------|---------------|----------|\n")
		for _, s := range report.Sites {
			tag := "-"
			if s.Structure != nil && s.Structure.ItemTag != "" {
				tag = string(s.Structure.ItemTag)
			}
			strategy := string(s.Strategy)
			if strategy == "" {
				strategy = "-"
			}
			fmt.Fprintf(&buf, "| %s | %t | %s | %d | %s |\n", s.BaseURL, s.Accessible, strategy, len(s.ListingPages), tag)
		}
		fmt.Fprintf(&buf, "\n")
	}

	st := report.Statistics
	fmt.Fprintf(&buf, "## Records\n\n")
	fmt.Fprintf(&buf, "- **Total:** %d\n", st.Total)
	fmt.Fprintf(&buf, "- **With price:** %d\n", st.WithPrice)
	fmt.Fprintf(&buf, "- **With location:** %d\n", st.WithLocation)
	fmt.Fprintf(&buf, "- **With contact:** %d\n\n", st.WithContact)

	writeCounts(&buf, "Sectors", st.Sectors)
	writeCounts(&buf, "Departments", st.Departments)
	return buf.String()
}

func writeCounts(buf *bytes.Buffer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(buf, "### %s\n\n", title)
	for _, k := range keys {
		fmt.Fprintf(buf, "- %s: %d\n", k, counts[k])
	}
	fmt.Fprintf(buf, "\n")
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
