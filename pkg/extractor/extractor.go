package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

// ModeHeuristic labels records extracted without a page structure
const ModeHeuristic = "heuristic"

var (
	listHints      = []string{"list", "annonce"}
	containerHints = []string{"annonce", "listing", "item", "card", "entry", "offer"}
	nextHints      = []string{"suivant", "next"}
	pageLinkClass  = []string{"page", "pagination", "page-link"}
	paginationBox  = []string{"pagination", "pages"}
)

// ItemError reports a candidate item that could not be turned into a record.
// The item is skipped and extraction of the page goes on.
type ItemError struct {
	PageURL string
	Index   int
	Err     error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d of %s: %v", e.Index, e.PageURL, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// PageResult is the outcome of extracting one parsed page
type PageResult struct {
	Mode     string
	Records  []models.Record
	Errors   []*ItemError
	Rejected int
}

// Extractor handles record extraction from listing pages
type Extractor struct {
	patterns     *patterns
	fetcher      fetcher.Fetcher
	maxPages     int
	useStructure bool
	log          logrus.FieldLogger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// New creates a new Extractor instance
func New(cfg config.ExtractorConfig, f fetcher.Fetcher, log logrus.FieldLogger, m *metrics.Metrics) *Extractor {
	if log == nil {
		log = logging.Discard()
	}
	return &Extractor{
		patterns:     newPatterns(),
		fetcher:      f,
		maxPages:     cfg.MaxPaginationPages,
		useStructure: cfg.UseStructure,
		log:          log,
		metrics:      m,
		now:          time.Now,
	}
}

// Extract fetches pageURL and returns its records. When the structure says
// the listing is paginated, up to the configured number of further pages are
// fetched too. Identical records are emitted once.
func (e *Extractor) Extract(ctx context.Context, pageURL string, s *models.PageStructure) ([]models.Record, error) {
	doc, err := e.load(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	records := e.collect(nil, seen, e.ExtractDocument(doc, pageURL, s))

	if s != nil && s.Paginated && e.useStructure && e.maxPages > 0 {
		next := PaginationLinks(doc, pageURL)
		if len(next) > e.maxPages {
			next = next[:e.maxPages]
		}
		for _, u := range next {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			pdoc, err := e.load(ctx, u)
			if err != nil {
				e.log.WithError(err).WithField("url", u).Warn("skipping pagination page")
				continue
			}
			records = e.collect(records, seen, e.ExtractDocument(pdoc, u, s))
		}
	}

	e.log.WithFields(logrus.Fields{"url": pageURL, "records": len(records)}).Info("page extracted")
	return records, nil
}

// ExtractPages extracts every page in turn. A page that cannot be fetched is
// logged and skipped.
func (e *Extractor) ExtractPages(ctx context.Context, pages []string, s *models.PageStructure) ([]models.Record, error) {
	var all []models.Record
	for _, u := range pages {
		records, err := e.Extract(ctx, u, s)
		all = append(all, records...)
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		if err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{"url": u, "transient": fetcher.IsTransient(err)}).Error("extraction failed")
		}
	}
	return all, nil
}

// ExtractDocument extracts the records of an already parsed page. With a
// usable structure the items it designates are kept when they carry a title.
// Otherwise the heuristic scan applies the strict content gate.
func (e *Extractor) ExtractDocument(doc *goquery.Document, pageURL string, s *models.PageStructure) *PageResult {
	var res *PageResult
	if items, mode, ok := e.guidedItems(doc, s); ok {
		res = e.run(items, pageURL, mode, guidedGate)
	} else {
		res = e.run(tableRows(doc), pageURL, ModeHeuristic, strictGate)
		if len(res.Records) == 0 {
			containers := doc.Find("div, article, li").FilterFunction(utils.ClassFilter(containerHints...))
			more := e.run(containers, pageURL, ModeHeuristic, strictGate)
			more.Errors = append(res.Errors, more.Errors...)
			more.Rejected += res.Rejected
			res = more
		}
	}

	e.metrics.AddRecords(res.Mode, len(res.Records))
	for _, ie := range res.Errors {
		e.metrics.IncItemError()
		e.log.WithError(ie.Err).WithFields(logrus.Fields{"url": pageURL, "item": ie.Index}).Warn("item skipped")
	}
	for i := 0; i < res.Rejected; i++ {
		e.metrics.IncRejected()
	}
	return res
}

func (e *Extractor) guidedItems(doc *goquery.Document, s *models.PageStructure) (*goquery.Selection, string, bool) {
	if s == nil || !e.useStructure {
		return nil, "", false
	}
	switch s.ItemTag {
	case models.ItemRow:
		return tableRows(doc), string(s.ItemTag), true
	case models.ItemListItem:
		lists := doc.Find("ul, ol").FilterFunction(utils.ClassFilter(listHints...))
		if lists.Length() > 0 {
			return lists.ChildrenFiltered("li"), string(s.ItemTag), true
		}
		return doc.Find("li"), string(s.ItemTag), true
	case models.ItemBlock:
		if s.ContainerSelector != "" {
			return doc.Find(s.ContainerSelector), string(s.ItemTag), true
		}
	}
	return nil, "", false
}

// tableRows returns the rows of every table, minus the first row of each
func tableRows(doc *goquery.Document) *goquery.Selection {
	var rows []*html.Node
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		if tr := t.Find("tr"); tr.Length() > 1 {
			rows = append(rows, tr.Nodes[1:]...)
		}
	})
	return doc.FindNodes(rows...)
}

type gate func(models.Record) bool

func guidedGate(r models.Record) bool { return r.Title != "" }

func strictGate(r models.Record) bool {
	return utils.Length(r.Title) > 5 && utils.Length(r.Description) > 20
}

func (e *Extractor) run(items *goquery.Selection, pageURL, mode string, keep gate) *PageResult {
	res := &PageResult{Mode: mode}
	at := e.now()
	items.Each(func(i int, item *goquery.Selection) {
		rec, err := e.item(i, item, pageURL)
		if err != nil {
			res.Errors = append(res.Errors, err)
			return
		}
		if !keep(rec) {
			res.Rejected++
			return
		}
		rec.SourceURL = pageURL
		rec.ExtractedAt = at
		res.Records = append(res.Records, rec)
	})
	return res
}

func (e *Extractor) item(i int, item *goquery.Selection, pageURL string) (rec models.Record, ierr *ItemError) {
	defer func() {
		if r := recover(); r != nil {
			ierr = &ItemError{PageURL: pageURL, Index: i, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	rec, err := e.patterns.fields(item, pageURL)
	if err != nil {
		return rec, &ItemError{PageURL: pageURL, Index: i, Err: err}
	}
	return rec, nil
}

func (e *Extractor) collect(records []models.Record, seen map[string]struct{}, res *PageResult) []models.Record {
	for _, r := range res.Records {
		key := r.Title + "\x00" + r.Description + "\x00" + models.Deref(r.DetailURL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, r)
	}
	return records
}

func (e *Extractor) load(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return doc, nil
}

// PaginationLinks returns the further pages of a listing: "next" anchors,
// anchors styled as page links and anchors inside a pagination container.
// Links are canonical, unique, in document order, and never pageURL itself.
func PaginationLinks(doc *goquery.Document, pageURL string) []string {
	self, _ := utils.Canonicalize(pageURL)
	seen := map[string]struct{}{self: {}}
	var out []string

	add := func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		abs, err := utils.Resolve(pageURL, href)
		if err != nil || !utils.IsPageURL(abs) {
			return
		}
		key, err := utils.Canonicalize(abs)
		if err != nil {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}

	doc.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
		_, ok := utils.FirstContained(utils.Lower(utils.VisibleText(a)), nextHints)
		return ok
	}).Each(add)
	doc.Find("a[href]").FilterFunction(utils.ClassTokenFilter(pageLinkClass...)).Each(add)
	doc.Find("div, nav, ul").FilterFunction(utils.ClassFilter(paginationBox...)).First().Find("a[href]").Each(add)
	return out
}
