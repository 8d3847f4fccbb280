// Package directory reads the professional directory of judicial
// administrators and keeps the ones practicing in the target departments.
// Their websites seed the site analysis.
package directory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/extractor"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
	"github.com/amosWeiskopf/listingsmith/pkg/filter"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

var (
	entryClass   = []string{"entry", "result", "item", "card"}
	addressClass = []string{"address", "adresse"}
	phone        = regexp.MustCompile(`(?:\+33[ .]?|\b0)[1-9](?:[ .]?\d{2}){4}\b`)
)

// Scraper walks the directory and its pagination
type Scraper struct {
	fetcher  fetcher.Fetcher
	filter   *filter.Engine
	maxPages int
	log      logrus.FieldLogger
}

// New returns a scraper keeping the entries that filter locates in a target
// department or region. maxPages caps the further directory pages followed.
func New(f fetcher.Fetcher, eng *filter.Engine, maxPages int, log logrus.FieldLogger) *Scraper {
	if log == nil {
		log = logging.Discard()
	}
	return &Scraper{fetcher: f, filter: eng, maxPages: maxPages, log: log}
}

// Scrape reads the directory page at directoryURL and its further pages. An
// unreachable first page is an error; a further page that fails is skipped.
// Entries listed on several pages are returned once.
func (s *Scraper) Scrape(ctx context.Context, directoryURL string) ([]models.DirectoryEntry, error) {
	doc, err := s.load(ctx, directoryURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	entries := s.collect(nil, seen, s.ParseDocument(doc, directoryURL))

	next := extractor.PaginationLinks(doc, directoryURL)
	if len(next) > s.maxPages {
		next = next[:s.maxPages]
	}
	for _, u := range next {
		if ctx.Err() != nil {
			return entries, ctx.Err()
		}
		pdoc, err := s.load(ctx, u)
		if err != nil {
			s.log.WithError(err).WithField("url", u).Warn("skipping directory page")
			continue
		}
		entries = s.collect(entries, seen, s.ParseDocument(pdoc, u))
	}

	s.log.WithFields(logrus.Fields{"url": directoryURL, "pages": len(next) + 1, "entries": len(entries)}).Info("directory scraped")
	return entries, nil
}

// ParseDocument returns the in-region entries of one directory page. Items
// are blocks classed as entries, else table rows past the header, else list
// items classed as entries. Items without a name are dropped.
func (s *Scraper) ParseDocument(doc *goquery.Document, pageURL string) []models.DirectoryEntry {
	items := doc.Find("div").FilterFunction(utils.ClassTokenFilter(entryClass...))
	if items.Length() == 0 {
		if rows := doc.Find("tr"); rows.Length() > 1 {
			items = rows.Slice(1, rows.Length())
		}
	}
	if items.Length() == 0 {
		items = doc.Find("li").FilterFunction(utils.ClassTokenFilter("entry", "result", "item"))
	}

	var out []models.DirectoryEntry
	items.Each(func(_ int, item *goquery.Selection) {
		e, ok := s.entry(item, pageURL)
		if !ok {
			return
		}
		if !s.inRegion(e) {
			s.log.WithField("name", e.Name).Debug("outside the target region")
			return
		}
		out = append(out, e)
	})
	return out
}

func (s *Scraper) entry(item *goquery.Selection, pageURL string) (models.DirectoryEntry, bool) {
	var e models.DirectoryEntry
	e.Name = utils.VisibleText(item.Find("h2, h3, strong, b").First())
	if e.Name == "" {
		return e, false
	}

	if href, ok := item.Find("a[href]").First().Attr("href"); ok {
		if abs, err := utils.Resolve(pageURL, strings.TrimSpace(href)); err == nil && utils.IsPageURL(abs) {
			e.ProfileURL = &abs
		}
	}

	addr := item.Find("address, div").FilterFunction(utils.ClassTokenFilter(addressClass...)).First()
	if addr.Length() > 0 {
		e.Address = utils.VisibleText(addr)
	} else {
		e.Address = utils.VisibleText(item)
	}

	text := utils.VisibleText(item)
	e.Phone = models.StringPtr(phone.FindString(text))
	if href, ok := item.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
		mail := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(mail, '?'); i >= 0 {
			mail = mail[:i]
		}
		e.Email = models.StringPtr(mail)
	}
	e.Website = models.StringPtr(website(item, pageURL))
	e.Department = models.StringPtr(s.filter.Department(e.Address))
	return e, true
}

// website is the first absolute link leading off the directory's host
func website(item *goquery.Selection, pageURL string) string {
	host := utils.Hostname(pageURL)
	var site string
	item.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return true
		}
		if utils.Hostname(href) == host {
			return true
		}
		site = href
		return false
	})
	return site
}

// inRegion keeps an entry with a target department, or whose address passes
// the location filter. An empty address passes nothing.
func (s *Scraper) inRegion(e models.DirectoryEntry) bool {
	if e.Department != nil {
		return true
	}
	if strings.TrimSpace(e.Address) == "" {
		return false
	}
	return s.filter.MatchesLocation(models.Record{Location: &e.Address})
}

func (s *Scraper) collect(entries []models.DirectoryEntry, seen map[string]bool, page []models.DirectoryEntry) []models.DirectoryEntry {
	for _, e := range page {
		key := e.Name + "\x00" + models.Deref(e.Website)
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, e)
	}
	return entries
}

func (s *Scraper) load(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	return doc, nil
}
