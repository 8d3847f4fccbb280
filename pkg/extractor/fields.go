package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

const maxDescription = 500

const (
	numericDate = `\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`
	longDate    = `\d{1,2}(?:er)?\s+(?:janvier|février|fevrier|mars|avril|mai|juin|juillet|août|aout|septembre|octobre|novembre|décembre|decembre)\s+\d{4}`
	amount      = `\b(\d{1,3}(?:\p{Zs}\d{3})+|\d+)`
	ws          = `[\s\p{Zs}]*`
)

var (
	descHints         = []string{"desc"}
	organizationHints = []string{"company", "entreprise", "societe", "société", "organisation"}
	sectorHints       = []string{"sector", "secteur", "activite", "activité"}
)

// patterns holds the compiled field expressions. Each chain is tried in
// order and the first match wins.
type patterns struct {
	postalCode *regexp.Regexp
	placeName  *regexp.Regexp
	currency   *regexp.Regexp
	prices     []*regexp.Regexp
	countLabel *regexp.Regexp
	reference  *regexp.Regexp
	dates      []*regexp.Regexp
	deadline   *regexp.Regexp
	email      *regexp.Regexp
	phone      *regexp.Regexp
}

func newPatterns() *patterns {
	return &patterns{
		postalCode: regexp.MustCompile(`\b\d{5}\b(?:[ \t]+\p{Lu}[\p{L}'-]*)?`),
		placeName:  regexp.MustCompile(`\p{Lu}\p{Ll}+(?:[ \t]+\p{Lu}\p{Ll}+)*`),
		currency:   regexp.MustCompile(`(?i)^\s*(?:€|eur)`),
		prices: []*regexp.Regexp{
			regexp.MustCompile(`(?i)` + amount + ws + `(?:€|euros?\b)`),
			regexp.MustCompile(`(?i)prix` + ws + `:?` + ws + amount),
			regexp.MustCompile(`(?i)montant` + ws + `:?` + ws + amount),
		},
		countLabel: regexp.MustCompile(`(?i)\b(?:lot|n°|num[ée]ro|effectif|article)` + ws + `$`),
		reference: regexp.MustCompile(`(?i)r[ée]f[ée]rence\s*:?\s*([A-Z0-9-]+)`),
		dates: []*regexp.Regexp{
			regexp.MustCompile(`\b(` + numericDate + `)\b`),
			regexp.MustCompile(`(?i)\b(` + longDate + `)`),
		},
		deadline: regexp.MustCompile(`(?i)(?:limite|avant\s+le)\D{0,40}?(` + numericDate + `|` + longDate + `)`),
		email:    regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		phone:    regexp.MustCompile(`(?:\+33[ .]?|\b0)[1-9](?:[ .]?\d{2}){4}\b`),
	}
}

// fields fills a record from one candidate item. The only error is an
// unresolvable detail link.
func (p *patterns) fields(item *goquery.Selection, pageURL string) (models.Record, error) {
	var rec models.Record
	var detailHref string

	// title: heading, then link text, then first table cell
	if h := item.Find("h1, h2, h3, h4, strong, b").First(); h.Length() > 0 {
		rec.Title = utils.VisibleText(h)
	} else if a := item.Find("a").First(); a.Length() > 0 {
		rec.Title = utils.VisibleText(a)
		detailHref, _ = a.Attr("href")
	} else if td := item.Find("td").First(); td.Length() > 0 {
		rec.Title = utils.VisibleText(td)
	}

	text := utils.VisibleText(item)
	if d := item.Find("p, div").FilterFunction(utils.ClassFilter(descHints...)).First(); d.Length() > 0 {
		rec.Description = utils.VisibleText(d)
	} else {
		rec.Description = utils.Truncate(text, maxDescription)
	}

	rec.Organization = models.StringPtr(hinted(item, organizationHints))
	rec.Sector = models.StringPtr(hinted(item, sectorHints))
	rec.Location = models.StringPtr(p.location(text, rec.Title))
	rec.Price = models.StringPtr(p.price(text))
	rec.Reference = models.StringPtr(p.firstGroup(p.reference, text))
	rec.PublicationDate = models.StringPtr(p.date(text))
	rec.DeadlineDate = models.StringPtr(p.firstGroup(p.deadline, text))
	rec.Contact = models.StringPtr(p.contact(item, text))

	if detailHref == "" {
		detailHref, _ = item.Find("a[href]").First().Attr("href")
	}
	if detailHref = strings.TrimSpace(detailHref); detailHref != "" {
		abs, err := utils.Resolve(pageURL, detailHref)
		if err != nil {
			return rec, fmt.Errorf("detail link: %w", err)
		}
		rec.DetailURL = &abs
	}
	return rec, nil
}

// location prefers a postal code, with the town that follows it, over a
// capitalized place name. The title is left out of the place name search.
func (p *patterns) location(text, title string) string {
	for _, loc := range p.postalCode.FindAllStringIndex(text, -1) {
		// "25000 €" is an amount
		if p.currency.MatchString(text[loc[0]+5:]) {
			continue
		}
		return strings.TrimSpace(text[loc[0]:loc[1]])
	}
	if title != "" {
		text = strings.Replace(text, title, "", 1)
	}
	return p.placeName.FindString(text)
}

// price returns the digits of the first amount. A lead group right after a
// count label ("Lot 12 250 000 €") is the count, not part of the amount.
func (p *patterns) price(text string) string {
	for _, re := range p.prices {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		m := text[loc[2]:loc[3]]
		if i := strings.IndexFunc(m, isSeparator); i >= 0 && p.countLabel.MatchString(text[:loc[2]]) {
			m = m[i:]
		}
		return strings.Map(func(r rune) rune {
			if isSeparator(r) {
				return -1
			}
			return r
		}, m)
	}
	return ""
}

func isSeparator(r rune) bool { return unicode.Is(unicode.Zs, r) }

func (p *patterns) date(text string) string {
	for _, re := range p.dates {
		if v := p.firstGroup(re, text); v != "" {
			return v
		}
	}
	return ""
}

// contact is a mailto address, else an address in the text, else a phone number
func (p *patterns) contact(item *goquery.Selection, text string) string {
	if href, ok := item.Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if addr != "" {
			return addr
		}
	}
	if m := p.email.FindString(text); m != "" {
		return m
	}
	return p.phone.FindString(text)
}

func (p *patterns) firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return ""
}

// hinted returns the text of the first descendant whose class holds a hint
func hinted(item *goquery.Selection, hints []string) string {
	return utils.VisibleText(item.Find("[class]").FilterFunction(utils.ClassFilter(hints...)).First())
}
