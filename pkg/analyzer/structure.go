package analyzer

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

var (
	listHints       = []string{"list", "annonce"}
	cardHints       = []string{"card", "item", "listing", "annonce"}
	paginationHints = []string{"pagination", "pages"}
)

// Detector infers the record layout of a sample listing page
type Detector struct {
	fetcher fetcher.Fetcher
	log     logrus.FieldLogger
}

func NewDetector(f fetcher.Fetcher, log logrus.FieldLogger) *Detector {
	if log == nil {
		log = logging.Discard()
	}
	return &Detector{fetcher: f, log: log}
}

// Detect fetches pageURL and describes its layout. It returns nil when the
// page cannot be fetched or parsed.
func (d *Detector) Detect(ctx context.Context, pageURL string) *models.PageStructure {
	log := d.log.WithField("url", pageURL)

	resp, err := d.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		log.WithError(err).Warn("structure detection: page unreachable")
		return nil
	}
	doc, err := resp.Document()
	if err != nil {
		log.WithError(err).Warn("structure detection: unparsable page")
		return nil
	}

	s := DetectDocument(doc, pageURL)
	log.WithFields(logrus.Fields{
		"item_tag":  s.ItemTag,
		"container": s.ContainerSelector,
		"paginated": s.Paginated,
	}).Info("structure detected")
	return s
}

// DetectDocument describes the layout of an already parsed page. When several
// patterns are present the item tag follows table, then list, then card.
func DetectDocument(doc *goquery.Document, pageURL string) *models.PageStructure {
	s := &models.PageStructure{SourceURL: pageURL}

	s.HasTable = doc.Find("table").Length() > 0
	s.HasList = doc.Find("ul, ol").FilterFunction(utils.ClassFilter(listHints...)).Length() > 0

	cards := doc.Find("div, article").FilterFunction(utils.ClassFilter(cardHints...))
	if cards.Length() > 0 {
		s.HasCards = true
		s.ContainerSelector = cardSelector(doc, cards)
	}

	s.Paginated = doc.Find("div, nav, ul").FilterFunction(utils.ClassFilter(paginationHints...)).Length() > 0

	switch {
	case s.HasTable:
		s.ItemTag = models.ItemRow
	case s.HasList:
		s.ItemTag = models.ItemListItem
	case s.HasCards:
		s.ItemTag = models.ItemBlock
	}
	return s
}

// cardSelector picks the selector of the repeated item among the hinted
// elements, built from their hinted class tokens only. The first selector
// matching two or more elements, none nested in another, wins. A wrapper such
// as "listing-grid" matches once and is passed over. Without a repeated one,
// the first hinted element holding no other hinted element is used.
func cardSelector(doc *goquery.Document, cards *goquery.Selection) string {
	var leaf string
	tried := make(map[string]bool)
	for i := range cards.Nodes {
		card := cards.Eq(i)
		sel := utils.ClassSelector(card, cardHints...)
		if sel == "" || tried[sel] {
			continue
		}
		tried[sel] = true

		matches := doc.Find(sel)
		if matches.Length() >= 2 && matches.Find(sel).Length() == 0 {
			return sel
		}
		if leaf == "" && card.Find("*").FilterNodes(cards.Nodes...).Length() == 0 {
			leaf = sel
		}
	}
	if leaf == "" {
		leaf = utils.ClassSelector(cards.First(), cardHints...)
	}
	return leaf
}
