// Package filter narrows extracted records down to the business criteria:
// activity sector, location, free keywords and price range.
package filter

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/logging"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/utils"
)

// Stage names, in cascade order
const (
	StageInput    = "input"
	StageSector   = "sector"
	StageLocation = "location"
	StageInclude  = "include"
	StageExclude  = "exclude"
	StagePrice    = "price"
)

// Options selects the stages of one Apply call. A zero price bound is
// unbounded; the price stage runs when either bound is set.
type Options struct {
	Sector   bool
	Location bool
	Include  []string
	Exclude  []string
	MinPrice int64
	MaxPrice int64
}

// OptionsFromConfig returns the stages enabled in the configuration
func OptionsFromConfig(cfg config.FilterConfig) Options {
	return Options{
		Sector:   cfg.BySector,
		Location: cfg.ByLocation,
		Include:  append([]string(nil), cfg.IncludeKeywords...),
		Exclude:  append([]string(nil), cfg.ExcludeKeywords...),
		MinPrice: cfg.MinPrice,
		MaxPrice: cfg.MaxPrice,
	}
}

// Engine applies the filter cascade. It holds no state beyond its criteria
// and is safe for concurrent use.
type Engine struct {
	sectors     []string
	fallback    []string
	regions     []string
	departments []string
	postal      []*regexp.Regexp
	log         logrus.FieldLogger
	metrics     *metrics.Metrics
}

// New builds an engine over the given criteria
func New(c models.FilterCriteria, log logrus.FieldLogger, m *metrics.Metrics) *Engine {
	if log == nil {
		log = logging.Discard()
	}
	e := &Engine{
		sectors:  utils.LowerAll(c.TargetSectors),
		fallback: utils.LowerAll(c.TechKeywordFallback),
		regions:  utils.LowerAll(c.RegionKeywords),
		log:      log,
		metrics:  m,
	}
	for _, d := range c.TargetDepartments {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		e.departments = append(e.departments, d)
		e.postal = append(e.postal, regexp.MustCompile(`\b`+regexp.QuoteMeta(d)+`\d{3}\b`))
	}
	return e
}

// Apply runs the enabled stages in order, each over the survivors of the
// previous one. The input slice is not modified.
func (e *Engine) Apply(records []models.Record, opts Options) []models.Record {
	e.metrics.SetStage(StageInput, len(records))
	result := records

	if opts.Sector {
		result = e.BySector(result)
	}
	if opts.Location {
		result = e.ByLocation(result)
	}
	if len(opts.Include) > 0 {
		result = e.ByKeywords(result, opts.Include, false)
	}
	if len(opts.Exclude) > 0 {
		result = e.ByKeywords(result, opts.Exclude, true)
	}
	if opts.MinPrice > 0 || opts.MaxPrice > 0 {
		result = e.ByPrice(result, opts.MinPrice, opts.MaxPrice)
	}

	e.log.WithFields(logrus.Fields{"kept": len(result), "of": len(records)}).Info("filtering finished")
	return result
}

// BySector keeps the records matching a target sector or a tech keyword
func (e *Engine) BySector(records []models.Record) []models.Record {
	return e.stage(StageSector, records, e.MatchesSector)
}

// ByLocation keeps the records located in the target area
func (e *Engine) ByLocation(records []models.Record) []models.Record {
	return e.stage(StageLocation, records, e.MatchesLocation)
}

// ByKeywords keeps the records whose title or description holds one of the
// keywords, or, with exclude set, none of them
func (e *Engine) ByKeywords(records []models.Record, keywords []string, exclude bool) []models.Record {
	kws := utils.LowerAll(keywords)
	name := StageInclude
	if exclude {
		name = StageExclude
	}
	return e.stage(name, records, func(r models.Record) bool {
		_, found := utils.FirstContained(utils.Lower(r.Title+" "+r.Description), kws)
		return found != exclude
	})
}

// ByPrice keeps the records priced within [lo, hi]. A zero bound is
// unbounded. Records without a readable price are kept.
func (e *Engine) ByPrice(records []models.Record, lo, hi int64) []models.Record {
	return e.stage(StagePrice, records, func(r models.Record) bool {
		price, ok := r.Amount()
		if !ok {
			return true
		}
		if lo > 0 && price < lo {
			return false
		}
		if hi > 0 && price > hi {
			return false
		}
		return true
	})
}

// MatchesSector reports whether the title, description, sector or
// organization of r mentions a target sector or a tech fallback keyword
func (e *Engine) MatchesSector(r models.Record) bool {
	text := utils.Lower(strings.Join([]string{
		r.Title, r.Description, models.Deref(r.Sector), models.Deref(r.Organization),
	}, " "))
	if kw, ok := utils.FirstContained(text, e.sectors); ok {
		e.log.WithField("sector", kw).Debug("sector matched")
		return true
	}
	if kw, ok := utils.FirstContained(text, e.fallback); ok {
		e.log.WithField("keyword", kw).Debug("tech keyword matched")
		return true
	}
	return false
}

// MatchesLocation reports whether r has a postal code in a target
// department or names a target region. Records without a location pass.
func (e *Engine) MatchesLocation(r models.Record) bool {
	loc := utils.Lower(strings.TrimSpace(models.Deref(r.Location)))
	if loc == "" {
		return true
	}
	for _, re := range e.postal {
		if re.MatchString(loc) {
			return true
		}
	}
	_, ok := utils.FirstContained(loc, e.regions)
	return ok
}

// departmentNames maps the Île-de-France department names to their codes
var departmentNames = []struct{ name, code string }{
	{"paris", "75"},
	{"seine-et-marne", "77"},
	{"yvelines", "78"},
	{"essonne", "91"},
	{"hauts-de-seine", "92"},
	{"seine-saint-denis", "93"},
	{"val-de-marne", "94"},
	{"val-d'oise", "95"},
}

// Department returns the target department of an address: the one of its
// postal code, else the one it names. It is empty outside the targets.
func (e *Engine) Department(address string) string {
	for i, re := range e.postal {
		if re.MatchString(address) {
			return e.departments[i]
		}
	}
	lower := utils.Lower(address)
	for _, d := range departmentNames {
		if !strings.Contains(lower, d.name) {
			continue
		}
		for _, code := range e.departments {
			if code == d.code {
				return code
			}
		}
	}
	return ""
}

// Statistics counts the records holding a price, a location and a contact,
// the descriptions mentioning each target sector and the locations
// mentioning each target department
func (e *Engine) Statistics(records []models.Record) models.Statistics {
	st := models.Statistics{
		Total:       len(records),
		Sectors:     map[string]int{},
		Departments: map[string]int{},
	}
	for _, r := range records {
		if models.Deref(r.Price) != "" {
			st.WithPrice++
		}
		if models.Deref(r.Location) != "" {
			st.WithLocation++
		}
		if models.Deref(r.Contact) != "" {
			st.WithContact++
		}
		desc := utils.Lower(r.Description)
		for _, s := range e.sectors {
			if strings.Contains(desc, s) {
				st.Sectors[s]++
			}
		}
		loc := models.Deref(r.Location)
		for _, d := range e.departments {
			if strings.Contains(loc, d) {
				st.Departments[d]++
			}
		}
	}
	return st
}

func (e *Engine) stage(name string, records []models.Record, keep func(models.Record) bool) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	e.metrics.SetStage(name, len(out))
	e.log.WithFields(logrus.Fields{"stage": name, "kept": len(out), "of": len(records)}).Info("filter stage")
	return out
}
