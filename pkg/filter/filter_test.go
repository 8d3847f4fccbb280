package filter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/metrics"
	"github.com/amosWeiskopf/listingsmith/internal/models"
)

var sp = models.StringPtr

func defaultEngine(m *metrics.Metrics) *Engine {
	return New(config.Default().Filter.Criteria(), nil, m)
}

// five raw records: two tech businesses around Paris, one tech business in
// Marseille, one restaurant in each city
func sampleRecords() []models.Record {
	return []models.Record{
		{
			Title:        "Société de développement logiciel",
			Description:  "Éditeur de logiciels SaaS pour la gestion hôtelière, 15 salariés.",
			Sector:       sp("Informatique"),
			Organization: sp("SoftHotel SAS"),
			Location:     sp("75008 Paris"),
			Price:        sp("420000"),
			Contact:      sp("cessions@aj-exemple.fr"),
		},
		{
			Title:       "Agence de conseil data",
			Description: "Conseil en data et cloud, clientèle grands comptes.",
			Location:    sp("92100 Boulogne-Billancourt"),
		},
		{
			Title:       "ESN régionale",
			Description: "Prestations de développement web et cloud.",
			Location:    sp("13001 Marseille"),
			Price:       sp("300000"),
		},
		{
			Title:        "Restaurant gastronomique",
			Description:  "Brasserie de quartier, 40 couverts, clientèle fidèle, bail renouvelé.",
			Sector:       sp("Restauration"),
			Organization: sp("Chez Marcel SARL"),
			Location:     sp("75011 Paris"),
			Price:        sp("180000"),
		},
		{
			Title:        "Brasserie du port",
			Description:  "Brasserie sur le Vieux-Port, terrasse de 60 couverts.",
			Sector:       sp("Restauration"),
			Organization: sp("Chez Marius SARL"),
			Location:     sp("13002 Marseille"),
		},
	}
}

func titles(records []models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title)
	}
	return out
}

func TestSectorAndLocationWithDefaultCriteria(t *testing.T) {
	e := defaultEngine(nil)

	got := e.Apply(sampleRecords(), Options{Sector: true, Location: true})
	assert.Equal(t, []string{"Société de développement logiciel", "Agence de conseil data"}, titles(got))

	st := e.Statistics(got)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.WithPrice)
	assert.Equal(t, 2, st.WithLocation)
	assert.Equal(t, 1, st.WithContact)
	assert.Equal(t, map[string]int{"saas": 1, "conseil": 1, "data": 1, "cloud": 1}, st.Sectors)
	assert.Equal(t, map[string]int{"75": 1, "92": 1}, st.Departments)
}

func TestCascadeIsOrdered(t *testing.T) {
	e := defaultEngine(nil)

	sectorOnly := e.Apply(sampleRecords(), Options{Sector: true})
	assert.Len(t, sectorOnly, 3)

	locationOnly := e.Apply(sampleRecords(), Options{Location: true})
	assert.Equal(t, []string{
		"Société de développement logiciel",
		"Agence de conseil data",
		"Restaurant gastronomique",
	}, titles(locationOnly))

	none := e.Apply(sampleRecords(), Options{})
	assert.Len(t, none, 5)
}

func TestMatchesSector(t *testing.T) {
	e := defaultEngine(nil)

	tests := []struct {
		name string
		rec  models.Record
		want bool
	}{
		{"target sector in title", models.Record{Title: "Cabinet de CONSEIL"}, true},
		{"target sector in sector field", models.Record{Title: "Reprise", Sector: sp("Cybersécurité")}, true},
		{"target sector in organization", models.Record{Title: "Reprise", Organization: sp("Digital Factory")}, true},
		{"fallback keyword", models.Record{Title: "Intégrateur ERP"}, true},
		{"no match", models.Record{Title: "Boulangerie", Description: "Fonds de boulangerie pâtisserie."}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.MatchesSector(tt.rec))
		})
	}
}

func TestMatchesLocation(t *testing.T) {
	criteria := config.Default().Filter.Criteria()
	criteria.TargetDepartments = []string{"75", "92"}
	e := New(criteria, nil, nil)

	tests := []struct {
		name     string
		location *string
		want     bool
	}{
		{"absent location passes", nil, true},
		{"empty location passes", sp(" "), true},
		{"postal code in department", sp("75008 Paris"), true},
		{"other department", sp("13001 Marseille"), false},
		{"region keyword", sp("Hauts-de-Seine"), true},
		{"department digits inside a longer number", sp("Lot 975001"), false},
		{"department prefix needs five digits", sp("750 Lyon"), false},
		{"town only", sp("Lyon"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.MatchesLocation(models.Record{Title: "x", Location: tt.location}))
		})
	}
}

func TestDepartment(t *testing.T) {
	e := defaultEngine(nil)

	assert.Equal(t, "92", e.Department("12 rue de Rivoli, 92100 Boulogne-Billancourt"))
	assert.Equal(t, "93", e.Department("Tribunal de commerce de Bobigny (Seine-Saint-Denis)"))
	assert.Equal(t, "75", e.Department("Cabinet à Paris"))
	assert.Equal(t, "", e.Department("13001 Marseille"))

	lyon := New(models.FilterCriteria{TargetDepartments: []string{"69"}}, nil, nil)
	assert.Equal(t, "69", lyon.Department("69002 Lyon"))
	assert.Equal(t, "", lyon.Department("Paris"))
}

func TestByPrice(t *testing.T) {
	e := defaultEngine(nil)
	records := []models.Record{
		{Title: "dans la fourchette", Price: sp("250000")},
		{Title: "non chiffré", Price: sp("N/A")},
		{Title: "trop cher", Price: sp("350000")},
		{Title: "sans prix"},
		{Title: "trop petit", Price: sp("90 000")},
	}

	got := e.ByPrice(records, 100000, 300000)
	assert.Equal(t, []string{"dans la fourchette", "non chiffré", "sans prix"}, titles(got))

	got = e.ByPrice(records, 0, 300000)
	assert.Equal(t, []string{"dans la fourchette", "non chiffré", "sans prix", "trop petit"}, titles(got))

	got = e.ByPrice(records, 300000, 0)
	assert.Equal(t, []string{"non chiffré", "trop cher", "sans prix"}, titles(got))
}

func TestByKeywords(t *testing.T) {
	e := defaultEngine(nil)
	records := []models.Record{
		{Title: "Agence web", Description: "Création de sites vitrines."},
		{Title: "Studio", Description: "Développement d'applications MOBILES."},
		{Title: "Imprimerie", Description: "Impression offset."},
	}

	included := e.ByKeywords(records, []string{"mobiles", "Web"}, false)
	assert.Equal(t, []string{"Agence web", "Studio"}, titles(included))

	excluded := e.ByKeywords(records, []string{"offset"}, true)
	assert.Equal(t, []string{"Agence web", "Studio"}, titles(excluded))
}

func TestApplyFullCascade(t *testing.T) {
	m := metrics.New()
	e := defaultEngine(m)

	got := e.Apply(sampleRecords(), Options{
		Sector:   true,
		Location: true,
		Include:  []string{"conseil", "logiciel"},
		Exclude:  []string{"grands comptes"},
		MinPrice: 100000,
		MaxPrice: 500000,
	})
	assert.Equal(t, []string{"Société de développement logiciel"}, titles(got))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.FilterStage.WithLabelValues(StageInput)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FilterStage.WithLabelValues(StageSector)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilterStage.WithLabelValues(StageLocation)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilterStage.WithLabelValues(StageInclude)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilterStage.WithLabelValues(StageExclude)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilterStage.WithLabelValues(StagePrice)))
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	records := sampleRecords()
	_ = defaultEngine(nil).Apply(records, Options{Sector: true, Location: true})
	require.Len(t, records, 5)
	assert.Equal(t, "Restaurant gastronomique", records[3].Title)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Filter
	cfg.IncludeKeywords = []string{"saas"}
	cfg.MaxPrice = 400000

	opts := OptionsFromConfig(cfg)
	assert.True(t, opts.Sector)
	assert.True(t, opts.Location)
	assert.Equal(t, []string{"saas"}, opts.Include)
	assert.Equal(t, int64(400000), opts.MaxPrice)

	cfg.IncludeKeywords[0] = "changed"
	assert.Equal(t, "saas", opts.Include[0])
}
