package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/listingsmith/internal/config"
	"github.com/amosWeiskopf/listingsmith/internal/models"
	"github.com/amosWeiskopf/listingsmith/pkg/fetcher"
)

const base = "https://www.aj-exemple.fr"

func testFetcher() *fetcher.HTTPFetcher {
	cfg := config.Default().HTTP
	cfg.RequestDelay = 0
	cfg.RetryCount = 0
	cfg.Timeout = 5 * time.Second
	return fetcher.New(cfg, nil, nil)
}

func testClassifier() *Classifier {
	return NewClassifier(config.Default().Classifier, testFetcher(), nil, nil)
}

func parse(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestFromNavigation(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "nav element",
			html: `<nav><a href="/ventes">Ventes en cours</a><a href="/contact">Contact</a></nav>
				<main><a href="/annonces">Annonces</a></main>`,
			want: []string{base + "/ventes"},
		},
		{
			name: "menu class",
			html: `<div class="main-Menu"><a href="/cessions/">Cessions d'entreprises</a></div>`,
			want: []string{base + "/cessions"},
		},
		{
			name: "header and nested nav share links",
			html: `<header><nav><a href="/encheres">ENCHÈRES</a></nav></header>`,
			want: []string{base + "/encheres"},
		},
		{
			name: "href alone does not count",
			html: `<nav><a href="/annonces">Nos dossiers</a></nav>`,
			want: []string{},
		},
	}

	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.FromNavigation(parse(t, tt.html), base)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromContentMatchesTextOrHref(t *testing.T) {
	html := `<html><body>
		<p><a href="/liste-annonces">Voir la liste</a></p>
		<p><a href="/reprise">Offres de reprise</a></p>
		<p><a href="/equipe">L'équipe</a></p>
		<p><a href="mailto:vente@aj-exemple.fr">Écrire</a></p>
	</body></html>`

	got := testClassifier().FromContent(parse(t, html), base)
	assert.Equal(t, []string{base + "/liste-annonces", base + "/reprise"}, got)
}

func TestClassifyStopsAtFirstTier(t *testing.T) {
	html := `<nav><a href="/ventes">Ventes</a></nav><a href="/offres">Offres</a>`

	links, strategy, err := testClassifier().Classify(context.Background(), parse(t, html), base)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyNavigation, strategy)
	assert.Equal(t, []string{base + "/ventes"}, links)

	html = `<nav><a href="/equipe">Équipe</a></nav><a href="/offres">Offres</a>`
	links, strategy, err = testClassifier().Classify(context.Background(), parse(t, html), base)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyContent, strategy)
	assert.Equal(t, []string{base + "/offres"}, links)
}

func TestClassifyFallsBackToCrawl(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`<html><head><title>Accueil</title></head><body>
				<p>Bienvenue</p><a href="/page-a">Page A</a><a href="/page-b">Page B</a>
			</body></html>`))
		case "/page-a":
			w.Write([]byte(`<html><head><title>Dossiers</title></head><body>
				<p>Vente d'un fonds de commerce.</p><p>Liquidation judiciaire.</p>
			</body></html>`))
		case "/page-b":
			w.Write([]byte(`<html><head><title>Contact</title></head><body>
				<p>Contactez-nous pour toute question.</p>
			</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := testClassifier()
	doc := parse(t, `<html><body><p>Bienvenue</p><a href="/page-a">Page A</a><a href="/page-b">Page B</a></body></html>`)

	links, strategy, err := c.Classify(context.Background(), doc, server.URL)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyCrawl, strategy)
	assert.Equal(t, []string{server.URL + "/page-a"}, links)
}

func TestDensity(t *testing.T) {
	c := testClassifier()

	assert.Equal(t, 3, c.Density("Vente, vente et VENTE"))
	assert.Equal(t, 2, c.Density("Ventes aux ENCHÈRES"))
	assert.Equal(t, 0, c.Density("Mentions légales"))
}

func TestIsListingPageGate(t *testing.T) {
	c := testClassifier()

	two := parse(t, `<body><p>Vente</p><p>Cession</p><script>var annonce = 1;</script></body>`)
	assert.False(t, c.IsListingPage(two), "script text is not visible")

	three := parse(t, `<body><p>Vente</p><p>Cession</p><p>Liquidation</p></body>`)
	assert.True(t, c.IsListingPage(three))
}
