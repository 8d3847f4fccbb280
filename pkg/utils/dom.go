package utils

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// VisibleText returns the cleaned text of sel, leaving out script, style and
// noscript content
func VisibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return CleanText(b.String())
}

// ClassHas reports whether the class attribute of s, lowercased, contains any
// of the hints as a substring
func ClassHas(s *goquery.Selection, hints ...string) bool {
	class, ok := s.Attr("class")
	if !ok || class == "" {
		return false
	}
	class = strings.ToLower(class)
	for _, h := range hints {
		if strings.Contains(class, h) {
			return true
		}
	}
	return false
}

// ClassFilter returns a goquery filter keeping elements whose class contains
// one of the hints
func ClassFilter(hints ...string) func(int, *goquery.Selection) bool {
	return func(_ int, s *goquery.Selection) bool {
		return ClassHas(s, hints...)
	}
}

// ClassTokenFilter returns a goquery filter keeping elements that carry one
// of tokens as a whole class name, compared case-insensitively
func ClassTokenFilter(tokens ...string) func(int, *goquery.Selection) bool {
	return func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		for _, c := range strings.Fields(class) {
			for _, t := range tokens {
				if strings.EqualFold(c, t) {
					return true
				}
			}
		}
		return false
	}
}

// ClassSelector builds a CSS selector from the class tokens of s, such as
// ".annonce.card". Tokens that are not plain identifiers are skipped. With
// hints, only the tokens containing one of them are used.
func ClassSelector(s *goquery.Selection, hints ...string) string {
	class, _ := s.Attr("class")
	var b strings.Builder
	for _, tok := range strings.Fields(class) {
		if !plainIdent(tok) {
			continue
		}
		if len(hints) > 0 {
			if _, ok := FirstContained(strings.ToLower(tok), hints); !ok {
				continue
			}
		}
		b.WriteByte('.')
		b.WriteString(tok)
	}
	return b.String()
}

func plainIdent(tok string) bool {
	if tok == "" || (tok[0] >= '0' && tok[0] <= '9') {
		return false
	}
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
