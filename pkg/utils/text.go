package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// \s in RE2 is ASCII only, so NBSP and the narrow NBSP of French amounts
// need \p{Zs}
var space = regexp.MustCompile(`[\s\p{Zs}]+`)

// CleanText collapses every run of whitespace, typographic spaces included,
// to one plain space
func CleanText(text string) string {
	text = space.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Lower lowercases text with French casing rules
func Lower(text string) string {
	// a Caser is stateful, so one per call
	return cases.Lower(language.French).String(text)
}

// LowerAll lowercases every keyword and drops empty ones
func LowerAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(Lower(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// FirstContained returns the first keyword that is a substring of text.
// Both sides are expected to be lowercased already.
func FirstContained(text string, keywords []string) (string, bool) {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return k, true
		}
	}
	return "", false
}

// CountOccurrences sums the non-overlapping occurrences of every keyword in text
func CountOccurrences(text string, keywords []string) int {
	total := 0
	for _, k := range keywords {
		if k == "" {
			continue
		}
		total += strings.Count(text, k)
	}
	return total
}

// Truncate cuts text to at most maxRunes characters
func Truncate(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes])
}

// Length returns the number of characters in text
func Length(text string) int {
	return utf8.RuneCountInString(text)
}

// SanitizeFilename removes invalid characters from a filename
func SanitizeFilename(filename string) string {
	invalid := regexp.MustCompile(`[<>:"/\\|?*]`)
	filename = invalid.ReplaceAllString(filename, "_")

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)

	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	return cleaned
}
