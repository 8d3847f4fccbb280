package utils

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonicalize normalizes a URL to its comparison key: the fragment is
// dropped, scheme and host are lowercased, trailing slashes are stripped from
// the path and the query is kept as is. Canonicalize(Canonicalize(u)) equals
// Canonicalize(u).
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing scheme or host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	u.User = nil
	u.ForceQuery = false
	return u.String(), nil
}

// Resolve resolves href against base and returns the absolute URL
func Resolve(base, href string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	refURL, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// Hostname returns the lowercased host of raw without port
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// InScope reports whether raw belongs to scope. With subdomains set, any host
// sharing the scope's registrable domain (eTLD+1) matches.
func InScope(raw, scope string, subdomains bool) bool {
	host := Hostname(raw)
	scope = strings.ToLower(scope)
	if host == "" || scope == "" {
		return false
	}
	if host == scope {
		return true
	}
	if !subdomains {
		return false
	}
	hostRoot, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	scopeRoot, err := publicsuffix.EffectiveTLDPlusOne(scope)
	if err != nil {
		return false
	}
	return hostRoot == scopeRoot
}

var nonPageExts = []string{
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".pdf", ".zip",
	".mp4", ".mp3", ".css", ".js", ".ico", ".xml", ".doc", ".docx", ".xls", ".xlsx",
}

// IsPageURL reports whether raw looks like a crawlable web page
func IsPageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, ext := range nonPageExts {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}
