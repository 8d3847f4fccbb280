package models

import "time"

// DirectoryEntry is one administrator listed in the professional directory
type DirectoryEntry struct {
	Name       string  `json:"name"`
	ProfileURL *string `json:"profile_url,omitempty"`
	Address    string  `json:"address"`
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty"`
	Website    *string `json:"website,omitempty"`
	Department *string `json:"department,omitempty"`
}

// Directory is the saved outcome of a directory scrape
type Directory struct {
	SourceURL   string           `json:"source_url"`
	Total       int              `json:"total"`
	GeneratedAt time.Time        `json:"generated_at"`
	Entries     []DirectoryEntry `json:"entries"`
}

// Websites returns the distinct websites of entries in order
func Websites(entries []DirectoryEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		w := Deref(e.Website)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
