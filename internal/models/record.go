package models

import (
	"regexp"
	"strconv"
	"time"
)

// Record represents one structured item extracted from a listing page
type Record struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Organization    *string   `json:"organization,omitempty"`
	Sector          *string   `json:"sector,omitempty"`
	Location        *string   `json:"location,omitempty"`
	Price           *string   `json:"price,omitempty"`
	PublicationDate *string   `json:"publication_date,omitempty"`
	DeadlineDate    *string   `json:"deadline_date,omitempty"`
	Reference       *string   `json:"reference,omitempty"`
	DetailURL       *string   `json:"detail_url,omitempty"`
	Contact         *string   `json:"contact,omitempty"`
	SourceURL       string    `json:"source_url,omitempty"`
	ExtractedAt     time.Time `json:"extracted_at"`
}

var nonDigits = regexp.MustCompile(`\D`)

// Amount parses the captured price text to an integer by dropping every
// non-digit character. ok is false when the record has no price or the
// price holds no digits.
func (r Record) Amount() (amount int64, ok bool) {
	if r.Price == nil {
		return 0, false
	}
	digits := nonDigits.ReplaceAllString(*r.Price, "")
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Fields returns the record as a column map holding only the fields that are
// present. Title, description and extraction time are always present.
func (r Record) Fields() map[string]string {
	out := map[string]string{
		"title":        r.Title,
		"description":  r.Description,
		"extracted_at": r.ExtractedAt.Format(time.RFC3339),
	}
	optional := map[string]*string{
		"organization":     r.Organization,
		"sector":           r.Sector,
		"location":         r.Location,
		"price":            r.Price,
		"publication_date": r.PublicationDate,
		"deadline_date":    r.DeadlineDate,
		"reference":        r.Reference,
		"detail_url":       r.DetailURL,
		"contact":          r.Contact,
	}
	for k, v := range optional {
		if v != nil {
			out[k] = *v
		}
	}
	if r.SourceURL != "" {
		out["source_url"] = r.SourceURL
	}
	return out
}

// RecordSet is the persisted envelope around a batch of records
type RecordSet struct {
	Total       int       `json:"total"`
	ExtractedAt time.Time `json:"extracted_at"`
	Records     []Record  `json:"records"`
}

// NewRecordSet wraps records in an envelope stamped with the given time
func NewRecordSet(records []Record, at time.Time) RecordSet {
	if records == nil {
		records = []Record{}
	}
	return RecordSet{
		Total:       len(records),
		ExtractedAt: at,
		Records:     records,
	}
}

// Statistics summarizes a record set
type Statistics struct {
	Total        int            `json:"total" yaml:"total"`
	WithPrice    int            `json:"with_price" yaml:"with_price"`
	WithLocation int            `json:"with_location" yaml:"with_location"`
	WithContact  int            `json:"with_contact" yaml:"with_contact"`
	Sectors      map[string]int `json:"sectors" yaml:"sectors"`
	Departments  map[string]int `json:"departments" yaml:"departments"`
}

// FilterCriteria holds the business criteria records are filtered against
type FilterCriteria struct {
	TargetSectors       []string `json:"target_sectors"`
	TargetDepartments   []string `json:"target_departments"`
	TechKeywordFallback []string `json:"tech_keyword_fallback"`
	RegionKeywords      []string `json:"region_keywords"`
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or an empty string
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
