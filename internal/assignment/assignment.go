package assignment

import "time"

// Source tags identifying where a record came from.
const (
	SourceAPI    = "api"
	SourceScrape = "scrape"
)

// Raw is one assignment as a source client saw it: source-specific field
// shapes, possibly ambiguous due timestamp. Raws exist only between fetch and
// normalization.
type Raw struct {
	Source string
	Title  string
	Course string
	// DueRaw is the due timestamp as the source produced it: RFC 3339 from
	// the API, a bare local datetime from scraped pages.
	DueRaw string
	URL    string
}

// Canonical is the source-agnostic normalized representation of one
// assignment. Immutable once created within a run.
type Canonical struct {
	Fingerprint string
	Title       string
	Course      string
	DueAt       time.Time
	Source      string
	URL         string
}
