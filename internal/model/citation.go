package model

// FreshnessCategory buckets document age by tenant thresholds.
type FreshnessCategory string

const (
	FreshnessFresh  FreshnessCategory = "fresh"
	FreshnessRecent FreshnessCategory = "recent"
	FreshnessStale  FreshnessCategory = "stale"
)

// FreshnessInfo is the categorical view of a document's age.
type FreshnessInfo struct {
	AgeDays       int               `json:"age_days"`
	Category      FreshnessCategory `json:"category"`
	HumanReadable string            `json:"human_readable"`
	Badge         string            `json:"badge"`
}

// Citation is one numbered source entry. Numbers are dense starting at 1,
// assigned in the order documents appear in the packed context.
type Citation struct {
	Number    int            `json:"number"`
	DocID     string         `json:"doc_id"`
	Source    string         `json:"source"`
	URL       string         `json:"url,omitempty"`
	Filepath  string         `json:"filepath,omitempty"`
	Version   string         `json:"version,omitempty"`
	Authors   []string       `json:"authors,omitempty"`
	Freshness *FreshnessInfo `json:"freshness,omitempty"`
}

// CitationMap maps citation number to citation entry.
type CitationMap map[int]Citation

// FreshnessStats summarizes the freshness distribution of a candidate set,
// surfaced to the caller for UI context even on IDK responses.
type FreshnessStats struct {
	Fresh   int `json:"fresh"`
	Recent  int `json:"recent"`
	Stale   int `json:"stale"`
	Unknown int `json:"unknown"`

	OldestAgeDays int `json:"oldest_age_days"`
	NewestAgeDays int `json:"newest_age_days"`
}
