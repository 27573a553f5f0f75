package domain

import "time"

// TimestampLayout is a fixed-width UTC layout. Strings in this layout sort
// lexicographically in time order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type SearchFilter struct {
	Classification string
	EntityType     string
	EntityValue    string
	// DateFrom and DateTo are ISO-8601 strings compared lexicographically
	// against FormatTimestamp(CreatedAt). Empty means unbounded.
	DateFrom string
	DateTo   string
}

type SearchResult struct {
	DocumentID     string    `json:"document_id"`
	Filename       string    `json:"filename"`
	Classification string    `json:"classification,omitempty"`
	Score          float64   `json:"score"`
	Snippet        string    `json:"snippet"`
	CreatedAt      time.Time `json:"created_at"`
}

type DateRange struct {
	Min *time.Time `json:"min"`
	Max *time.Time `json:"max"`
}

type FilterOptions struct {
	Classifications []string  `json:"classifications"`
	EntityTypes     []string  `json:"entity_types"`
	DateRange       DateRange `json:"date_range"`
}
