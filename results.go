package iipsearch

import (
	"sort"
)

// Result represents a single search hit.
type Result struct {
	// ID is the unique identifier of the result.
	ID string `json:"id"`

	// Score represents the relevance score of this result.
	Score float64 `json:"score"`

	// Fields contains the document fields as key-value pairs.
	Fields map[string]interface{} `json:"fields"`
}

// Results represents a collection of search results with metadata.
type Results struct {
	// Items contains the individual search results.
	Items []Result

	// Total is the total number of matching documents.
	Total int64

	// Took is the time taken to execute the search in milliseconds.
	Took int64

	// MaxScore is the maximum relevance score across all results.
	MaxScore float64

	// Query is the query string that was executed.
	Query string

	// NextOffset can be used for pagination.
	NextOffset *int

	// Facets holds per-field value counts. It is nil when no facets were
	// requested or the backend returned none.
	Facets FacetCounts
}

// FacetCount is the number of matching documents carrying one field value.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FacetCounts maps a facet field name to its value counts, most frequent first.
type FacetCounts map[string][]FacetCount

// SortFacetCounts orders counts by descending count, then ascending value.
func SortFacetCounts(counts []FacetCount) {
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Value < counts[j].Value
	})
}

// FacetCountsFromMap converts a value->count map into sorted FacetCounts entries.
func FacetCountsFromMap(m map[string]int) []FacetCount {
	counts := make([]FacetCount, 0, len(m))
	for value, n := range m {
		counts = append(counts, FacetCount{Value: value, Count: n})
	}
	SortFacetCounts(counts)
	return counts
}
