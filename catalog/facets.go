package catalog

import (
	"context"
	"log/slog"

	"github.com/letmevibethatforyou/iipsearch"
)

// ExtractCounts returns the FacetFields counts of an executed facet query.
// Fields the index did not count are absent; without facet data the map is
// empty, never nil.
func ExtractCounts(built BuiltQuery) iipsearch.FacetCounts {
	counts := make(iipsearch.FacetCounts, len(FacetFields))
	if built.Results == nil || built.Results.Facets == nil {
		return counts
	}
	for _, field := range FacetFields {
		values, ok := built.Results.Facets[field]
		if !ok {
			continue
		}
		cp := make([]iipsearch.FacetCount, len(values))
		copy(cp, values)
		counts[field] = cp
	}
	return counts
}

// FacetResults counts the values of one field over the whole index, e.g. to
// fill a search form's drop-downs. Failures give empty counts.
func FacetResults(ctx context.Context, searcher iipsearch.Searcher, field string) []iipsearch.FacetCount {
	res, err := searcher.Search(ctx, iipsearch.MatchAll,
		iipsearch.WithLimit(1),
		iipsearch.WithFacets(field),
	)
	if err != nil {
		slog.ErrorContext(ctx, "Facet lookup failed", logIDAttr(ctx), "field", field, "error", err)
		return []iipsearch.FacetCount{}
	}
	values, ok := res.Facets[field]
	if !ok {
		return []iipsearch.FacetCount{}
	}
	return values
}
