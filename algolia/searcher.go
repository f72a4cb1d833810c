package algolia

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/iipsearch"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Searcher implements the iipsearch.Searcher interface using Algolia.
//
// Algolia has no Lucene parser, so queries are parsed locally: bare terms
// become the text query and field clauses become an Algolia filter string.
// Queries Algolia cannot express (free text under OR or NOT, an AND group
// inside an OR) are rejected with iipsearch.ErrMalformedQuery.
type Searcher struct {
	client    *Client
	indexName string
}

// NewSearcher creates a new Algolia searcher for the specified index.
func NewSearcher(client *Client, indexName string) *Searcher {
	return &Searcher{
		client:    client,
		indexName: indexName,
	}
}

// Search implements the iipsearch.Searcher interface using Algolia search.
func (s *Searcher) Search(ctx context.Context, query string, opts ...iipsearch.SearchOption) (*iipsearch.Results, error) {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return nil, iipsearch.ClassifyContextError(ctx.Err())
	default:
	}

	ctx, span := s.client.tracer.Start(ctx, "algolia.search",
		trace.WithAttributes(
			attribute.String("algolia.index_name", s.indexName),
			attribute.String("algolia.query", query),
		),
	)
	defer span.End()

	expr, err := iipsearch.ParseQuery(query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query rejected")
		return nil, err
	}

	text, queryFilters, err := splitQuery(expr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query rejected")
		return nil, err
	}

	cfg := iipsearch.NewSearchConfig(opts...)
	cfg.Filters = append(queryFilters, cfg.Filters...)

	params, err := buildSearchParams(cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query rejected")
		return nil, err
	}

	algoliaClient, err := s.client.getClient()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get Algolia client")
		return nil, errors.WithSecondaryError(
			iipsearch.ErrBackendUnavailable,
			errors.Wrapf(err, "failed to get Algolia client"),
		)
	}

	index := algoliaClient.InitIndex(s.indexName)

	res, err := index.Search(text, params...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Algolia search failed")
		if ctxErr := iipsearch.ClassifyContextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WithSecondaryError(
			iipsearch.ErrBackendUnavailable,
			errors.Wrapf(err, "Algolia search failed"),
		)
	}

	results := &iipsearch.Results{
		Items: make([]iipsearch.Result, 0, len(res.Hits)),
		Total: int64(res.NbHits),
		Query: query,
	}

	for _, hit := range res.Hits {
		objectID, ok := hit["objectID"].(string)
		if !ok {
			objectID = ""
		}

		// Algolia doesn't provide scores directly, use rank-based scoring
		score := calculateScore(len(res.Hits), len(results.Items))
		if score > results.MaxScore {
			results.MaxScore = score
		}

		results.Items = append(results.Items, iipsearch.Result{
			ID:     objectID,
			Score:  score,
			Fields: hit,
		})
	}

	nextPage := res.Page + 1
	if nextPage < res.NbPages {
		nextOffset := nextPage * cfg.Limit
		results.NextOffset = &nextOffset
	}

	if len(cfg.Facets) > 0 && res.Facets != nil {
		results.Facets = make(iipsearch.FacetCounts, len(cfg.Facets))
		for _, field := range cfg.Facets {
			if counts, ok := res.Facets[field]; ok {
				results.Facets[field] = iipsearch.FacetCountsFromMap(counts)
			}
		}
	}

	results.Took = time.Since(startTime).Milliseconds()
	span.SetStatus(codes.Ok, fmt.Sprintf("%d hits", results.Total))
	return results, nil
}

// splitQuery separates free-text terms, which Algolia searches as the query
// string, from field clauses, which it can only apply as filters.
func splitQuery(expr iipsearch.Expression) (string, []iipsearch.Expression, error) {
	var (
		terms   []string
		filters []iipsearch.Expression
	)

	add := func(e iipsearch.Expression) error {
		switch v := e.(type) {
		case iipsearch.MatchAllExpr:
			return nil
		case iipsearch.TermExpr:
			if v.Field == "" {
				terms = append(terms, v.Value)
				return nil
			}
		}
		if hasFreeText(e) {
			return errors.Wrapf(iipsearch.ErrMalformedQuery, "free text inside %q cannot be filtered", e.String())
		}
		filters = append(filters, e)
		return nil
	}

	if and, ok := expr.(iipsearch.AndExpr); ok {
		for _, e := range and.Exprs {
			if err := add(e); err != nil {
				return "", nil, err
			}
		}
	} else if err := add(expr); err != nil {
		return "", nil, err
	}

	return strings.Join(terms, " "), filters, nil
}

func hasFreeText(expr iipsearch.Expression) bool {
	switch e := expr.(type) {
	case iipsearch.TermExpr:
		return e.Field == ""
	case iipsearch.AndExpr:
		for _, sub := range e.Exprs {
			if hasFreeText(sub) {
				return true
			}
		}
	case iipsearch.OrExpr:
		for _, sub := range e.Exprs {
			if hasFreeText(sub) {
				return true
			}
		}
	case iipsearch.NotExpr:
		return hasFreeText(e.Inner)
	}
	return false
}

// buildSearchParams converts iipsearch.SearchConfig to Algolia search parameters
func buildSearchParams(cfg *iipsearch.SearchConfig) ([]interface{}, error) {
	var params []interface{}

	params = append(params, opt.HitsPerPage(cfg.Limit))
	if cfg.Offset > 0 {
		page := cfg.Offset / cfg.Limit
		params = append(params, opt.Page(page))
	}

	if len(cfg.Filters) > 0 {
		filterStrings := make([]string, 0, len(cfg.Filters))
		for _, expr := range cfg.Filters {
			filterStr, err := convertExpressionToFilter(expr)
			if err != nil {
				return nil, err
			}
			if filterStr != "" {
				filterStrings = append(filterStrings, filterStr)
			}
		}
		if len(filterStrings) > 0 {
			params = append(params, opt.Filters(strings.Join(filterStrings, " AND ")))
		}
	}

	if len(cfg.Facets) > 0 {
		params = append(params, opt.Facets(cfg.Facets...))
	}

	// Custom sorting needs replica indices in Algolia; relevance order is kept.

	return params, nil
}

// calculateScore creates a rank-based score for Algolia results
func calculateScore(totalResults, position int) float64 {
	if totalResults == 0 {
		return 1.0
	}
	return float64(totalResults-position) / float64(totalResults)
}

// convertExpressionToFilter converts an iipsearch expression to an Algolia filter string
func convertExpressionToFilter(expr iipsearch.Expression) (string, error) {
	switch e := expr.(type) {
	case iipsearch.MatchAllExpr:
		return "", nil
	case iipsearch.AndExpr:
		return convertGroup(e.Exprs, " AND ", false)
	case iipsearch.OrExpr:
		return convertGroup(e.Exprs, " OR ", true)
	case iipsearch.NotExpr:
		inner, err := convertExpressionToFilter(e.Inner)
		if err != nil || inner == "" {
			return "", err
		}
		return "NOT " + inner, nil
	case iipsearch.TermExpr:
		if e.Field == "" {
			return "", errors.Wrapf(iipsearch.ErrMalformedQuery, "free text %q cannot be filtered", e.Value)
		}
		return fmt.Sprintf("%s:%s", escapeField(e.Field), escapeValue(e.Value)), nil
	case iipsearch.RangeExpr:
		return convertRangeExpression(e), nil
	case iipsearch.ExistsExpr:
		return "", errors.Wrapf(iipsearch.ErrMalformedQuery, "existence check on %q is not supported by Algolia", e.Field)
	default:
		return "", errors.Wrapf(iipsearch.ErrInvalidExpression, "unsupported expression %T", expr)
	}
}

// convertGroup joins sub-filters. Algolia accepts (A OR B) AND C but not
// (A AND B) OR C, so OR groups may not contain AND groups.
func convertGroup(exprs []iipsearch.Expression, sep string, isOr bool) (string, error) {
	filters := make([]string, 0, len(exprs))
	for _, e := range exprs {
		if _, nestedAnd := e.(iipsearch.AndExpr); isOr && nestedAnd {
			return "", errors.Wrap(iipsearch.ErrMalformedQuery, "Algolia filters cannot nest AND inside OR")
		}
		filter, err := convertExpressionToFilter(e)
		if err != nil {
			return "", err
		}
		if filter != "" {
			filters = append(filters, "("+filter+")")
		}
	}
	if len(filters) == 0 {
		return "", nil
	}
	return strings.Join(filters, sep), nil
}

// convertRangeExpression converts a range expression to Algolia numeric filter syntax
func convertRangeExpression(expr iipsearch.RangeExpr) string {
	field := escapeField(expr.Field)
	minOpen, maxOpen := iipsearch.OpenBound(expr.Min), iipsearch.OpenBound(expr.Max)

	switch {
	case !minOpen && !maxOpen:
		return fmt.Sprintf("%s:%s TO %s", field, escapeNumericValue(expr.Min), escapeNumericValue(expr.Max))
	case !minOpen:
		return fmt.Sprintf("%s >= %s", field, escapeNumericValue(expr.Min))
	case !maxOpen:
		return fmt.Sprintf("%s <= %s", field, escapeNumericValue(expr.Max))
	default:
		return ""
	}
}

// escapeField escapes field names for Algolia filters
func escapeField(field string) string {
	if strings.ContainsAny(field, " :-()") {
		return fmt.Sprintf(`"%s"`, field)
	}
	return field
}

// escapeValue quotes string values for Algolia filters
func escapeValue(value string) string {
	escaped := strings.ReplaceAll(value, `"`, `\"`)
	return fmt.Sprintf(`"%s"`, escaped)
}

// escapeNumericValue passes numbers through and quotes anything else
func escapeNumericValue(value string) string {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value
	}
	return escapeValue(value)
}
