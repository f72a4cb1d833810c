package iipsearch

import "context"

// MatchAll is the universal query that matches every document in an index.
const MatchAll = "*:*"

// Searcher defines the core search interface implemented by every index backend.
type Searcher interface {
	// Search executes query against the index with the given options.
	// A query the backend cannot parse or execute must yield an error
	// matching ErrMalformedQuery so callers can substitute MatchAll.
	Search(ctx context.Context, query string, opts ...SearchOption) (*Results, error)
}

// SearcherFunc is a function type that implements the Searcher interface.
// This allows using a function as a Searcher, similar to http.HandlerFunc.
type SearcherFunc func(context.Context, string, ...SearchOption) (*Results, error)

// Search implements the Searcher interface for SearcherFunc.
func (f SearcherFunc) Search(ctx context.Context, query string, opts ...SearchOption) (*Results, error) {
	return f(ctx, query, opts...)
}
