// Package catalog orchestrates inscription catalog searches on top of an
// iipsearch.Searcher: it restricts anonymous callers to approved records,
// falls back to the match-all query when the index rejects a query, pages and
// facets the results, rewrites the query for display and joins hits to the
// bibliography index.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/iipsearch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// PageSize is the number of hits per result page and per built query.
const PageSize = 25

const defaultEnrichConcurrency = 4

// FacetFields are the fields counted by the facet query.
var FacetFields = []string{"region", "city", "type", "physical_type", "language", "religion"}

// Recorder receives counts of recovered failures and finished searches.
// *metrics.Metrics from internal/metrics implements it.
type Recorder interface {
	FallbackQuery(query string)
	EmptyPage(reason string)
	FacetUnavailable()
	BiblioLookupFailed()
	SearchFinished(status string, took time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) FallbackQuery(string)                 {}
func (nopRecorder) EmptyPage(string)                     {}
func (nopRecorder) FacetUnavailable()                    {}
func (nopRecorder) BiblioLookupFailed()                  {}
func (nopRecorder) SearchFinished(string, time.Duration) {}

// Catalog runs searches against the inscription index and bibliography
// lookups against the biblio index.
type Catalog struct {
	searcher          iipsearch.Searcher
	biblio            iipsearch.Searcher
	recorder          Recorder
	enrichConcurrency int
	tracer            trace.Tracer
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRecorder sets where failure and search counts go.
func WithRecorder(r Recorder) Option {
	return func(c *Catalog) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithEnrichConcurrency bounds the number of concurrent bibliography lookups.
func WithEnrichConcurrency(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.enrichConcurrency = n
		}
	}
}

// New creates a Catalog. biblio may be nil when enrichment is not used.
func New(searcher, biblio iipsearch.Searcher, opts ...Option) *Catalog {
	c := &Catalog{
		searcher:          searcher,
		biblio:            biblio,
		recorder:          nopRecorder{},
		enrichConcurrency: defaultEnrichConcurrency,
		tracer:            otel.Tracer("iipsearch-catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchRequest is one catalog search. Pages start at 1.
type SearchRequest struct {
	Query      string
	Page       int
	LogID      int
	Authorized bool
}

// NewSearchRequest builds a request for the caller behind session, which may
// be nil for background callers.
func NewSearchRequest(query string, page int, session Session) SearchRequest {
	return SearchRequest{
		Query:      query,
		Page:       page,
		LogID:      LogID(session),
		Authorized: IsAuthorized(session),
	}
}

// BuiltQuery is a query that has been executed against the index.
// Fallback is set when the index rejected the query and the match-all query
// ran instead; Query is then iipsearch.MatchAll.
type BuiltQuery struct {
	Query    string
	Fallback bool
	Results  *iipsearch.Results
}

// Response is the result of Catalog.Search.
type Response struct {
	Page           ResultPage            `json:"page"`
	RequestedPage  int                   `json:"requested_page"`
	Query          string                `json:"query"`
	EffectiveQuery string                `json:"effective_query"`
	Fallback       bool                  `json:"fallback"`
	Facets         iipsearch.FacetCounts `json:"facets"`
	DisplayQuery   string                `json:"display_query"`
}

// Build runs query for the first page of hits.
func (c *Catalog) Build(ctx context.Context, query string) (BuiltQuery, error) {
	return c.build(ctx, query, "main")
}

// BuildFacetQuery runs query with facet counts over FacetFields. It falls
// back independently of Build.
func (c *Catalog) BuildFacetQuery(ctx context.Context, query string) (BuiltQuery, error) {
	return c.build(ctx, query, "facet", iipsearch.WithFacets(FacetFields...))
}

// build runs query and, only when the index rejects it as malformed, the
// match-all query. Any other failure, and a failing match-all query, is
// returned.
func (c *Catalog) build(ctx context.Context, query, kind string, opts ...iipsearch.SearchOption) (BuiltQuery, error) {
	opts = append([]iipsearch.SearchOption{iipsearch.WithLimit(PageSize)}, opts...)

	res, err := c.searcher.Search(ctx, query, opts...)
	if err == nil {
		return BuiltQuery{Query: query, Results: res}, nil
	}
	if !errors.Is(err, iipsearch.ErrMalformedQuery) {
		return BuiltQuery{}, errors.Wrapf(err, "%s query", kind)
	}

	slog.WarnContext(ctx, "Query rejected by index, falling back to match-all",
		logIDAttr(ctx), "kind", kind, "query", query, "error", err)
	c.recorder.FallbackQuery(kind)

	res, err = c.searcher.Search(ctx, iipsearch.MatchAll, opts...)
	if err != nil {
		return BuiltQuery{}, errors.Wrapf(err, "%s fallback query", kind)
	}
	return BuiltQuery{Query: iipsearch.MatchAll, Fallback: true, Results: res}, nil
}

// Search runs a full catalog search: access restriction, main and facet
// queries, the requested page, facet counts and the display query.
//
// Only failures of the main query are returned: an unreachable index or a
// failing fallback query. Page, facet and display problems are logged and
// degrade to an empty page, empty counts and an empty display query.
func (c *Catalog) Search(ctx context.Context, req SearchRequest) (resp *Response, err error) {
	start := time.Now()
	ctx = WithLogID(ctx, req.LogID)

	ctx, span := c.tracer.Start(ctx, "catalog.search",
		trace.WithAttributes(
			attribute.Int("catalog.log_id", req.LogID),
			attribute.Int("catalog.page", req.Page),
			attribute.Bool("catalog.authorized", req.Authorized),
		),
	)
	defer span.End()

	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.recorder.SearchFinished(status, time.Since(start))
	}()

	query := RestrictToApproved(req.Query, req.Authorized)

	// Only the main query can fail the search; a failed facet query leaves
	// facet empty.
	var main, facet BuiltQuery
	var facetErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		main, err = c.Build(gctx, query)
		return err
	})
	g.Go(func() error {
		facet, facetErr = c.BuildFacetQuery(gctx, query)
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		slog.ErrorContext(ctx, "Search failed", logIDAttr(ctx), "query", query, "error", err)
		return nil, err
	}

	page := c.Paginate(ctx, main, req.Page)

	if facetErr != nil {
		slog.WarnContext(ctx, "Facet query failed", logIDAttr(ctx), "query", query, "error", facetErr)
	}
	facets := ExtractCounts(facet)
	if facet.Results == nil || facet.Results.Facets == nil {
		slog.WarnContext(ctx, "Facet data unavailable", logIDAttr(ctx), "query", facet.Query)
		c.recorder.FacetUnavailable()
	}

	display, displayErr := DisplayQuery(query)
	if displayErr != nil {
		slog.WarnContext(ctx, "Failed to rewrite query for display", logIDAttr(ctx), "error", displayErr)
	}

	span.SetStatus(codes.Ok, fmt.Sprintf("page %d of %d", page.Number, page.NumPages))
	return &Response{
		Page:           page,
		RequestedPage:  req.Page,
		Query:          query,
		EffectiveQuery: main.Query,
		Fallback:       main.Fallback,
		Facets:         facets,
		DisplayQuery:   display,
	}, nil
}
