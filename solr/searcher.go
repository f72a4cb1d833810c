// Package solr implements iipsearch.Searcher against a Solr select handler.
package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/iipsearch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 30 * time.Second

// Searcher implements the iipsearch.Searcher interface for one Solr core.
type Searcher struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithHTTPClient replaces the HTTP client used for select requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Searcher) {
		s.httpClient = c
	}
}

// NewSearcher creates a searcher for the core at baseURL,
// e.g. http://localhost:8983/solr/iip.
func NewSearcher(baseURL string, opts ...Option) *Searcher {
	s := &Searcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		tracer:     otel.Tracer("iipsearch-solr"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type selectResponse struct {
	ResponseHeader struct {
		Status int `json:"status"`
		QTime  int `json:"QTime"`
	} `json:"responseHeader"`
	Response struct {
		NumFound int64                    `json:"numFound"`
		Start    int                      `json:"start"`
		MaxScore float64                  `json:"maxScore"`
		Docs     []map[string]interface{} `json:"docs"`
	} `json:"response"`
	FacetCounts *struct {
		FacetFields map[string][]interface{} `json:"facet_fields"`
	} `json:"facet_counts,omitempty"`
	Error *solrError `json:"error,omitempty"`
}

type solrError struct {
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

// Search implements the iipsearch.Searcher interface using the select handler.
// A 400 answer (Solr's SyntaxError) is reported as iipsearch.ErrMalformedQuery;
// transport failures and 5xx answers as iipsearch.ErrBackendUnavailable.
func (s *Searcher) Search(ctx context.Context, query string, opts ...iipsearch.SearchOption) (*iipsearch.Results, error) {
	startTime := time.Now()
	cfg := iipsearch.NewSearchConfig(opts...)

	ctx, span := s.tracer.Start(ctx, "solr.select",
		trace.WithAttributes(
			attribute.String("solr.core", s.baseURL),
			attribute.String("solr.query", query),
			attribute.Int("solr.rows", cfg.Limit),
			attribute.Int("solr.start", cfg.Offset),
			attribute.Int("solr.facet_fields", len(cfg.Facets)),
		),
	)
	defer span.End()

	res, err := s.doSelect(ctx, buildParams(query, cfg))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "solr select failed")
		return nil, err
	}

	results := &iipsearch.Results{
		Items:    make([]iipsearch.Result, 0, len(res.Response.Docs)),
		Total:    res.Response.NumFound,
		Query:    query,
		MaxScore: res.Response.MaxScore,
	}

	for _, doc := range res.Response.Docs {
		id, _ := doc["id"].(string)
		score, _ := doc["score"].(float64)
		results.Items = append(results.Items, iipsearch.Result{
			ID:     id,
			Score:  score,
			Fields: doc,
		})
	}

	end := res.Response.Start + len(res.Response.Docs)
	if int64(end) < res.Response.NumFound && len(res.Response.Docs) > 0 {
		results.NextOffset = &end
	}

	if len(cfg.Facets) > 0 && res.FacetCounts != nil {
		results.Facets = parseFacetFields(res.FacetCounts.FacetFields)
	}

	results.Took = time.Since(startTime).Milliseconds()
	span.SetStatus(codes.Ok, fmt.Sprintf("%d documents found", results.Total))
	return results, nil
}

// buildParams converts a query and its config into select handler parameters.
func buildParams(query string, cfg *iipsearch.SearchConfig) url.Values {
	params := url.Values{}
	params.Set("q", query)
	params.Set("wt", "json")
	params.Set("rows", strconv.Itoa(cfg.Limit))
	if cfg.Offset > 0 {
		params.Set("start", strconv.Itoa(cfg.Offset))
	}

	for _, expr := range cfg.Filters {
		params.Add("fq", expr.String())
	}

	if len(cfg.Sort) > 0 {
		sortFields := make([]string, 0, len(cfg.Sort))
		for _, sf := range cfg.Sort {
			field := sf.Field
			if field == "_score" {
				field = "score"
			}
			dir := "asc"
			if sf.Desc {
				dir = "desc"
			}
			sortFields = append(sortFields, field+" "+dir)
		}
		params.Set("sort", strings.Join(sortFields, ","))
	}

	if len(cfg.Facets) > 0 {
		params.Set("facet", "true")
		params.Set("facet.mincount", "1")
		for _, field := range cfg.Facets {
			params.Add("facet.field", field)
		}
	}

	return params
}

func (s *Searcher) doSelect(ctx context.Context, params url.Values) (*selectResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/select?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.WithSecondaryError(
			iipsearch.ErrBackendUnavailable,
			errors.Wrap(err, "failed to build Solr request"),
		)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := iipsearch.ClassifyContextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WithSecondaryError(
			iipsearch.ErrBackendUnavailable,
			errors.Wrapf(err, "Solr request to %s failed", s.baseURL),
		)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := iipsearch.ClassifyContextError(err); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WithSecondaryError(
			iipsearch.ErrBackendUnavailable,
			errors.Wrap(err, "failed to read Solr response"),
		)
	}

	var res selectResponse
	decodeErr := json.Unmarshal(body, &res)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && res.Error != nil && res.Error.Msg != "" {
			msg = res.Error.Msg
		}
		if resp.StatusCode == http.StatusBadRequest {
			return nil, errors.Wrapf(iipsearch.ErrMalformedQuery, "solr: %s", msg)
		}
		return nil, errors.WithSecondaryError(
			iipsearch.ErrBackendUnavailable,
			errors.Newf("solr answered %d: %s", resp.StatusCode, msg),
		)
	}

	if decodeErr != nil {
		return nil, errors.WithSecondaryError(
			iipsearch.ErrBackendUnavailable,
			errors.Wrap(decodeErr, "failed to decode Solr response"),
		)
	}

	return &res, nil
}

// parseFacetFields converts Solr's flat [value, count, value, count, ...]
// lists into FacetCounts. Malformed pairs are skipped.
func parseFacetFields(fields map[string][]interface{}) iipsearch.FacetCounts {
	facets := make(iipsearch.FacetCounts, len(fields))
	for field, flat := range fields {
		counts := make([]iipsearch.FacetCount, 0, len(flat)/2)
		for i := 0; i+1 < len(flat); i += 2 {
			value, ok := flat[i].(string)
			if !ok {
				continue
			}
			n, ok := flat[i+1].(float64)
			if !ok {
				continue
			}
			counts = append(counts, iipsearch.FacetCount{Value: value, Count: int(n)})
		}
		facets[field] = counts
	}
	return facets
}
