package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/iipsearch"
)

// Document represents a JSON document in the in-memory index.
type Document struct {
	// ID is the unique identifier for the document.
	ID string
	// Fields contains the document's data as key-value pairs.
	Fields map[string]interface{}
}

// Searcher implements the iipsearch.Searcher interface using an in-memory store.
// Queries use the syntax accepted by iipsearch.ParseQuery; anything it rejects
// is reported as iipsearch.ErrMalformedQuery, the way a Solr core answers 400.
type Searcher struct {
	mu        sync.RWMutex
	documents []Document
	idIndex   map[string]int // maps document ID to index in documents slice
}

// New creates a new in-memory searcher.
// The searcher is ready to use and is safe for concurrent operations.
func New() *Searcher {
	return &Searcher{
		documents: make([]Document, 0),
		idIndex:   make(map[string]int),
	}
}

// AddDocument adds a document to the in-memory store.
// If a document with the same ID already exists, it will be updated.
func (s *Searcher) AddDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, exists := s.idIndex[doc.ID]; exists {
		s.documents[idx] = doc
	} else {
		s.idIndex[doc.ID] = len(s.documents)
		s.documents = append(s.documents, doc)
	}
}

// AddJSON adds a JSON document to the in-memory store by parsing the provided JSON data.
// If a document with the same ID already exists, it will be updated.
func (s *Searcher) AddJSON(id string, jsonData []byte) error {
	var fields map[string]interface{}
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return errors.Wrap(err, "failed to unmarshal JSON")
	}

	s.AddDocument(Document{
		ID:     id,
		Fields: fields,
	})
	return nil
}

// RemoveDocument removes a document by ID from the in-memory store.
// Returns true if the document was found and removed.
func (s *Searcher) RemoveDocument(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, exists := s.idIndex[id]
	if !exists {
		return false
	}

	s.documents = append(s.documents[:idx], s.documents[idx+1:]...)

	delete(s.idIndex, id)
	for i := idx; i < len(s.documents); i++ {
		s.idIndex[s.documents[i].ID] = i
	}

	return true
}

// Clear removes all documents from the store.
func (s *Searcher) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents = make([]Document, 0)
	s.idIndex = make(map[string]int)
}

// Size returns the number of documents currently stored in the in-memory store.
func (s *Searcher) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

// Search implements the iipsearch.Searcher interface.
func (s *Searcher) Search(ctx context.Context, query string, opts ...iipsearch.SearchOption) (*iipsearch.Results, error) {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return nil, iipsearch.ClassifyContextError(ctx.Err())
	default:
	}

	expr, err := iipsearch.ParseQuery(query)
	if err != nil {
		return nil, err
	}

	cfg := iipsearch.NewSearchConfig(opts...)
	terms := freeTextTerms(expr)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []scoredDocument
	for i, doc := range s.documents {
		if i%256 == 0 {
			select {
			case <-ctx.Done():
				return nil, iipsearch.ClassifyContextError(ctx.Err())
			default:
			}
		}

		if !s.evaluateExpression(doc, expr) || !s.matchesFilters(doc, cfg.Filters) {
			continue
		}
		matches = append(matches, scoredDocument{
			document: doc,
			score:    s.scoreDocument(doc, terms),
			position: i,
		})
	}

	s.sortMatches(matches, cfg.Sort)

	total := int64(len(matches))
	start := cfg.Offset
	end := cfg.Offset + cfg.Limit
	if end > len(matches) {
		end = len(matches)
	}
	if start > len(matches) {
		start = len(matches)
	}

	results := &iipsearch.Results{
		Items: make([]iipsearch.Result, 0, end-start),
		Total: total,
		Query: query,
	}

	maxScore := 0.0
	for _, match := range matches {
		if match.score > maxScore {
			maxScore = match.score
		}
	}
	for i := start; i < end; i++ {
		match := matches[i]
		results.Items = append(results.Items, iipsearch.Result{
			ID:     match.document.ID,
			Score:  match.score,
			Fields: copyFields(match.document.Fields),
		})
	}
	results.MaxScore = maxScore

	if end < len(matches) {
		nextOffset := end
		results.NextOffset = &nextOffset
	}

	if len(cfg.Facets) > 0 {
		results.Facets = countFacets(matches, cfg.Facets)
	}

	results.Took = time.Since(startTime).Milliseconds()
	return results, nil
}

type scoredDocument struct {
	document Document
	score    float64
	position int
}

// countFacets counts the distinct values of each facet field over every match,
// not only the returned page.
func countFacets(matches []scoredDocument, fields []string) iipsearch.FacetCounts {
	facets := make(iipsearch.FacetCounts, len(fields))
	for _, field := range fields {
		counts := make(map[string]int)
		for _, m := range matches {
			for _, v := range fieldValues(m.document.Fields[field]) {
				counts[v]++
			}
		}
		facets[field] = iipsearch.FacetCountsFromMap(counts)
	}
	return facets
}

// copyFields returns a shallow copy so callers can decorate hits without
// mutating the stored document.
func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// scoreDocument scores a matching document by how often its free-text terms occur.
func (s *Searcher) scoreDocument(doc Document, terms []string) float64 {
	if len(terms) == 0 {
		return 1.0
	}

	score := 1.0
	matchedTerms := 0
	for _, term := range terms {
		termMatched := false
		for _, value := range doc.Fields {
			if s.valueContainsTerm(value, term) {
				termMatched = true
				score += 1.0
			}
		}
		if termMatched {
			matchedTerms++
		}
	}

	// Boost score if all terms matched
	if matchedTerms == len(terms) {
		score *= 1.5
	}

	return score
}

// valueContainsTerm checks if a value contains the search term.
func (s *Searcher) valueContainsTerm(value interface{}, term string) bool {
	term = strings.ToLower(term)
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), term)
	case []interface{}:
		for _, item := range v {
			if s.valueContainsTerm(item, term) {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if strings.Contains(strings.ToLower(item), term) {
				return true
			}
		}
	case map[string]interface{}:
		for _, item := range v {
			if s.valueContainsTerm(item, term) {
				return true
			}
		}
	case nil:
		return false
	default:
		str := fmt.Sprintf("%v", v)
		return strings.Contains(strings.ToLower(str), term)
	}
	return false
}

// sortMatches sorts the matched documents according to the sort configuration.
// Ties keep insertion order.
func (s *Searcher) sortMatches(matches []scoredDocument, sortFields []iipsearch.SortField) {
	if len(sortFields) == 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].score > matches[j].score
		})
		return
	}

	sort.SliceStable(matches, func(i, j int) bool {
		for _, sf := range sortFields {
			if sf.Field == "_score" || sf.Field == "score" {
				if matches[i].score != matches[j].score {
					if sf.Desc {
						return matches[i].score > matches[j].score
					}
					return matches[i].score < matches[j].score
				}
				continue
			}

			val1 := matches[i].document.Fields[sf.Field]
			val2 := matches[j].document.Fields[sf.Field]

			cmp := s.compareValues(val1, val2)
			if cmp != 0 {
				if sf.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return matches[i].position < matches[j].position
	})
}

// compareValues compares two values for sorting.
func (s *Searcher) compareValues(v1, v2 interface{}) int {
	if v1 == nil && v2 == nil {
		return 0
	}
	if v1 == nil {
		return -1
	}
	if v2 == nil {
		return 1
	}

	if f1, ok1 := toFloat64(v1); ok1 {
		if f2, ok2 := toFloat64(v2); ok2 {
			if f1 < f2 {
				return -1
			} else if f1 > f2 {
				return 1
			}
			return 0
		}
	}

	s1 := fmt.Sprintf("%v", v1)
	s2 := fmt.Sprintf("%v", v2)
	return strings.Compare(s1, s2)
}
