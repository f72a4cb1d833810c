package catalog

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/iipsearch"
	"golang.org/x/sync/errgroup"
)

// BiblioKeyField is the bibliography index field holding a record's id.
const BiblioKeyField = "biblioId"

// biblioRows is the page size of a bibliography lookup; lookups follow
// NextOffset until every record for the id is read.
const biblioRows = 10

var requiredEntryKeys = []string{"bibl", "nType", "n"}

// EncodedEntry is one decoded "bibl=...|nType=...|n=..." value of an
// inscription's bibliography field. NType and N locate the citation inside
// the bibliography item (e.g. nType "page", n "12").
type EncodedEntry struct {
	Bibl  string
	NType string
	N     string
	Attrs map[string]string
}

// ParseEncodedEntry decodes a pipe-separated list of key=value tokens.
// Every token needs an '='; bibl (non-empty), nType and n are required.
func ParseEncodedEntry(s string) (EncodedEntry, error) {
	attrs := make(map[string]string)
	for _, token := range strings.Split(s, "|") {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			return EncodedEntry{}, errors.Wrapf(iipsearch.ErrMalformedEntry, "token %q of %q has no '='", token, s)
		}
		attrs[key] = value
	}

	for _, key := range requiredEntryKeys {
		if _, ok := attrs[key]; !ok {
			return EncodedEntry{}, errors.Wrapf(iipsearch.ErrMalformedEntry, "%q is missing %s", s, key)
		}
	}
	if attrs["bibl"] == "" {
		return EncodedEntry{}, errors.Wrapf(iipsearch.ErrMalformedEntry, "%q has an empty bibl", s)
	}

	return EncodedEntry{
		Bibl:  attrs["bibl"],
		NType: attrs["nType"],
		N:     attrs["n"],
		Attrs: attrs,
	}, nil
}

// BiblioRecord is a bibliography index record cited by a hit, carrying the
// citation's nType and n (also set in Fields).
type BiblioRecord struct {
	ID     string         `json:"id"`
	NType  string         `json:"nType"`
	N      string         `json:"n"`
	Fields map[string]any `json:"fields"`
}

// EnrichFailure is a bibliography lookup that failed for one entry of a hit.
type EnrichFailure struct {
	HitID string `json:"hit_id"`
	Bibl  string `json:"bibl"`
	Err   error  `json:"-"`
}

// Enrichment is the result of Catalog.Enrich.
type Enrichment struct {
	Records  []BiblioRecord  `json:"records"`
	Failures []EnrichFailure `json:"failures,omitempty"`
}

type biblioJob struct {
	hitID string
	entry EncodedEntry
}

// Enrich looks up the bibliography records cited by each hit's target
// field. Records keep hit order, then entry order, then lookup order.
//
// All entries are decoded before any lookup; a malformed entry fails the
// call with iipsearch.ErrMalformedEntry. A failed lookup only costs its own
// entry: it is logged and reported in Failures while the other entries
// proceed. Canceling ctx returns what finished, the rest as failures.
func (c *Catalog) Enrich(ctx context.Context, hits []iipsearch.Result, target string) (*Enrichment, error) {
	if c.biblio == nil {
		return nil, errors.Wrap(iipsearch.ErrInvalidOption, "no bibliography searcher configured")
	}

	var jobs []biblioJob
	for _, hit := range hits {
		values, err := entryValues(hit.Fields[target])
		if err != nil {
			return nil, errors.Wrapf(err, "hit %s field %s", hit.ID, target)
		}
		for _, v := range values {
			entry, err := ParseEncodedEntry(v)
			if err != nil {
				return nil, errors.Wrapf(err, "hit %s field %s", hit.ID, target)
			}
			jobs = append(jobs, biblioJob{hitID: hit.ID, entry: entry})
		}
	}

	records := make([][]BiblioRecord, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(c.enrichConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			records[i], errs[i] = c.lookupBiblio(ctx, job.entry)
			return nil
		})
	}
	_ = g.Wait()

	out := &Enrichment{Records: []BiblioRecord{}}
	for i, job := range jobs {
		if errs[i] != nil {
			slog.ErrorContext(ctx, "Bibliography lookup failed", logIDAttr(ctx),
				"hit_id", job.hitID, "bibl", job.entry.Bibl, "error", errs[i])
			c.recorder.BiblioLookupFailed()
			out.Failures = append(out.Failures, EnrichFailure{HitID: job.hitID, Bibl: job.entry.Bibl, Err: errs[i]})
			continue
		}
		out.Records = append(out.Records, records[i]...)
	}
	return out, nil
}

func (c *Catalog) lookupBiblio(ctx context.Context, entry EncodedEntry) ([]BiblioRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, iipsearch.ClassifyContextError(err)
	}

	query := iipsearch.Eq(BiblioKeyField, entry.Bibl).String()

	records := []BiblioRecord{}
	offset := 0
	for {
		res, err := c.biblio.Search(ctx, query, iipsearch.WithLimit(biblioRows), iipsearch.WithOffset(offset))
		if err != nil {
			return nil, errors.Wrapf(err, "lookup %s at offset %d", query, offset)
		}

		for _, item := range res.Items {
			fields := make(map[string]any, len(item.Fields)+2)
			maps.Copy(fields, item.Fields)
			fields["nType"] = entry.NType
			fields["n"] = entry.N
			records = append(records, BiblioRecord{
				ID:     item.ID,
				NType:  entry.NType,
				N:      entry.N,
				Fields: fields,
			})
		}

		// A backend that does not advance would loop forever.
		if res.NextOffset == nil || *res.NextOffset <= offset || len(res.Items) == 0 {
			return records, nil
		}
		offset = *res.NextOffset
	}
}

// entryValues reads a hit's bibliography field, a list of encoded strings
// (a single string is accepted too). A missing field has no entries.
func entryValues(v any) ([]string, error) {
	switch values := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{values}, nil
	case []string:
		return values, nil
	case []any:
		out := make([]string, 0, len(values))
		for _, item := range values {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Wrapf(iipsearch.ErrMalformedEntry, "entry %v is %T, not a string", item, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Wrapf(iipsearch.ErrMalformedEntry, "field value is %T, not a list of strings", v)
	}
}
