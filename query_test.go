package iipsearch

import (
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected Expression
	}{
		{
			name:     "empty query matches all",
			query:    "   ",
			expected: MatchAllExpr{},
		},
		{
			name:     "match all",
			query:    "*:*",
			expected: MatchAllExpr{},
		},
		{
			name:     "bare term",
			query:    "Jerusalem",
			expected: TermExpr{Value: "Jerusalem"},
		},
		{
			name:     "field term",
			query:    "city:Jerusalem",
			expected: TermExpr{Field: "city", Value: "Jerusalem"},
		},
		{
			name:     "quoted phrase",
			query:    `title:"burial inscription"`,
			expected: TermExpr{Field: "title", Value: "burial inscription", Phrase: true},
		},
		{
			name:     "field group applies field to bare terms",
			query:    "display_status:(approved)",
			expected: TermExpr{Field: "display_status", Value: "approved"},
		},
		{
			name:  "field group with OR",
			query: "language:(Greek OR Latin)",
			expected: OrExpr{Exprs: []Expression{
				TermExpr{Field: "language", Value: "Greek"},
				TermExpr{Field: "language", Value: "Latin"},
			}},
		},
		{
			name:     "range",
			query:    "notBefore:[-500 TO 10000]",
			expected: RangeExpr{Field: "notBefore", Min: "-500", Max: "10000"},
		},
		{
			name:     "exists",
			query:    "bibl:*",
			expected: ExistsExpr{Field: "bibl"},
		},
		{
			name:  "implicit and explicit AND",
			query: "display_status:(approved) AND city:Caesarea funerary",
			expected: AndExpr{Exprs: []Expression{
				TermExpr{Field: "display_status", Value: "approved"},
				TermExpr{Field: "city", Value: "Caesarea"},
				TermExpr{Value: "funerary"},
			}},
		},
		{
			name:  "OR binds looser than AND",
			query: "a AND b OR c",
			expected: OrExpr{Exprs: []Expression{
				AndExpr{Exprs: []Expression{TermExpr{Value: "a"}, TermExpr{Value: "b"}}},
				TermExpr{Value: "c"},
			}},
		},
		{
			name:     "NOT",
			query:    "NOT religion:Jewish",
			expected: NotExpr{Inner: TermExpr{Field: "religion", Value: "Jewish"}},
		},
		{
			name:     "escaped colon stays in term",
			query:    `urn\:iip`,
			expected: TermExpr{Value: "urn:iip"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery(%q) failed: %v", tt.query, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseQuery(%q)\n got: %#v\nwant: %#v", tt.query, got, tt.expected)
			}
		})
	}
}

func TestParseQueryMalformed(t *testing.T) {
	queries := []string{
		"(unbalanced",
		"unbalanced)",
		`"unterminated`,
		"city:",
		"city: AND",
		"notBefore:[5 10]",
		"notBefore:[5 TO 10",
		"AND",
		"a OR",
		"NOT",
		"*:foo",
		":value",
		`trailing\`,
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			_, err := ParseQuery(q)
			if err == nil {
				t.Fatalf("expected error for %q", q)
			}
			if !errors.Is(err, ErrMalformedQuery) {
				t.Errorf("expected ErrMalformedQuery, got %v", err)
			}
		})
	}
}

func TestExpressionStringRoundTrip(t *testing.T) {
	exprs := []Expression{
		All(),
		Eq("city", "Jerusalem"),
		TermExpr{Field: "title", Value: "two words", Phrase: true},
		Range("notAfter", "", "-200"),
		Exists("bibl"),
		And(Eq("display_status", "approved"), Or(Eq("language", "Greek"), Eq("language", "Latin"))),
		Not(And(Term("stele"), Eq("type", "funerary"))),
		Eq("note", `has "quotes"`),
	}

	for _, e := range exprs {
		t.Run(e.String(), func(t *testing.T) {
			parsed, err := ParseQuery(e.String())
			if err != nil {
				t.Fatalf("ParseQuery(%q) failed: %v", e.String(), err)
			}
			if parsed.String() != e.String() {
				t.Errorf("round trip changed rendering: %q -> %q", e.String(), parsed.String())
			}
		})
	}
}

func TestExpressionAsOption(t *testing.T) {
	cfg := NewSearchConfig(
		Eq("region", "Galilee"),
		WithLimit(25),
		WithFacets("region", "city"),
	)

	if cfg.Limit != 25 {
		t.Errorf("Expected limit 25, got %d", cfg.Limit)
	}
	if len(cfg.Filters) != 1 {
		t.Fatalf("Expected 1 filter, got %d", len(cfg.Filters))
	}
	if cfg.Filters[0].String() != "region:Galilee" {
		t.Errorf("Unexpected filter %q", cfg.Filters[0].String())
	}
	if !reflect.DeepEqual(cfg.Facets, []string{"region", "city"}) {
		t.Errorf("Unexpected facets %v", cfg.Facets)
	}
}

func TestNewSearchConfigDefaults(t *testing.T) {
	cfg := NewSearchConfig(WithOffset(-3))
	if cfg.Limit != DefaultLimit {
		t.Errorf("Expected default limit %d, got %d", DefaultLimit, cfg.Limit)
	}
	if cfg.Offset != 0 {
		t.Errorf("Expected negative offset clamped to 0, got %d", cfg.Offset)
	}
}

func TestFacetCountsFromMap(t *testing.T) {
	got := FacetCountsFromMap(map[string]int{"Greek": 3, "Aramaic": 3, "Latin": 7})
	want := []FacetCount{{"Latin", 7}, {"Aramaic", 3}, {"Greek", 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
