package algolia

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/iipsearch"
)

func TestSplitQuery(t *testing.T) {
	tests := []struct {
		name            string
		query           string
		expectedText    string
		expectedFilters []string
		expectedErr     error
	}{
		{
			name:            "match all",
			query:           "*:*",
			expectedText:    "",
			expectedFilters: nil,
		},
		{
			name:            "free text only",
			query:           "stele menorah",
			expectedText:    "stele menorah",
			expectedFilters: nil,
		},
		{
			name:            "approved restriction with free text",
			query:           "display_status:(approved) AND stele",
			expectedText:    "stele",
			expectedFilters: []string{"display_status:approved"},
		},
		{
			name:            "field clauses only",
			query:           "city:Akko AND notBefore:[-200 TO 10000]",
			expectedText:    "",
			expectedFilters: []string{"city:Akko", "notBefore:[-200 TO 10000]"},
		},
		{
			name:        "free text under OR",
			query:       "stele OR city:Akko",
			expectedErr: iipsearch.ErrMalformedQuery,
		},
		{
			name:        "free text under NOT",
			query:       "city:Akko AND NOT (julia OR simon)",
			expectedErr: iipsearch.ErrMalformedQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := iipsearch.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery(%q) failed: %v", tt.query, err)
			}

			text, filters, err := splitQuery(expr)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("Expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("splitQuery failed: %v", err)
			}

			if text != tt.expectedText {
				t.Errorf("Expected text %q, got %q", tt.expectedText, text)
			}
			if len(filters) != len(tt.expectedFilters) {
				t.Fatalf("Expected %d filters, got %d (%v)", len(tt.expectedFilters), len(filters), filters)
			}
			for i, f := range filters {
				if f.String() != tt.expectedFilters[i] {
					t.Errorf("Filter %d: expected %q, got %q", i, tt.expectedFilters[i], f.String())
				}
			}
		})
	}
}

func TestBuildSearchParams(t *testing.T) {
	tests := []struct {
		name          string
		opts          []iipsearch.SearchOption
		expectedCount int
		expectedErr   error
	}{
		{
			name:          "defaults",
			opts:          nil,
			expectedCount: 1, // HitsPerPage
		},
		{
			name: "with pagination",
			opts: []iipsearch.SearchOption{
				iipsearch.WithLimit(25),
				iipsearch.WithOffset(50),
			},
			expectedCount: 2, // HitsPerPage, Page
		},
		{
			name: "with filters",
			opts: []iipsearch.SearchOption{
				iipsearch.Eq("display_status", "approved"),
				iipsearch.Range("notAfter", "-10000", "-200"),
			},
			expectedCount: 2, // HitsPerPage, Filters
		},
		{
			name: "with facets",
			opts: []iipsearch.SearchOption{
				iipsearch.WithLimit(25),
				iipsearch.WithFacets("region", "city", "language"),
			},
			expectedCount: 2, // HitsPerPage, Facets
		},
		{
			name: "match all filter only",
			opts: []iipsearch.SearchOption{
				iipsearch.All(),
			},
			expectedCount: 1,
		},
		{
			name: "unsupported filter",
			opts: []iipsearch.SearchOption{
				iipsearch.Exists("bibl"),
			},
			expectedErr: iipsearch.ErrMalformedQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := iipsearch.NewSearchConfig(tt.opts...)
			params, err := buildSearchParams(cfg)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("Expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildSearchParams failed: %v", err)
			}

			if len(params) != tt.expectedCount {
				t.Errorf("Expected %d params, got %d", tt.expectedCount, len(params))
			}
		})
	}
}

func TestConvertExpressionToFilter(t *testing.T) {
	tests := []struct {
		name        string
		expr        iipsearch.Expression
		expected    string
		expectedErr error
	}{
		{
			name:     "field term",
			expr:     iipsearch.Eq("city", "Akko"),
			expected: `city:"Akko"`,
		},
		{
			name:     "bounded range",
			expr:     iipsearch.Range("notBefore", "-200", "10000"),
			expected: "notBefore:-200 TO 10000",
		},
		{
			name:     "open lower bound",
			expr:     iipsearch.Range("notAfter", "*", "-200"),
			expected: "notAfter <= -200",
		},
		{
			name:     "open upper bound",
			expr:     iipsearch.Range("notBefore", "-44", ""),
			expected: "notBefore >= -44",
		},
		{
			name:     "fully open range",
			expr:     iipsearch.Range("notBefore", "*", "*"),
			expected: "",
		},
		{
			name:     "match all",
			expr:     iipsearch.All(),
			expected: "",
		},
		{
			name:     "AND expression",
			expr:     iipsearch.And(iipsearch.Eq("display_status", "approved"), iipsearch.Eq("region", "Galilee")),
			expected: `(display_status:"approved") AND (region:"Galilee")`,
		},
		{
			name:     "OR expression",
			expr:     iipsearch.Or(iipsearch.Eq("language", "Greek"), iipsearch.Eq("language", "Hebrew")),
			expected: `(language:"Greek") OR (language:"Hebrew")`,
		},
		{
			name:     "NOT expression",
			expr:     iipsearch.Not(iipsearch.Eq("type", "funerary")),
			expected: `NOT type:"funerary"`,
		},
		{
			name: "OR inside AND",
			expr: iipsearch.And(
				iipsearch.Eq("display_status", "approved"),
				iipsearch.Or(iipsearch.Eq("city", "Akko"), iipsearch.Eq("city", "Jaffa")),
			),
			expected: `(display_status:"approved") AND ((city:"Akko") OR (city:"Jaffa"))`,
		},
		{
			name:     "quoted value",
			expr:     iipsearch.Eq("title", `the "Julia" stele`),
			expected: `title:"the \"Julia\" stele"`,
		},
		{
			name: "AND inside OR",
			expr: iipsearch.Or(
				iipsearch.And(iipsearch.Eq("city", "Akko"), iipsearch.Eq("type", "funerary")),
				iipsearch.Eq("city", "Jaffa"),
			),
			expectedErr: iipsearch.ErrMalformedQuery,
		},
		{
			name:        "free text term",
			expr:        iipsearch.Term("stele"),
			expectedErr: iipsearch.ErrMalformedQuery,
		},
		{
			name:        "exists",
			expr:        iipsearch.Exists("bibl"),
			expectedErr: iipsearch.ErrMalformedQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := convertExpressionToFilter(tt.expr)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("Expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("convertExpressionToFilter failed: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected filter '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestEscapeField(t *testing.T) {
	tests := []struct {
		field    string
		expected string
	}{
		{field: "city", expected: "city"},
		{field: "physical type", expected: `"physical type"`},
		{field: "iip:id", expected: `"iip:id"`},
		{field: "not-before", expected: `"not-before"`},
	}

	for _, tt := range tests {
		if got := escapeField(tt.field); got != tt.expected {
			t.Errorf("escapeField(%q) = %q, want %q", tt.field, got, tt.expected)
		}
	}
}

func TestEscapeNumericValue(t *testing.T) {
	tests := []struct {
		value    string
		expected string
	}{
		{value: "-44", expected: "-44"},
		{value: "79", expected: "79"},
		{value: "3.5", expected: "3.5"},
		{value: "abc", expected: `"abc"`},
	}

	for _, tt := range tests {
		if got := escapeNumericValue(tt.value); got != tt.expected {
			t.Errorf("escapeNumericValue(%q) = %q, want %q", tt.value, got, tt.expected)
		}
	}
}

func TestCalculateScore(t *testing.T) {
	tests := []struct {
		total, position int
		expected        float64
	}{
		{total: 0, position: 0, expected: 1.0},
		{total: 4, position: 0, expected: 1.0},
		{total: 4, position: 1, expected: 0.75},
		{total: 4, position: 3, expected: 0.25},
	}

	for _, tt := range tests {
		if got := calculateScore(tt.total, tt.position); got != tt.expected {
			t.Errorf("calculateScore(%d, %d) = %v, want %v", tt.total, tt.position, got, tt.expected)
		}
	}
}

func TestSearcherInterface(t *testing.T) {
	client := NewClient(StaticSecrets("test-app", "test-key"))
	var _ iipsearch.Searcher = NewSearcher(client, "iip")
}

func TestSearchWithInvalidClient(t *testing.T) {
	fetchSecrets := func() (Secrets, error) {
		return Secrets{}, fmt.Errorf("failed to fetch secrets")
	}
	searcher := NewSearcher(NewClient(fetchSecrets), "iip")

	_, err := searcher.Search(context.Background(), "stele")
	if !errors.Is(err, iipsearch.ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got: %v", err)
	}

	errStr := fmt.Sprintf("%+v", err)
	if !strings.Contains(errStr, "failed to get Algolia client") {
		t.Errorf("Expected error details to contain 'failed to get Algolia client', got: %v", errStr)
	}
}

func TestSearchRejectsBeforeConnecting(t *testing.T) {
	calls := 0
	fetchSecrets := func() (Secrets, error) {
		calls++
		return Secrets{AppID: "app", WriteApiKey: "key"}, nil
	}
	searcher := NewSearcher(NewClient(fetchSecrets), "iip")

	for _, query := range []string{"city:(", "stele OR city:Akko", "bibl:*"} {
		_, err := searcher.Search(context.Background(), query)
		if !errors.Is(err, iipsearch.ErrMalformedQuery) {
			t.Errorf("Search(%q): expected ErrMalformedQuery, got %v", query, err)
		}
	}

	if calls != 0 {
		t.Errorf("Expected no credential lookups for rejected queries, got %d", calls)
	}
}

func TestSearchWithCanceledContext(t *testing.T) {
	searcher := NewSearcher(NewClient(StaticSecrets("test-app", "test-key")), "iip")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := searcher.Search(ctx, "stele")
	if !errors.Is(err, iipsearch.ErrCanceled) {
		t.Errorf("Expected ErrCanceled, got: %v", err)
	}
}

func TestSearchWithTimeout(t *testing.T) {
	searcher := NewSearcher(NewClient(StaticSecrets("test-app", "test-key")), "iip")

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := searcher.Search(ctx, "stele")
	if !errors.Is(err, iipsearch.ErrTimeout) {
		t.Errorf("Expected ErrTimeout for timed out context, got: %v", err)
	}
}

func TestErrorCodeUsage(t *testing.T) {
	tests := []struct {
		name         string
		fetchSecrets FetchSecrets
	}{
		{
			name: "invalid credentials",
			fetchSecrets: func() (Secrets, error) {
				return Secrets{}, fmt.Errorf("secrets unavailable")
			},
		},
		{
			name:         "empty app id",
			fetchSecrets: StaticSecrets("", "key"),
		},
		{
			name:         "empty api key",
			fetchSecrets: StaticSecrets("app", ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := NewSearcher(NewClient(tt.fetchSecrets), "iip")
			_, err := searcher.Search(context.Background(), "stele")
			if !errors.Is(err, iipsearch.ErrBackendUnavailable) {
				t.Errorf("Expected ErrBackendUnavailable, got: %v", err)
			}
		})
	}
}
