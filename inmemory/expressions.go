package inmemory

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/letmevibethatforyou/iipsearch"
)

// matchesFilters checks if a document matches all the filter expressions.
func (s *Searcher) matchesFilters(doc Document, filters []iipsearch.Expression) bool {
	for _, filter := range filters {
		if !s.evaluateExpression(doc, filter) {
			return false
		}
	}
	return true
}

// evaluateExpression evaluates a single expression against a document.
func (s *Searcher) evaluateExpression(doc Document, expr iipsearch.Expression) bool {
	switch e := expr.(type) {
	case iipsearch.MatchAllExpr:
		return true
	case iipsearch.AndExpr:
		return s.evaluateAnd(doc, e)
	case iipsearch.OrExpr:
		return s.evaluateOr(doc, e)
	case iipsearch.NotExpr:
		return !s.evaluateExpression(doc, e.Inner)
	case iipsearch.TermExpr:
		return s.evaluateTerm(doc, e)
	case iipsearch.RangeExpr:
		return s.evaluateRange(doc, e)
	case iipsearch.ExistsExpr:
		return len(fieldValues(doc.Fields[e.Field])) > 0
	default:
		// Unknown expression type, return true to not filter out
		return true
	}
}

// evaluateAnd evaluates an AND expression.
func (s *Searcher) evaluateAnd(doc Document, expr iipsearch.AndExpr) bool {
	for _, e := range expr.Exprs {
		if !s.evaluateExpression(doc, e) {
			return false
		}
	}
	return true
}

// evaluateOr evaluates an OR expression.
func (s *Searcher) evaluateOr(doc Document, expr iipsearch.OrExpr) bool {
	for _, e := range expr.Exprs {
		if s.evaluateExpression(doc, e) {
			return true
		}
	}
	return false
}

// evaluateTerm matches a term against one field, or against every field when
// the term has none. A value matches when it equals the term, or contains it
// as a whole token (or token sequence for phrases), ignoring case. A trailing
// '*' turns the term into a prefix match.
func (s *Searcher) evaluateTerm(doc Document, expr iipsearch.TermExpr) bool {
	if expr.Field != "" {
		return valuesMatchTerm(fieldValues(doc.Fields[expr.Field]), expr)
	}
	for _, value := range doc.Fields {
		if valuesMatchTerm(fieldValues(value), expr) {
			return true
		}
	}
	return false
}

func valuesMatchTerm(values []string, expr iipsearch.TermExpr) bool {
	want := strings.ToLower(expr.Value)
	prefix := !expr.Phrase && strings.HasSuffix(want, "*")
	if prefix {
		want = strings.TrimSuffix(want, "*")
	}
	wantTokens := tokenize(want)

	for _, v := range values {
		lv := strings.ToLower(v)
		if prefix {
			if strings.HasPrefix(lv, want) {
				return true
			}
			for _, tok := range tokenize(lv) {
				if strings.HasPrefix(tok, want) {
					return true
				}
			}
			continue
		}
		if lv == want || containsTokens(tokenize(lv), wantTokens) {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// containsTokens reports whether needle occurs as a contiguous run in haystack.
func containsTokens(haystack, needle []string) bool {
	if len(needle) == 0 {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// evaluateRange evaluates an inclusive range. Values and bounds are compared
// numerically when both parse as numbers, lexically otherwise. Any value of a
// multi-valued field may satisfy the range.
func (s *Searcher) evaluateRange(doc Document, expr iipsearch.RangeExpr) bool {
	for _, v := range fieldValues(doc.Fields[expr.Field]) {
		if !iipsearch.OpenBound(expr.Min) && compareStrings(v, expr.Min) < 0 {
			continue
		}
		if !iipsearch.OpenBound(expr.Max) && compareStrings(v, expr.Max) > 0 {
			continue
		}
		return true
	}
	return false
}

func compareStrings(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// fieldValues flattens a stored field into its string values. Lists yield one
// value per element; nil and empty strings yield nothing.
func fieldValues(v interface{}) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []interface{}:
		var out []string
		for _, item := range val {
			out = append(out, fieldValues(item)...)
		}
		return out
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}

// freeTextTerms collects the field-less terms of a query for scoring.
// Terms under NOT do not contribute.
func freeTextTerms(expr iipsearch.Expression) []string {
	switch e := expr.(type) {
	case iipsearch.TermExpr:
		if e.Field == "" {
			return []string{e.Value}
		}
	case iipsearch.AndExpr:
		var out []string
		for _, sub := range e.Exprs {
			out = append(out, freeTextTerms(sub)...)
		}
		return out
	case iipsearch.OrExpr:
		var out []string
		for _, sub := range e.Exprs {
			out = append(out, freeTextTerms(sub)...)
		}
		return out
	}
	return nil
}

// toFloat64 attempts to convert a value to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
