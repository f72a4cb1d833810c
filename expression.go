package iipsearch

import (
	"strings"
)

// Expression represents a node of a parsed query or a composable filter.
// All Expressions are SearchOptions, but not all SearchOptions are Expressions.
type Expression interface {
	SearchOption
	// String renders the expression in query syntax accepted by ParseQuery.
	String() string
	// expr is a marker method to distinguish expressions from other options.
	expr()
}

// baseExpr provides the expr marker method for all expression types.
type baseExpr struct{}

func (baseExpr) expr() {}

// MatchAllExpr matches every document.
type MatchAllExpr struct {
	baseExpr
}

// Apply implements the SearchOption interface for MatchAllExpr.
func (m MatchAllExpr) Apply(cfg *SearchConfig) {
	cfg.Filters = append(cfg.Filters, m)
}

func (MatchAllExpr) String() string { return MatchAll }

// All creates an expression matching every document.
func All() Expression {
	return MatchAllExpr{}
}

// AndExpr represents an AND combination of expressions.
type AndExpr struct {
	baseExpr
	// Exprs contains the expressions to combine with AND logic.
	Exprs []Expression
}

// Apply implements the SearchOption interface for AndExpr.
func (a AndExpr) Apply(cfg *SearchConfig) {
	cfg.Filters = append(cfg.Filters, a)
}

func (a AndExpr) String() string { return joinExprs(a.Exprs, " AND ") }

// And creates an AND expression combining multiple expressions.
func And(exprs ...Expression) Expression {
	return AndExpr{Exprs: exprs}
}

// OrExpr represents an OR combination of expressions.
type OrExpr struct {
	baseExpr
	// Exprs contains the expressions to combine with OR logic.
	Exprs []Expression
}

// Apply implements the SearchOption interface for OrExpr.
func (o OrExpr) Apply(cfg *SearchConfig) {
	cfg.Filters = append(cfg.Filters, o)
}

func (o OrExpr) String() string { return joinExprs(o.Exprs, " OR ") }

// Or creates an OR expression combining multiple expressions.
func Or(exprs ...Expression) Expression {
	return OrExpr{Exprs: exprs}
}

// NotExpr represents a NOT negation of an expression.
type NotExpr struct {
	baseExpr
	// Inner is the expression to negate.
	Inner Expression
}

// Apply implements the SearchOption interface for NotExpr.
func (n NotExpr) Apply(cfg *SearchConfig) {
	cfg.Filters = append(cfg.Filters, n)
}

func (n NotExpr) String() string { return "NOT " + groupExpr(n.Inner) }

// Not creates a NOT expression negating the given expression.
func Not(expr Expression) Expression {
	return NotExpr{Inner: expr}
}

// TermExpr matches a single term or phrase. An empty Field searches the
// default (all text) fields.
type TermExpr struct {
	baseExpr
	// Field is the field to match; empty means any field.
	Field string
	// Value is the term or phrase text, unescaped.
	Value string
	// Phrase is set when the value was quoted.
	Phrase bool
}

// Apply implements the SearchOption interface for TermExpr.
func (t TermExpr) Apply(cfg *SearchConfig) {
	cfg.Filters = append(cfg.Filters, t)
}

func (t TermExpr) String() string {
	value := quoteValue(t.Value, t.Phrase)
	if t.Field == "" {
		return value
	}
	return t.Field + ":" + value
}

// Eq creates an exact field match expression.
func Eq(field, value string) Expression {
	return TermExpr{Field: field, Value: value}
}

// Term creates a free-text term expression over the default fields.
func Term(value string) Expression {
	return TermExpr{Value: value}
}

// RangeExpr represents an inclusive range over a field. A bound of "" or "*"
// leaves that side open.
type RangeExpr struct {
	baseExpr
	// Field is the name of the field to compare.
	Field string
	// Min is the inclusive lower bound.
	Min string
	// Max is the inclusive upper bound.
	Max string
}

// Apply implements the SearchOption interface for RangeExpr.
func (r RangeExpr) Apply(cfg *SearchConfig) {
	cfg.Filters = append(cfg.Filters, r)
}

func (r RangeExpr) String() string {
	return r.Field + ":[" + rangeBound(r.Min) + " TO " + rangeBound(r.Max) + "]"
}

// Range creates a range comparison expression.
func Range(field, min, max string) Expression {
	return RangeExpr{Field: field, Min: min, Max: max}
}

// ExistsExpr represents a field existence check expression.
type ExistsExpr struct {
	baseExpr
	// Field is the name of the field to check for existence.
	Field string
}

// Apply implements the SearchOption interface for ExistsExpr.
func (e ExistsExpr) Apply(cfg *SearchConfig) {
	cfg.Filters = append(cfg.Filters, e)
}

func (e ExistsExpr) String() string { return e.Field + ":*" }

// Exists creates a field existence check expression.
func Exists(field string) Expression {
	return ExistsExpr{Field: field}
}

// OpenBound reports whether a range bound leaves its side unbounded.
func OpenBound(bound string) bool {
	return bound == "" || bound == "*"
}

func rangeBound(b string) string {
	if OpenBound(b) {
		return "*"
	}
	return b
}

func joinExprs(exprs []Expression, sep string) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, groupExpr(e))
	}
	return strings.Join(parts, sep)
}

// groupExpr parenthesizes boolean sub-expressions so rendering keeps precedence.
func groupExpr(e Expression) string {
	switch e.(type) {
	case AndExpr, OrExpr:
		return "(" + e.String() + ")"
	default:
		return e.String()
	}
}

func quoteValue(v string, phrase bool) string {
	if !phrase && v != "" && !strings.ContainsAny(v, " \t\n()[]:\"\\") && !isOperator(v) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}
