package iipsearch

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokQuoted
	tokColon
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokWord:
		return "term"
	case tokQuoted:
		return "phrase"
	case tokColon:
		return "':'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	default:
		return "unknown token"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) is(word string) bool {
	return t.kind == tokWord && t.text == word
}

func isOperator(s string) bool {
	switch s {
	case "AND", "OR", "NOT", "TO":
		return true
	}
	return false
}

// ParseQuery parses the Lucene-style query syntax used by the catalog indices
// into an Expression. Supported constructs are bare terms, quoted phrases,
// field:value, field:(grouped values), field:[min TO max] ranges with "*" open
// bounds, field:* existence, *:* match-all, AND/OR/NOT with parentheses and
// implicit AND between adjacent clauses. An empty query matches everything.
//
// Syntax errors wrap ErrMalformedQuery.
func ParseQuery(query string) (Expression, error) {
	toks, err := lex(query)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return MatchAllExpr{}, nil
	}

	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}
	return expr, nil
}

func malformed(pos int, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedQuery, "at offset %d: %s", pos, fmt.Sprintf(format, args...))
}

func lex(query string) ([]token, error) {
	var toks []token
	runes := []rune(query)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == ':':
			toks = append(toks, token{kind: tokColon, text: ":", pos: i})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", pos: i})
			i++
		case r == ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", pos: i})
			i++
		case r == '"':
			start := i
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == '\\' && i+1 < len(runes) {
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if runes[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, malformed(start, "unterminated phrase")
			}
			toks = append(toks, token{kind: tokQuoted, text: b.String(), pos: start})
		default:
			start := i
			var b strings.Builder
			for i < len(runes) {
				c := runes[i]
				if c == '\\' {
					if i+1 >= len(runes) {
						return nil, malformed(i, "dangling escape")
					}
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if unicode.IsSpace(c) || strings.ContainsRune(`:()[]"`, c) {
					break
				}
				b.WriteRune(c)
				i++
			}
			toks = append(toks, token{kind: tokWord, text: b.String(), pos: start})
		}
	}

	return append(toks, token{kind: tokEOF, pos: len(runes)}), nil
}

type parser struct {
	toks []token
	pos  int
	// field is applied to bare terms inside a field:( ... ) group.
	field string
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+offset]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) unexpected(tok token) error {
	if tok.kind == tokWord {
		return malformed(tok.pos, "unexpected %q", tok.text)
	}
	return malformed(tok.pos, "unexpected %s", tok.kind)
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, malformed(tok.pos, "expected %s, found %s", kind, tok.kind)
	}
	return tok, nil
}

func (p *parser) parseOr() (Expression, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	exprs := []Expression{first}
	for p.peek().is("OR") {
		p.next()
		e, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	if len(exprs) == 1 {
		return first, nil
	}
	return OrExpr{Exprs: exprs}, nil
}

func (p *parser) parseAnd() (Expression, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	exprs := []Expression{first}
	for {
		tok := p.peek()
		if tok.kind == tokEOF || tok.kind == tokRParen || tok.is("OR") {
			break
		}
		if tok.is("AND") {
			p.next()
		}
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	if len(exprs) == 1 {
		return first, nil
	}
	return AndExpr{Exprs: exprs}, nil
}

func (p *parser) parseUnary() (Expression, error) {
	if p.peek().is("NOT") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return NotExpr{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expression, error) {
	tok := p.peek()
	switch tok.kind {
	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return e, nil
	case tokQuoted:
		p.next()
		return TermExpr{Field: p.field, Value: tok.text, Phrase: true}, nil
	case tokWord:
		if isOperator(tok.text) {
			return nil, p.unexpected(tok)
		}
		if p.peekAt(1).kind == tokColon {
			p.next()
			p.next()
			return p.parseFieldValue(tok)
		}
		p.next()
		if tok.text == "*" && p.field == "" {
			return MatchAllExpr{}, nil
		}
		if tok.text == "*" {
			return ExistsExpr{Field: p.field}, nil
		}
		return TermExpr{Field: p.field, Value: tok.text}, nil
	default:
		return nil, p.unexpected(tok)
	}
}

func (p *parser) parseFieldValue(field token) (Expression, error) {
	if field.text == "" {
		return nil, malformed(field.pos, "empty field name")
	}
	tok := p.peek()
	if field.text == "*" {
		if tok.kind == tokWord && tok.text == "*" {
			p.next()
			return MatchAllExpr{}, nil
		}
		return nil, malformed(field.pos, "wildcard field requires wildcard value")
	}

	switch tok.kind {
	case tokWord:
		if isOperator(tok.text) {
			return nil, malformed(tok.pos, "missing value for field %q", field.text)
		}
		p.next()
		if tok.text == "*" {
			return ExistsExpr{Field: field.text}, nil
		}
		return TermExpr{Field: field.text, Value: tok.text}, nil
	case tokQuoted:
		p.next()
		return TermExpr{Field: field.text, Value: tok.text, Phrase: true}, nil
	case tokLParen:
		p.next()
		saved := p.field
		p.field = field.text
		e, err := p.parseOr()
		p.field = saved
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return e, nil
	case tokLBracket:
		p.next()
		return p.parseRange(field.text)
	default:
		return nil, malformed(tok.pos, "missing value for field %q", field.text)
	}
}

func (p *parser) parseRange(field string) (Expression, error) {
	lower, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}
	if to := p.next(); !to.is("TO") {
		return nil, malformed(to.pos, "range on %q requires TO", field)
	}
	upper, err := p.expect(tokWord)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRBracket); err != nil {
		return nil, err
	}
	return RangeExpr{Field: field, Min: lower.text, Max: upper.text}, nil
}
