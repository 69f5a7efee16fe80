// Package query implements the Query Engine (C7): a filter AST over
// documents, sorting, pagination, and debounced-refresh materialized
// views.
package query

import (
	"strings"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"
)

// Filter is a predicate evaluated against a document's top-level
// fields. Field access is never dotted: a field name always refers to
// a top-level key in the document.
type Filter interface {
	Evaluate(doc map[string]any) bool
}

// Eq, Ne, Gt, Gte, Lt, Lte are the comparison leaves. Numbers compare
// as float64, strings lexicographically, booleans by equality only.
// Null is unequal to everything except an Eq filter against a nil
// value.
type (
	Eq  struct{ Field string; Value any }
	Ne  struct{ Field string; Value any }
	Gt  struct{ Field string; Value any }
	Gte struct{ Field string; Value any }
	Lt  struct{ Field string; Value any }
	Lte struct{ Field string; Value any }
)

func (f Eq) Evaluate(doc map[string]any) bool  { return equalValues(doc[f.Field], f.Value) }
func (f Ne) Evaluate(doc map[string]any) bool  { return !equalValues(doc[f.Field], f.Value) }
func (f Gt) Evaluate(doc map[string]any) bool  { return ordinalCompare(doc[f.Field], f.Value) > 0 }
func (f Gte) Evaluate(doc map[string]any) bool { return ordinalCompare(doc[f.Field], f.Value) >= 0 }
func (f Lt) Evaluate(doc map[string]any) bool  { return ordinalCompare(f.Value, doc[f.Field]) > 0 }
func (f Lte) Evaluate(doc map[string]any) bool { return ordinalCompare(f.Value, doc[f.Field]) >= 0 }

// And, Or, Not are the combinators.
type (
	And []Filter
	Or  []Filter
	Not struct{ Filter Filter }
)

func (f And) Evaluate(doc map[string]any) bool {
	for _, sub := range f {
		if !sub.Evaluate(doc) {
			return false
		}
	}
	return true
}

func (f Or) Evaluate(doc map[string]any) bool {
	for _, sub := range f {
		if sub.Evaluate(doc) {
			return true
		}
	}
	return false
}

func (f Not) Evaluate(doc map[string]any) bool { return !f.Filter.Evaluate(doc) }

// equalValues implements the spec's null-handling equality: null
// equals only null; otherwise values compare equal when their
// normalized forms match.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as == bs
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	return false
}

// ordinalCompare returns -1/0/1 comparing a to b under the spec's
// comparison semantics; non-comparable pairs (e.g. a missing field
// against a number) report -1 in either argument order; Lt/Lte swap
// the arguments, so every inequality check fails on them.
func ordinalCompare(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs)
		}
	}
	return -1
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ContainsAny is a filter leaf backed by an Aho-Corasick automaton: it
// matches when the named field's string value contains any of a set
// of patterns, found in a single pass regardless of pattern count.
type ContainsAny struct {
	field string
	ac    *ahocorasick.Automaton
}

// NewContainsAny compiles patterns into an Aho-Corasick automaton once,
// so repeated evaluation against many documents does not re-scan the
// pattern set per document.
func NewContainsAny(field string, patterns []string) (*ContainsAny, error) {
	automaton, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		return nil, err
	}
	return &ContainsAny{field: field, ac: automaton}, nil
}

// Evaluate implements Filter.
func (f *ContainsAny) Evaluate(doc map[string]any) bool {
	s, ok := doc[f.field].(string)
	if !ok || f.ac == nil {
		return false
	}
	return len(f.ac.FindAllOverlapping([]byte(strings.ToLower(s)))) > 0
}

// TextSearch is a filter leaf that treats the named field as free
// text: the query is tokenized, stopwords are stripped, and the
// filter matches when every remaining term appears as a substring of
// the field (case-insensitive).
type TextSearch struct {
	field string
	terms []string
}

// NewTextSearch builds a TextSearch filter, dropping English stopwords
// from query so a search for "the lost city" matches on "lost" and
// "city" alone.
func NewTextSearch(field, query string) *TextSearch {
	sw := stopwords.MustGet("en")
	var terms []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if sw.Contains(tok) {
			continue
		}
		terms = append(terms, tok)
	}
	return &TextSearch{field: field, terms: terms}
}

// Evaluate implements Filter.
func (f *TextSearch) Evaluate(doc map[string]any) bool {
	s, ok := doc[f.field].(string)
	if !ok {
		return false
	}
	lower := strings.ToLower(s)
	for _, term := range f.terms {
		if !strings.Contains(lower, term) {
			return false
		}
	}
	return true
}
