// Package search parses the structured query grammar and compiles it
// into SQL fragments executed against the record store.
//
// The grammar is a list of space-separated terms: bare tokens are
// free-text matches against the full-text index; key:value tokens are
// structured predicates from a fixed operator set. All terms are ANDed;
// there is no OR or NOT.
package search

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// InvalidQueryError reports a malformed structured query or a raw query
// attempting something other than a read.
type InvalidQueryError struct {
	Query  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}

// IsInvalidQuery reports whether err (or any error in its chain) is an
// InvalidQueryError.
func IsInvalidQuery(err error) bool {
	var iq *InvalidQueryError
	return errors.As(err, &iq)
}

// PredicateKind enumerates the closed set of structured predicates.
// Evaluation is a single exhaustive switch, so adding an operator is a
// compile-time-checked change here and in buildPredicate.
type PredicateKind int

const (
	PredFrom PredicateKind = iota
	PredTo
	PredSubject
	PredBody
	PredHasAttachment
	PredIsUnread
	PredIsRead
	PredIsFlagged
	PredAfter
	PredBefore
	PredOn
)

// Predicate is one structured term of a parsed query.
type Predicate struct {
	Kind  PredicateKind
	Value string    // from/to/subject/body text value
	Date  time.Time // after/before/on date at UTC midnight
}

// Query is a parsed structured query.
type Query struct {
	// TextTerms are free-text tokens matched via the full-text index
	// across subject, body, and sender fields.
	TextTerms []string

	Predicates []Predicate

	// Raw is the original query string.
	Raw string
}

// IsEmpty reports whether the query has no constraints at all.
func (q *Query) IsEmpty() bool {
	return len(q.TextTerms) == 0 && len(q.Predicates) == 0
}

// operators is the fixed operator vocabulary. Unknown operators are a
// parse error, not free text.
var operators = map[string]bool{
	"from":    true,
	"to":      true,
	"subject": true,
	"body":    true,
	"has":     true,
	"is":      true,
	"after":   true,
	"before":  true,
	"date":    true,
}

// Parse parses a query string into a Query. It returns an
// InvalidQueryError for unknown operators, unknown is:/has: values,
// malformed dates, or operators with empty values.
func Parse(raw string) (*Query, error) {
	q := &Query{Raw: raw}

	for _, tok := range tokenize(raw) {
		if tok.op == "" {
			if tok.value != "" {
				q.TextTerms = append(q.TextTerms, tok.value)
			}
			continue
		}

		if !operators[tok.op] {
			return nil, &InvalidQueryError{Query: raw, Reason: fmt.Sprintf("unknown operator %q", tok.op)}
		}
		if tok.value == "" {
			return nil, &InvalidQueryError{Query: raw, Reason: fmt.Sprintf("operator %q requires a value", tok.op)}
		}

		pred, err := buildPredicate(raw, tok.op, tok.value)
		if err != nil {
			return nil, err
		}
		q.Predicates = append(q.Predicates, pred)
	}

	return q, nil
}

// buildPredicate maps one operator token onto the closed predicate set.
func buildPredicate(raw, op, value string) (Predicate, error) {
	switch op {
	case "from":
		return Predicate{Kind: PredFrom, Value: value}, nil
	case "to":
		return Predicate{Kind: PredTo, Value: value}, nil
	case "subject":
		return Predicate{Kind: PredSubject, Value: value}, nil
	case "body":
		return Predicate{Kind: PredBody, Value: value}, nil
	case "has":
		if strings.ToLower(value) != "attachment" {
			return Predicate{}, &InvalidQueryError{Query: raw, Reason: fmt.Sprintf("has: accepts only %q, got %q", "attachment", value)}
		}
		return Predicate{Kind: PredHasAttachment}, nil
	case "is":
		switch strings.ToLower(value) {
		case "unread":
			return Predicate{Kind: PredIsUnread}, nil
		case "read":
			return Predicate{Kind: PredIsRead}, nil
		case "flagged":
			return Predicate{Kind: PredIsFlagged}, nil
		}
		return Predicate{}, &InvalidQueryError{Query: raw, Reason: fmt.Sprintf("is: accepts unread, read, or flagged, got %q", value)}
	case "after", "before", "date":
		day, err := parseDay(value)
		if err != nil {
			return Predicate{}, &InvalidQueryError{Query: raw, Reason: fmt.Sprintf("%s: expects YYYY-MM-DD, got %q", op, value)}
		}
		kind := PredOn
		switch op {
		case "after":
			kind = PredAfter
		case "before":
			kind = PredBefore
		}
		return Predicate{Kind: kind, Date: day}, nil
	}
	// operators map and this switch must stay in lockstep.
	return Predicate{}, &InvalidQueryError{Query: raw, Reason: fmt.Sprintf("unknown operator %q", op)}
}

// parseDay parses a YYYY-MM-DD date at UTC midnight.
func parseDay(value string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", value, time.UTC)
}

// token is a lexed query term: op is empty for free text.
type token struct {
	op    string
	value string
}

// tokenize splits a query into free-text and operator tokens. Quoted
// phrases ("hello world" or subject:"meeting notes") are kept intact;
// an unclosed quote runs to the end of the string.
func tokenize(query string) []token {
	var tokens []token
	pos := 0
	n := len(query)

	readQuoted := func() string {
		pos++ // opening quote
		start := pos
		for pos < n && query[pos] != '"' {
			pos++
		}
		value := query[start:pos]
		if pos < n {
			pos++ // closing quote
		}
		return value
	}

	for pos < n {
		for pos < n && isSpace(query[pos]) {
			pos++
		}
		if pos >= n {
			break
		}

		if query[pos] == '"' {
			tokens = append(tokens, token{value: readQuoted()})
			continue
		}

		start := pos
		for pos < n && query[pos] != ':' && !isSpace(query[pos]) {
			pos++
		}

		if pos < n && query[pos] == ':' {
			op := strings.ToLower(query[start:pos])
			pos++ // colon
			var value string
			if pos < n && query[pos] == '"' {
				value = readQuoted()
			} else {
				vstart := pos
				for pos < n && !isSpace(query[pos]) {
					pos++
				}
				value = query[vstart:pos]
			}
			tokens = append(tokens, token{op: op, value: value})
			continue
		}

		tokens = append(tokens, token{value: query[start:pos]})
	}

	return tokens
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
