package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFreeText(t *testing.T) {
	q, err := Parse("quarterly report")
	require.NoError(t, err)

	assert.Equal(t, []string{"quarterly", "report"}, q.TextTerms)
	assert.Empty(t, q.Predicates)
}

func TestParseQuotedPhrase(t *testing.T) {
	q, err := Parse(`"quarterly report" budget`)
	require.NoError(t, err)

	assert.Equal(t, []string{"quarterly report", "budget"}, q.TextTerms)
}

func TestParseOperators(t *testing.T) {
	q, err := Parse(`from:alice to:bob subject:"meeting notes" is:unread has:attachment`)
	require.NoError(t, err)
	require.Len(t, q.Predicates, 5)

	assert.Equal(t, Predicate{Kind: PredFrom, Value: "alice"}, q.Predicates[0])
	assert.Equal(t, Predicate{Kind: PredTo, Value: "bob"}, q.Predicates[1])
	assert.Equal(t, Predicate{Kind: PredSubject, Value: "meeting notes"}, q.Predicates[2])
	assert.Equal(t, Predicate{Kind: PredIsUnread}, q.Predicates[3])
	assert.Equal(t, Predicate{Kind: PredHasAttachment}, q.Predicates[4])
}

func TestParseDates(t *testing.T) {
	q, err := Parse("after:2025-01-15 before:2025-02-01 date:2025-01-20")
	require.NoError(t, err)
	require.Len(t, q.Predicates, 3)

	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	assert.Equal(t, Predicate{Kind: PredAfter, Date: day(2025, 1, 15)}, q.Predicates[0])
	assert.Equal(t, Predicate{Kind: PredBefore, Date: day(2025, 2, 1)}, q.Predicates[1])
	assert.Equal(t, Predicate{Kind: PredOn, Date: day(2025, 1, 20)}, q.Predicates[2])
}

func TestParseMixedTextAndPredicates(t *testing.T) {
	q, err := Parse("from:alice budget")
	require.NoError(t, err)

	assert.Equal(t, []string{"budget"}, q.TextTerms)
	require.Len(t, q.Predicates, 1)
	assert.Equal(t, PredFrom, q.Predicates[0].Kind)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		query string
	}{
		{"unknown operator", "label:work"},
		{"empty value", "from: alice"},
		{"bad is value", "is:starred"},
		{"bad has value", "has:image"},
		{"bad date format", "after:yesterday"},
		{"date with time", "before:2025-01-15T10:00"},
		{"month only", "date:2025-01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.query)
			require.Error(t, err)
			assert.True(t, IsInvalidQuery(err), "expected InvalidQueryError, got %v", err)
		})
	}
}

func TestParseEmptyQuery(t *testing.T) {
	q, err := Parse("")
	require.NoError(t, err)
	assert.True(t, q.IsEmpty())
}

func TestParseUnclosedQuote(t *testing.T) {
	q, err := Parse(`"meeting notes`)
	require.NoError(t, err)
	assert.Equal(t, []string{"meeting notes"}, q.TextTerms)
}
