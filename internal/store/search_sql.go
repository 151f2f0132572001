package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/search"
)

// SearchMessages compiles a parsed query into SQL and runs it against
// the cache. Free-text terms go through the FTS5 index; structured
// predicates become WHERE clauses on the message columns.
func (s *SQLiteStore) SearchMessages(ctx context.Context, q *search.Query, f SearchFilter) ([]model.Message, error) {
	conditions, args, err := buildWhereClauses(q, f)
	if err != nil {
		return nil, err
	}

	var query string
	if match := buildFTSQuery(q.TextTerms); match != "" {
		query = `
			SELECT m.* FROM messages m
			JOIN messages_fts f ON f.rowid = m.rowid
			WHERE f.messages_fts MATCH ?`
		args = append([]interface{}{match}, args...)
		for _, c := range conditions {
			query += " AND " + c
		}
	} else {
		query = "SELECT m.* FROM messages m"
		if len(conditions) > 0 {
			query += " WHERE " + strings.Join(conditions, " AND ")
		}
	}
	query += " ORDER BY m.date_utc DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing search: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

const defaultSearchLimit = 50

// buildFTSQuery joins free-text terms into an FTS5 MATCH expression.
// Each term is quoted so that FTS operator characters in user input are
// treated as literals; multiple terms conjoin.
func buildFTSQuery(terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		escaped := strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+escaped+`"`)
	}
	return strings.Join(quoted, " ")
}

// buildWhereClauses converts structured predicates and the search
// filter into SQL conditions. Columns are qualified with the messages
// alias `m` so the conditions stay valid in the FTS join, where several
// column names exist on both tables.
func buildWhereClauses(q *search.Query, f SearchFilter) ([]string, []interface{}, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if f.Account != "" {
		conditions = append(conditions, "m.account = ?")
		args = append(args, f.Account)
	}
	if f.Folder != "" {
		conditions = append(conditions, "m.folder = ?")
		args = append(args, f.Folder)
	}

	for _, p := range q.Predicates {
		switch p.Kind {
		case search.PredFrom:
			conditions = append(conditions, "(m.from_addr LIKE ? OR m.from_name LIKE ?)")
			pattern := "%" + p.Value + "%"
			args = append(args, pattern, pattern)
		case search.PredTo:
			conditions = append(conditions, "(m.to_json LIKE ? OR m.cc_json LIKE ?)")
			pattern := "%" + p.Value + "%"
			args = append(args, pattern, pattern)
		case search.PredSubject:
			conditions = append(conditions, "m.subject LIKE ?")
			args = append(args, "%"+p.Value+"%")
		case search.PredBody:
			conditions = append(conditions, "m.body_text LIKE ?")
			args = append(args, "%"+p.Value+"%")
		case search.PredHasAttachment:
			conditions = append(conditions, "m.attachments_json != '[]'")
		case search.PredIsUnread:
			conditions = append(conditions, `m.flags NOT LIKE '%"seen"%'`)
		case search.PredIsRead:
			conditions = append(conditions, `m.flags LIKE '%"seen"%'`)
		case search.PredIsFlagged:
			conditions = append(conditions, `m.flags LIKE '%"flagged"%'`)
		case search.PredAfter:
			// after:D matches the day following D onward.
			conditions = append(conditions, "m.date_utc >= ?")
			args = append(args, formatTime(p.Date.AddDate(0, 0, 1)))
		case search.PredBefore:
			conditions = append(conditions, "m.date_utc < ?")
			args = append(args, formatTime(p.Date))
		case search.PredOn:
			conditions = append(conditions, "m.date_utc >= ? AND m.date_utc < ?")
			args = append(args, formatTime(p.Date), formatTime(p.Date.AddDate(0, 0, 1)))
		default:
			return nil, nil, &search.InvalidQueryError{
				Query:  q.Raw,
				Reason: fmt.Sprintf("unsupported predicate kind %d", p.Kind),
			}
		}
	}

	return conditions, args, nil
}

// disallowedRawKeywords are statement forms that would let a raw query
// mutate the cache or its schema.
var disallowedRawKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"replace", "attach", "detach", "pragma", "vacuum", "reindex",
}

// RawQuery executes a caller-supplied read-only SQL statement against
// the cache and returns the rows as column-name maps. Mutating
// statements are rejected before execution, and the row count is capped
// by wrapping the statement in an outer LIMIT.
func (s *SQLiteStore) RawQuery(ctx context.Context, query string, args []interface{}, limit int) ([]map[string]interface{}, error) {
	if err := validateReadOnly(query); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	wrapped := fmt.Sprintf("SELECT * FROM (%s) LIMIT %d", strings.TrimRight(strings.TrimSpace(query), ";"), limit)

	rows, err := s.db.QueryxContext(ctx, wrapped, args...)
	if err != nil {
		return nil, fmt.Errorf("executing raw query: %w", err)
	}
	defer rows.Close()

	var results []map[string]interface{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning raw query row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func validateReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return &search.InvalidQueryError{Query: query, Reason: "only SELECT statements are allowed"}
	}
	if idx := strings.Index(strings.TrimRight(trimmed, "; \t\n"), ";"); idx >= 0 {
		return &search.InvalidQueryError{Query: query, Reason: "multiple statements are not allowed"}
	}

	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '(' || r == ')' || r == ',' || r == ';'
	})
	for _, tok := range tokens {
		for _, kw := range disallowedRawKeywords {
			if tok == kw {
				return &search.InvalidQueryError{
					Query:  query,
					Reason: fmt.Sprintf("statement contains disallowed keyword %q", kw),
				}
			}
		}
	}

	return nil
}
