package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailcore/internal/model"
)

// timeLayout is the storage format for every timestamp column. All
// values are UTC and second-precision so that lexicographic comparison
// on date_utc matches chronological order.
const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// SQLiteStore implements the Store interface using a local SQLite
// database with an FTS5 full-text index maintained by triggers, so the
// index and the message rows always commit together.
type SQLiteStore struct {
	db     *sqlx.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps writes serialized and makes :memory:
	// databases share one schema across the pool.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertMessages inserts or merges a batch of messages in one
// transaction. Merging overwrites headers, flags, and fetch timestamps
// but never replaces a non-null body with null, so a header-only
// refresh cannot regress an already-fetched body.
func (s *SQLiteStore) UpsertMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO messages (
			message_id, conv_id, account, folder,
			from_addr, from_name, to_json, cc_json, reply_to_json,
			subject, date_utc, body_text, body_html,
			flags, attachments_json, in_reply_to, references_json,
			headers_fetched_at, body_fetched_at
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?
		)
		ON CONFLICT(message_id) DO UPDATE SET
			conv_id            = excluded.conv_id,
			folder             = excluded.folder,
			from_addr          = excluded.from_addr,
			from_name          = excluded.from_name,
			to_json            = excluded.to_json,
			cc_json            = excluded.cc_json,
			reply_to_json      = excluded.reply_to_json,
			subject            = excluded.subject,
			date_utc           = excluded.date_utc,
			body_text          = COALESCE(excluded.body_text, messages.body_text),
			body_html          = COALESCE(excluded.body_html, messages.body_html),
			flags              = excluded.flags,
			attachments_json   = CASE WHEN excluded.attachments_json != '[]'
			                          THEN excluded.attachments_json
			                          ELSE messages.attachments_json END,
			in_reply_to        = excluded.in_reply_to,
			references_json    = excluded.references_json,
			headers_fetched_at = excluded.headers_fetched_at,
			body_fetched_at    = COALESCE(excluded.body_fetched_at, messages.body_fetched_at)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		toJSON, err := marshalAddrs(m.To)
		if err != nil {
			return fmt.Errorf("marshaling to for message %s: %w", m.MessageID, err)
		}
		ccJSON, err := marshalAddrs(m.Cc)
		if err != nil {
			return fmt.Errorf("marshaling cc for message %s: %w", m.MessageID, err)
		}
		replyToJSON, err := marshalAddrs(m.ReplyTo)
		if err != nil {
			return fmt.Errorf("marshaling reply_to for message %s: %w", m.MessageID, err)
		}
		flagsJSON, err := marshalFlags(m.Flags)
		if err != nil {
			return fmt.Errorf("marshaling flags for message %s: %w", m.MessageID, err)
		}
		attJSON, err := marshalJSONList(m.Attachments)
		if err != nil {
			return fmt.Errorf("marshaling attachments for message %s: %w", m.MessageID, err)
		}
		refsJSON, err := marshalJSONList(m.References)
		if err != nil {
			return fmt.Errorf("marshaling references for message %s: %w", m.MessageID, err)
		}

		headersAt := m.HeadersFetchedAt
		if headersAt.IsZero() {
			headersAt = time.Now()
		}

		var bodyFetchedAt interface{}
		if m.BodyFetchedAt != nil {
			bodyFetchedAt = formatTime(*m.BodyFetchedAt)
		}

		_, err = stmt.ExecContext(ctx,
			m.MessageID, m.ConvID, m.Account, m.Folder,
			m.From.Addr, m.From.Name, toJSON, ccJSON, replyToJSON,
			m.Subject, formatTime(m.Date), nullableString(m.BodyText), nullableString(m.BodyHTML),
			flagsJSON, attJSON, m.InReplyTo, refsJSON,
			formatTime(headersAt), bodyFetchedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting message %s: %w", m.MessageID, err)
		}
	}

	return tx.Commit()
}

// GetMessage retrieves a single message by its full identifier.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT * FROM messages WHERE message_id = ?", messageID,
	)
	msg, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", messageID, err)
	}
	return &msg, nil
}

// UpdateFlags replaces the flag set on a message.
func (s *SQLiteStore) UpdateFlags(ctx context.Context, messageID string, flags []model.Flag) error {
	flagsJSON, err := marshalFlags(flags)
	if err != nil {
		return fmt.Errorf("marshaling flags: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET flags = ? WHERE message_id = ?", flagsJSON, messageID,
	)
	if err != nil {
		return fmt.Errorf("updating flags for %s: %w", messageID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// UpdateBody stores fetched body content and its fetch timestamp.
func (s *SQLiteStore) UpdateBody(ctx context.Context, messageID string, text, html *string, fetchedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET body_text = ?, body_html = ?, body_fetched_at = ?
		WHERE message_id = ?`,
		nullableString(text), nullableString(html), formatTime(fetchedAt), messageID,
	)
	if err != nil {
		return fmt.Errorf("updating body for %s: %w", messageID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// MoveMessage updates a message's folder.
func (s *SQLiteStore) MoveMessage(ctx context.Context, messageID, folder string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET folder = ? WHERE message_id = ?", folder, messageID,
	)
	if err != nil {
		return fmt.Errorf("moving message %s: %w", messageID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// GetConversation materializes a conversation as the ordered set of
// messages sharing convID, with participant and unread counts computed
// on the fly.
func (s *SQLiteStore) GetConversation(ctx context.Context, convID string) (*model.Conversation, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM messages WHERE conv_id = ? ORDER BY date_utc ASC, message_id ASC", convID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversation %s: %w", convID, err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading conversation %s: %w", convID, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", convID, ErrNotFound)
	}

	return buildConversation(msgs), nil
}

// buildConversation computes the derived conversation attributes from
// its ordered member messages.
func buildConversation(msgs []model.Message) *model.Conversation {
	participants := make(map[string]bool)
	unread := 0
	latest := msgs[0].Date

	for i := range msgs {
		m := &msgs[i]
		participants[m.From.Addr] = true
		for _, a := range m.To {
			participants[a.Addr] = true
		}
		for _, a := range m.Cc {
			participants[a.Addr] = true
		}
		if !m.IsRead() {
			unread++
		}
		if m.Date.After(latest) {
			latest = m.Date
		}
	}

	names := make([]string, 0, len(participants))
	for p := range participants {
		names = append(names, p)
	}
	sort.Strings(names)

	return &model.Conversation{
		ConvID:       msgs[0].ConvID,
		Subject:      msgs[0].Subject,
		Participants: names,
		MessageCount: len(msgs),
		UnreadCount:  unread,
		LatestDate:   latest,
		Messages:     msgs,
		Account:      msgs[0].Account,
	}
}

// summaryQuery aggregates per-conversation attributes in SQL. The
// snippet subquery picks the latest message body for previews.
const summaryQuery = `
	SELECT
		conv_id,
		MAX(date_utc) AS latest_date,
		MIN(subject) AS subject,
		COUNT(*) AS message_count,
		SUM(CASE WHEN flags NOT LIKE '%"seen"%' THEN 1 ELSE 0 END) AS unread_count,
		GROUP_CONCAT(DISTINCT from_addr) AS participants,
		(SELECT m2.body_text FROM messages m2
		 WHERE m2.conv_id = messages.conv_id AND m2.body_text IS NOT NULL
		 ORDER BY m2.date_utc DESC LIMIT 1) AS snippet,
		MIN(account) AS account
	FROM messages`

// ListConversations returns conversation summaries for a folder,
// ordered by latest message descending.
func (s *SQLiteStore) ListConversations(ctx context.Context, f ConversationFilter) ([]model.ConversationSummary, error) {
	conditions := []string{"folder = ?"}
	args := []interface{}{f.Folder}

	if f.Account != "" {
		conditions = append(conditions, "account = ?")
		args = append(args, f.Account)
	}

	query := summaryQuery + " WHERE " + strings.Join(conditions, " AND ") + " GROUP BY conv_id"
	if f.UnreadOnly {
		query += " HAVING unread_count > 0"
	}
	query += " ORDER BY latest_date DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return s.querySummaries(ctx, query, args...)
}

// FindConversationsByPrefix returns summaries for every conversation
// whose identifier starts with prefix (case-insensitive hex), sorted by
// latest date descending. Any prefix length is supported.
func (s *SQLiteStore) FindConversationsByPrefix(ctx context.Context, prefix string) ([]model.ConversationSummary, error) {
	query := summaryQuery + ` WHERE conv_id LIKE ? GROUP BY conv_id ORDER BY latest_date DESC`
	return s.querySummaries(ctx, query, strings.ToLower(prefix)+"%")
}

// FindMessageIDsByPrefix returns message identifiers starting with
// prefix, most recent first.
func (s *SQLiteStore) FindMessageIDsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT message_id FROM messages WHERE message_id LIKE ? ORDER BY date_utc DESC",
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("finding messages by prefix %q: %w", prefix, err)
	}
	return ids, nil
}

func (s *SQLiteStore) querySummaries(ctx context.Context, query string, args ...interface{}) ([]model.ConversationSummary, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversation summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.ConversationSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// RetagConversation atomically moves every message from oldConvID to
// newConvID. The single UPDATE keeps the retag and its full-text index
// maintenance inside one implicit transaction.
func (s *SQLiteStore) RetagConversation(ctx context.Context, oldConvID, newConvID string) (int, error) {
	if oldConvID == newConvID {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET conv_id = ? WHERE conv_id = ?", newConvID, oldConvID,
	)
	if err != nil {
		return 0, fmt.Errorf("retagging conversation %s -> %s: %w", oldConvID, newConvID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting retagged rows: %w", err)
	}
	return int(n), nil
}

// Prune deletes messages dated strictly before cutoff, skipping
// conversations locked by in-flight syncs. The FTS delete triggers run
// in the same transaction as the row deletes.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time, skipConvIDs []string) (int, error) {
	query := "DELETE FROM messages WHERE date_utc < ?"
	args := []interface{}{formatTime(cutoff)}

	if len(skipConvIDs) > 0 {
		expanded, expandedArgs, err := sqlx.In(
			"DELETE FROM messages WHERE date_utc < ? AND conv_id NOT IN (?)",
			formatTime(cutoff), skipConvIDs,
		)
		if err != nil {
			return 0, fmt.Errorf("expanding prune skip list: %w", err)
		}
		query, args = expanded, expandedArgs
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pruning messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return int(n), nil
}

// MarkRefreshed records the last-refresh time for a freshness scope.
func (s *SQLiteStore) MarkRefreshed(ctx context.Context, scope string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_state (scope, refreshed_at) VALUES (?, ?)",
		scope, formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("marking scope %s refreshed: %w", scope, err)
	}
	return nil
}

// RefreshedAt returns the last-refresh time for a scope. The boolean is
// false when the scope has never been refreshed.
func (s *SQLiteStore) RefreshedAt(ctx context.Context, scope string) (time.Time, bool, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw,
		"SELECT refreshed_at FROM sync_state WHERE scope = ?", scope,
	)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading sync state for %s: %w", scope, err)
	}
	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing sync state for %s: %w", scope, err)
	}
	return t, true, nil
}

// Stats returns cache diagnostics.
func (s *SQLiteStore) Stats(ctx context.Context) (*model.CacheStats, error) {
	stats := &model.CacheStats{}

	if err := s.db.GetContext(ctx, &stats.MessageCount, "SELECT COUNT(*) FROM messages"); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.ConversationCount, "SELECT COUNT(DISTINCT conv_id) FROM messages"); err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	var oldest, newest, lastSync sql.NullString
	if err := s.db.GetContext(ctx, &oldest, "SELECT MIN(date_utc) FROM messages"); err != nil {
		return nil, fmt.Errorf("reading oldest message date: %w", err)
	}
	if err := s.db.GetContext(ctx, &newest, "SELECT MAX(date_utc) FROM messages"); err != nil {
		return nil, fmt.Errorf("reading newest message date: %w", err)
	}
	if err := s.db.GetContext(ctx, &lastSync,
		"SELECT MAX(refreshed_at) FROM sync_state WHERE scope LIKE 'inbox/%'",
	); err != nil {
		return nil, fmt.Errorf("reading last sync: %w", err)
	}

	for _, pair := range []struct {
		raw  sql.NullString
		dest **time.Time
	}{
		{oldest, &stats.OldestMessage},
		{newest, &stats.NewestMessage},
		{lastSync, &stats.LastSync},
	} {
		if !pair.raw.Valid {
			continue
		}
		t, err := parseTime(pair.raw.String)
		if err != nil {
			return nil, fmt.Errorf("parsing stats timestamp: %w", err)
		}
		*pair.dest = &t
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.CacheSizeBytes = info.Size()
	}

	return stats, nil
}

// === scanning helpers ===

type messageColumns struct {
	MessageID        string         `db:"message_id"`
	ConvID           string         `db:"conv_id"`
	Account          string         `db:"account"`
	Folder           string         `db:"folder"`
	FromAddr         string         `db:"from_addr"`
	FromName         string         `db:"from_name"`
	ToJSON           string         `db:"to_json"`
	CcJSON           string         `db:"cc_json"`
	ReplyToJSON      string         `db:"reply_to_json"`
	Subject          string         `db:"subject"`
	DateUTC          string         `db:"date_utc"`
	BodyText         sql.NullString `db:"body_text"`
	BodyHTML         sql.NullString `db:"body_html"`
	Flags            string         `db:"flags"`
	AttachmentsJSON  string         `db:"attachments_json"`
	InReplyTo        string         `db:"in_reply_to"`
	ReferencesJSON   string         `db:"references_json"`
	HeadersFetchedAt string         `db:"headers_fetched_at"`
	BodyFetchedAt    sql.NullString `db:"body_fetched_at"`
}

func (c *messageColumns) toMessage() (model.Message, error) {
	var m model.Message

	m.MessageID = c.MessageID
	m.ConvID = c.ConvID
	m.Account = c.Account
	m.Folder = c.Folder
	m.From = model.Address{Addr: c.FromAddr, Name: c.FromName}
	m.Subject = c.Subject
	m.InReplyTo = c.InReplyTo

	date, err := parseTime(c.DateUTC)
	if err != nil {
		return m, fmt.Errorf("parsing message date: %w", err)
	}
	m.Date = date

	headersAt, err := parseTime(c.HeadersFetchedAt)
	if err != nil {
		return m, fmt.Errorf("parsing headers_fetched_at: %w", err)
	}
	m.HeadersFetchedAt = headersAt

	if c.BodyFetchedAt.Valid {
		t, err := parseTime(c.BodyFetchedAt.String)
		if err != nil {
			return m, fmt.Errorf("parsing body_fetched_at: %w", err)
		}
		m.BodyFetchedAt = &t
	}

	if c.BodyText.Valid {
		v := c.BodyText.String
		m.BodyText = &v
	}
	if c.BodyHTML.Valid {
		v := c.BodyHTML.String
		m.BodyHTML = &v
	}

	if err := json.Unmarshal([]byte(c.ToJSON), &m.To); err != nil {
		return m, fmt.Errorf("unmarshaling to addresses: %w", err)
	}
	if err := json.Unmarshal([]byte(c.CcJSON), &m.Cc); err != nil {
		return m, fmt.Errorf("unmarshaling cc addresses: %w", err)
	}
	if err := json.Unmarshal([]byte(c.ReplyToJSON), &m.ReplyTo); err != nil {
		return m, fmt.Errorf("unmarshaling reply_to addresses: %w", err)
	}
	if err := json.Unmarshal([]byte(c.Flags), &m.Flags); err != nil {
		return m, fmt.Errorf("unmarshaling flags: %w", err)
	}
	if err := json.Unmarshal([]byte(c.AttachmentsJSON), &m.Attachments); err != nil {
		return m, fmt.Errorf("unmarshaling attachments: %w", err)
	}
	if err := json.Unmarshal([]byte(c.ReferencesJSON), &m.References); err != nil {
		return m, fmt.Errorf("unmarshaling references: %w", err)
	}

	return m, nil
}

// scanMessage scans a message row from a sqlx.Rows result set.
func scanMessage(rows *sqlx.Rows) (model.Message, error) {
	var c messageColumns
	if err := rows.StructScan(&c); err != nil {
		return model.Message{}, fmt.Errorf("scanning message row: %w", err)
	}
	return c.toMessage()
}

// scanMessageRow scans a single message row from a sqlx.Row.
func scanMessageRow(row *sqlx.Row) (model.Message, error) {
	var c messageColumns
	if err := row.StructScan(&c); err != nil {
		return model.Message{}, err
	}
	return c.toMessage()
}

// scanSummary scans one aggregated conversation summary row.
func scanSummary(rows *sqlx.Rows) (model.ConversationSummary, error) {
	var (
		sum          model.ConversationSummary
		latestDate   string
		subject      sql.NullString
		participants sql.NullString
		snippet      sql.NullString
		account      sql.NullString
	)

	err := rows.Scan(
		&sum.ConvID, &latestDate, &subject, &sum.MessageCount,
		&sum.UnreadCount, &participants, &snippet, &account,
	)
	if err != nil {
		return model.ConversationSummary{}, fmt.Errorf("scanning summary row: %w", err)
	}

	t, err := parseTime(latestDate)
	if err != nil {
		return model.ConversationSummary{}, fmt.Errorf("parsing summary date: %w", err)
	}
	sum.LatestDate = t

	sum.Subject = subject.String
	if sum.Subject == "" {
		sum.Subject = "(no subject)"
	}
	if participants.Valid && participants.String != "" {
		sum.Participants = strings.Split(participants.String, ",")
	}
	if snippet.Valid {
		sum.Snippet = truncate(snippet.String, 100)
	}
	sum.Account = account.String

	return sum, nil
}

func marshalAddrs(addrs []model.Address) (string, error) {
	if addrs == nil {
		addrs = []model.Address{}
	}
	b, err := json.Marshal(addrs)
	return string(b), err
}

func marshalFlags(flags []model.Flag) (string, error) {
	if flags == nil {
		flags = []model.Flag{}
	}
	b, err := json.Marshal(flags)
	return string(b), err
}

func marshalJSONList(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// truncate caps s at n runes, never splitting a multi-byte sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
