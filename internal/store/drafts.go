package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailcore/internal/model"
)

// SaveDraft inserts a draft or replaces an existing one with the same
// identifier.
func (s *SQLiteStore) SaveDraft(ctx context.Context, d *model.Draft) error {
	toJSON, err := marshalAddrs(d.To)
	if err != nil {
		return fmt.Errorf("marshaling draft to: %w", err)
	}
	ccJSON, err := marshalAddrs(d.Cc)
	if err != nil {
		return fmt.Errorf("marshaling draft cc: %w", err)
	}
	bccJSON, err := marshalAddrs(d.Bcc)
	if err != nil {
		return fmt.Errorf("marshaling draft bcc: %w", err)
	}
	refsJSON, err := marshalJSONList(d.References)
	if err != nil {
		return fmt.Errorf("marshaling draft references: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO drafts (
			draft_id, account, from_addr, from_name,
			to_json, cc_json, bcc_json,
			subject, body_text, body_html,
			reply_to_conv_id, in_reply_to, references_json,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DraftID, d.Account, d.From.Addr, d.From.Name,
		toJSON, ccJSON, bccJSON,
		d.Subject, d.BodyText, nullableString(d.BodyHTML),
		d.ReplyToConvID, d.InReplyTo, refsJSON,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving draft %s: %w", d.DraftID, err)
	}
	return nil
}

// GetDraft retrieves a draft by its full identifier.
func (s *SQLiteStore) GetDraft(ctx context.Context, draftID string) (*model.Draft, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT * FROM drafts WHERE draft_id = ?", draftID)
	d, err := scanDraftRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("draft %s: %w", draftID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting draft %s: %w", draftID, err)
	}
	return &d, nil
}

// ListDrafts returns all drafts, most recently updated first.
func (s *SQLiteStore) ListDrafts(ctx context.Context) ([]model.Draft, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM drafts ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	defer rows.Close()

	var drafts []model.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// DeleteDraft removes a draft. It reports whether a row was deleted.
func (s *SQLiteStore) DeleteDraft(ctx context.Context, draftID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE draft_id = ?", draftID)
	if err != nil {
		return false, fmt.Errorf("deleting draft %s: %w", draftID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("counting deleted drafts: %w", err)
	}
	return n > 0, nil
}

// FindDraftIDsByPrefix returns draft identifiers starting with prefix,
// most recently updated first.
func (s *SQLiteStore) FindDraftIDsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT draft_id FROM drafts WHERE draft_id LIKE ? ORDER BY updated_at DESC",
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("finding drafts by prefix %q: %w", prefix, err)
	}
	return ids, nil
}

type draftColumns struct {
	DraftID        string         `db:"draft_id"`
	Account        string         `db:"account"`
	FromAddr       string         `db:"from_addr"`
	FromName       string         `db:"from_name"`
	ToJSON         string         `db:"to_json"`
	CcJSON         string         `db:"cc_json"`
	BccJSON        string         `db:"bcc_json"`
	Subject        string         `db:"subject"`
	BodyText       string         `db:"body_text"`
	BodyHTML       sql.NullString `db:"body_html"`
	ReplyToConvID  string         `db:"reply_to_conv_id"`
	InReplyTo      string         `db:"in_reply_to"`
	ReferencesJSON string         `db:"references_json"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

func (c *draftColumns) toDraft() (model.Draft, error) {
	d := model.Draft{
		DraftID:       c.DraftID,
		Account:       c.Account,
		From:          model.Address{Addr: c.FromAddr, Name: c.FromName},
		Subject:       c.Subject,
		BodyText:      c.BodyText,
		ReplyToConvID: c.ReplyToConvID,
		InReplyTo:     c.InReplyTo,
	}

	if c.BodyHTML.Valid {
		v := c.BodyHTML.String
		d.BodyHTML = &v
	}

	if err := json.Unmarshal([]byte(c.ToJSON), &d.To); err != nil {
		return d, fmt.Errorf("unmarshaling draft to: %w", err)
	}
	if err := json.Unmarshal([]byte(c.CcJSON), &d.Cc); err != nil {
		return d, fmt.Errorf("unmarshaling draft cc: %w", err)
	}
	if err := json.Unmarshal([]byte(c.BccJSON), &d.Bcc); err != nil {
		return d, fmt.Errorf("unmarshaling draft bcc: %w", err)
	}
	if err := json.Unmarshal([]byte(c.ReferencesJSON), &d.References); err != nil {
		return d, fmt.Errorf("unmarshaling draft references: %w", err)
	}

	created, err := parseTime(c.CreatedAt)
	if err != nil {
		return d, fmt.Errorf("parsing draft created_at: %w", err)
	}
	updated, err := parseTime(c.UpdatedAt)
	if err != nil {
		return d, fmt.Errorf("parsing draft updated_at: %w", err)
	}
	d.CreatedAt = created
	d.UpdatedAt = updated

	return d, nil
}

func scanDraft(rows *sqlx.Rows) (model.Draft, error) {
	var c draftColumns
	if err := rows.StructScan(&c); err != nil {
		return model.Draft{}, fmt.Errorf("scanning draft row: %w", err)
	}
	return c.toDraft()
}

func scanDraftRow(row *sqlx.Row) (model.Draft, error) {
	var c draftColumns
	if err := row.StructScan(&c); err != nil {
		return model.Draft{}, err
	}
	return c.toDraft()
}
