package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	message_id         TEXT PRIMARY KEY,
	conv_id            TEXT NOT NULL,
	account            TEXT NOT NULL,
	folder             TEXT NOT NULL,
	from_addr          TEXT NOT NULL,
	from_name          TEXT NOT NULL DEFAULT '',
	to_json            TEXT NOT NULL DEFAULT '[]',
	cc_json            TEXT NOT NULL DEFAULT '[]',
	reply_to_json      TEXT NOT NULL DEFAULT '[]',
	subject            TEXT NOT NULL DEFAULT '',
	date_utc           TEXT NOT NULL,
	body_text          TEXT,
	body_html          TEXT,
	flags              TEXT NOT NULL DEFAULT '[]',
	attachments_json   TEXT NOT NULL DEFAULT '[]',
	in_reply_to        TEXT NOT NULL DEFAULT '',
	references_json    TEXT NOT NULL DEFAULT '[]',
	headers_fetched_at TEXT NOT NULL,
	body_fetched_at    TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conv_id);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date_utc DESC);
CREATE INDEX IF NOT EXISTS idx_messages_from ON messages(from_addr);
CREATE INDEX IF NOT EXISTS idx_messages_account_folder ON messages(account, folder);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	message_id,
	subject,
	body_text,
	from_name,
	from_addr,
	content=messages,
	content_rowid=rowid
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, message_id, subject, body_text, from_name, from_addr)
	VALUES (new.rowid, new.message_id, new.subject, new.body_text, new.from_name, new.from_addr);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, message_id, subject, body_text, from_name, from_addr)
	VALUES ('delete', old.rowid, old.message_id, old.subject, old.body_text, old.from_name, old.from_addr);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, message_id, subject, body_text, from_name, from_addr)
	VALUES ('delete', old.rowid, old.message_id, old.subject, old.body_text, old.from_name, old.from_addr);
	INSERT INTO messages_fts(rowid, message_id, subject, body_text, from_name, from_addr)
	VALUES (new.rowid, new.message_id, new.subject, new.body_text, new.from_name, new.from_addr);
END;

CREATE TABLE IF NOT EXISTS drafts (
	draft_id        TEXT PRIMARY KEY,
	account         TEXT NOT NULL,
	from_addr       TEXT NOT NULL,
	from_name       TEXT NOT NULL DEFAULT '',
	to_json         TEXT NOT NULL,
	cc_json         TEXT NOT NULL DEFAULT '[]',
	bcc_json        TEXT NOT NULL DEFAULT '[]',
	subject         TEXT NOT NULL,
	body_text       TEXT NOT NULL,
	body_html       TEXT,
	reply_to_conv_id TEXT NOT NULL DEFAULT '',
	in_reply_to     TEXT NOT NULL DEFAULT '',
	references_json TEXT NOT NULL DEFAULT '[]',
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_state (
	scope        TEXT PRIMARY KEY,
	refreshed_at TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
