package model

import "time"

// Flag is a normalized IMAP message flag.
type Flag string

const (
	FlagSeen     Flag = "seen"
	FlagAnswered Flag = "answered"
	FlagFlagged  Flag = "flagged"
	FlagDeleted  Flag = "deleted"
	FlagDraft    Flag = "draft"
)

// Address is an email address with an optional display name.
type Address struct {
	Addr string `json:"addr"`
	Name string `json:"name,omitempty"`
}

// String renders the address in "Name <addr>" form.
func (a Address) String() string {
	if a.Name != "" {
		return a.Name + " <" + a.Addr + ">"
	}
	return a.Addr
}

// Attachment holds attachment metadata. Content bytes are never cached.
type Attachment struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Message is a single cached email message. Header fields are populated
// when the message is first fetched; body fields stay nil until the body
// is fetched, and a later header-only refresh never clears them.
type Message struct {
	// MessageID is the RFC 5322 Message-ID assigned by the origin server.
	MessageID string `json:"message_id"`

	// ConvID is the derived conversation identifier (see thread package).
	ConvID string `json:"conv_id"`

	Account string `json:"account"`
	Folder  string `json:"folder"`

	From    Address   `json:"from"`
	To      []Address `json:"to,omitempty"`
	Cc      []Address `json:"cc,omitempty"`
	ReplyTo []Address `json:"reply_to,omitempty"`

	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`

	BodyText *string `json:"body_text,omitempty"`
	BodyHTML *string `json:"body_html,omitempty"`

	Flags       []Flag       `json:"flags,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Threading headers.
	InReplyTo  string   `json:"in_reply_to,omitempty"`
	References []string `json:"references,omitempty"`

	HeadersFetchedAt time.Time  `json:"headers_fetched_at"`
	BodyFetchedAt    *time.Time `json:"body_fetched_at,omitempty"`
}

// IsRead reports whether the message carries the seen flag.
func (m *Message) IsRead() bool {
	return m.HasFlag(FlagSeen)
}

// IsFlagged reports whether the message carries the flagged flag.
func (m *Message) IsFlagged() bool {
	return m.HasFlag(FlagFlagged)
}

// HasFlag reports whether f is present in the message's flag set.
func (m *Message) HasFlag(f Flag) bool {
	for _, have := range m.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// Conversation is a materialized thread: the ordered set of messages
// sharing a conversation identifier. Its attributes are computed from
// the member messages, never cached.
type Conversation struct {
	ConvID       string    `json:"conv_id"`
	Subject      string    `json:"subject"`
	Participants []string  `json:"participants"`
	MessageCount int       `json:"message_count"`
	UnreadCount  int       `json:"unread_count"`
	LatestDate   time.Time `json:"latest_date"`
	Messages     []Message `json:"messages"`
	Account      string    `json:"account"`
}

// HasUnread reports whether any member message is unread.
func (c *Conversation) HasUnread() bool {
	return c.UnreadCount > 0
}

// ConversationSummary is a lightweight conversation view for listings
// and prefix disambiguation.
type ConversationSummary struct {
	ConvID       string    `json:"conv_id"`
	Subject      string    `json:"subject"`
	Participants []string  `json:"participants"`
	MessageCount int       `json:"message_count"`
	UnreadCount  int       `json:"unread_count"`
	LatestDate   time.Time `json:"latest_date"`
	Snippet      string    `json:"snippet,omitempty"`
	Account      string    `json:"account"`
}

// CacheStats describes the current state of the local cache.
type CacheStats struct {
	MessageCount      int        `json:"message_count"`
	ConversationCount int        `json:"conversation_count"`
	OldestMessage     *time.Time `json:"oldest_message,omitempty"`
	NewestMessage     *time.Time `json:"newest_message,omitempty"`
	CacheSizeBytes    int64      `json:"cache_size_bytes"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
}
