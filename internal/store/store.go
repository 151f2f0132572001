package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/search"
)

// ErrNotFound reports that no message, conversation, or draft matches
// the given identifier or prefix.
var ErrNotFound = errors.New("not found")

// AmbiguousPrefixError reports that an identifier prefix matched more
// than one record. It carries the matching identifiers, most recent
// first, for disambiguation; it is a recoverable condition, not a hard
// failure.
type AmbiguousPrefixError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("prefix %q matches %d identifiers", e.Prefix, len(e.Matches))
}

// IsAmbiguousPrefix reports whether err (or any error in its chain) is
// an AmbiguousPrefixError.
func IsAmbiguousPrefix(err error) bool {
	var ap *AmbiguousPrefixError
	return errors.As(err, &ap)
}

// ConversationFilter controls conversation listings.
type ConversationFilter struct {
	Account    string
	Folder     string
	UnreadOnly bool
	Limit      int
}

// SearchFilter scopes structured-search execution.
type SearchFilter struct {
	Account string
	Folder  string
	Limit   int
}

// Store defines the persistence contract for cached messages, derived
// conversation views, drafts, and freshness metadata. Every write is
// transactional; the full-text index is maintained inside the same
// transaction as the message row it mirrors.
type Store interface {
	// === Messages ===

	// UpsertMessages inserts or merges a batch of messages by id.
	// Merging fills previously null fields, overwrites flags and fetch
	// timestamps, and never regresses a non-null body to null.
	UpsertMessages(ctx context.Context, msgs []model.Message) error
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	UpdateFlags(ctx context.Context, messageID string, flags []model.Flag) error
	UpdateBody(ctx context.Context, messageID string, text, html *string, fetchedAt time.Time) error
	MoveMessage(ctx context.Context, messageID, folder string) error

	// === Conversations ===

	GetConversation(ctx context.Context, convID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, f ConversationFilter) ([]model.ConversationSummary, error)
	FindConversationsByPrefix(ctx context.Context, prefix string) ([]model.ConversationSummary, error)
	FindMessageIDsByPrefix(ctx context.Context, prefix string) ([]string, error)

	// RetagConversation atomically moves every message tagged oldConvID
	// to newConvID, returning the number of retagged rows.
	RetagConversation(ctx context.Context, oldConvID, newConvID string) (int, error)

	// === Retention & freshness ===

	// Prune deletes messages dated strictly before cutoff, except those
	// in conversations named by skipConvIDs (locked by in-flight syncs).
	Prune(ctx context.Context, cutoff time.Time, skipConvIDs []string) (int, error)
	MarkRefreshed(ctx context.Context, scope string, at time.Time) error
	RefreshedAt(ctx context.Context, scope string) (time.Time, bool, error)
	Stats(ctx context.Context) (*model.CacheStats, error)

	// === Search ===

	SearchMessages(ctx context.Context, q *search.Query, f SearchFilter) ([]model.Message, error)

	// RawQuery executes a read-only SQL statement against the cache.
	// Statements that are not plain SELECTs are rejected with an
	// InvalidQuery error; limit is enforced even when absent from sql.
	RawQuery(ctx context.Context, sql string, args []interface{}, limit int) ([]map[string]interface{}, error)

	// === Drafts ===

	SaveDraft(ctx context.Context, d *model.Draft) error
	GetDraft(ctx context.Context, draftID string) (*model.Draft, error)
	ListDrafts(ctx context.Context) ([]model.Draft, error)
	DeleteDraft(ctx context.Context, draftID string) (bool, error)
	FindDraftIDsByPrefix(ctx context.Context, prefix string) ([]string, error)

	Close() error
}
