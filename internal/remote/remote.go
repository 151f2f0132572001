package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailcore/internal/model"
)

// AuthError indicates that authentication was rejected by the mail
// server. It is never retried automatically.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Account, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ConnectionError indicates that the mail server could not be reached
// or the connection failed mid-operation. Cached data remains usable
// when this is returned.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s): %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err (or any error in its chain) is
// a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// HeaderRecord is the metadata for one message as reported by the
// server, without body content.
type HeaderRecord struct {
	MessageID  string
	UID        uint32
	From       model.Address
	To         []model.Address
	Cc         []model.Address
	ReplyTo    []model.Address
	Subject    string
	Date       time.Time
	Flags      []model.Flag
	InReplyTo  string
	References []string
}

// BodyRecord is the fetched content for one message.
type BodyRecord struct {
	MessageID   string
	Text        *string
	HTML        *string
	Attachments []model.Attachment
}

// Fetcher reads messages from the mail server.
type Fetcher interface {
	// ListHeaders returns header records for all messages in folder
	// dated since or later.
	ListHeaders(ctx context.Context, folder string, since time.Time) ([]HeaderRecord, error)

	// FetchBodies retrieves body content for the given message
	// identifiers. Identifiers the server no longer knows are skipped.
	FetchBodies(ctx context.Context, folder string, messageIDs []string) ([]BodyRecord, error)

	// Search runs a server-side text search in folder and returns
	// matching header records.
	Search(ctx context.Context, folder, query string) ([]HeaderRecord, error)
}

// Mutator applies flag and folder changes on the mail server.
type Mutator interface {
	// SetFlags adds or removes flags on a message.
	SetFlags(ctx context.Context, folder, messageID string, flags []model.Flag, add bool) error

	// Move relocates a message to another folder.
	Move(ctx context.Context, fromFolder, toFolder, messageID string) error
}

// Sender submits outgoing mail. It returns the Message-ID assigned to
// the sent message.
type Sender interface {
	Send(ctx context.Context, draft *model.Draft) (string, error)
}
