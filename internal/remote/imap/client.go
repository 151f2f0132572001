package imap

import (
	"context"
	"fmt"
	"strings"
	"time"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/remote"
)

// Client wraps go-imap v2 for reading and mutating a mailbox. Each
// operation dials a fresh connection and logs out when done, so the
// struct itself holds only configuration and is safe to share.
type Client struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	account  string
}

// NewClient creates an IMAP client for one account.
func NewClient(cfg model.IMAPConfig, account, password string) *Client {
	return &Client{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: password,
		tls:      cfg.TLS,
		account:  account,
	}
}

// connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout on the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, &remote.ConnectionError{Addr: addr, Err: err}
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &remote.AuthError{
			Account: c.account,
			Message: fmt.Sprintf("authentication failed for %s: %v", c.username, err),
		}
	}

	return client, nil
}

// headerSection requests only the threading headers alongside the
// envelope, keeping header syncs cheap.
var headerSection = &goimap.FetchItemBodySection{
	Specifier:    goimap.PartSpecifierHeader,
	HeaderFields: []string{"In-Reply-To", "References"},
	Peek:         true,
}

// ListHeaders returns header records for every message in folder dated
// since or later.
func (c *Client) ListHeaders(ctx context.Context, folder string, since time.Time) ([]remote.HeaderRecord, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	criteria := &goimap.SearchCriteria{Since: since}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages in %s: %w", folder, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	return c.fetchHeaders(client, goimap.UIDSetNum(uids...))
}

// Search runs a server-side text search in folder and returns matching
// header records.
func (c *Client) Search(ctx context.Context, folder, query string) ([]remote.HeaderRecord, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	criteria := &goimap.SearchCriteria{Text: []string{query}}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %q in %s: %w", query, folder, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	return c.fetchHeaders(client, goimap.UIDSetNum(uids...))
}

func (c *Client) fetchHeaders(client *imapclient.Client, uidSet goimap.UIDSet) ([]remote.HeaderRecord, error) {
	fetchOpts := &goimap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{headerSection},
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	var records []remote.HeaderRecord
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		rec := headerFromBuffer(buf)
		if rec.MessageID == "" {
			// A message without a Message-ID cannot be cached or threaded.
			continue
		}
		records = append(records, rec)
	}

	if err := fetchCmd.Close(); err != nil {
		return records, fmt.Errorf("fetching headers: %w", err)
	}

	return records, nil
}

// FetchBodies retrieves body content for the given message identifiers.
// Identifiers the server no longer knows are skipped silently.
func (c *Client) FetchBodies(ctx context.Context, folder string, messageIDs []string) ([]remote.BodyRecord, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	var records []remote.BodyRecord
	for _, id := range messageIDs {
		uid, found, err := resolveUID(client, id)
		if err != nil {
			return records, err
		}
		if !found {
			continue
		}

		rec, err := fetchBody(client, uid, id)
		if err != nil {
			return records, err
		}
		records = append(records, *rec)
	}

	return records, nil
}

func fetchBody(client *imapclient.Client, uid goimap.UID, messageID string) (*remote.BodyRecord, error) {
	bodySection := &goimap.FetchItemBodySection{Peek: true}

	fetchOpts := &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(goimap.UIDSetNum(uid), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	rec := &remote.BodyRecord{MessageID: messageID}

	rawBody := buf.FindBodySection(bodySection)
	if rawBody != nil {
		text, html, attachments := parseMIMEBody(rawBody)
		if text != "" {
			rec.Text = &text
		}
		if html != "" {
			rec.HTML = &html
		}
		rec.Attachments = attachments
	}

	if err := fetchCmd.Close(); err != nil {
		return rec, fmt.Errorf("closing fetch: %w", err)
	}

	return rec, nil
}

// SetFlags adds or removes flags on a message.
func (c *Client) SetFlags(ctx context.Context, folder, messageID string, flags []model.Flag, add bool) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", folder, err)
	}

	uid, found, err := resolveUID(client, messageID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("message %s not found in %s", messageID, folder)
	}

	op := goimap.StoreFlagsAdd
	if !add {
		op = goimap.StoreFlagsDel
	}

	storeCmd := client.Store(goimap.UIDSetNum(uid), &goimap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  toIMAPFlags(flags),
	}, nil)

	return storeCmd.Close()
}

// Move relocates a message to another folder.
func (c *Client) Move(ctx context.Context, fromFolder, toFolder, messageID string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(fromFolder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", fromFolder, err)
	}

	uid, found, err := resolveUID(client, messageID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("message %s not found in %s", messageID, fromFolder)
	}

	moveCmd := client.Move(goimap.UIDSetNum(uid), toFolder)
	if _, err := moveCmd.Wait(); err != nil {
		return fmt.Errorf("moving message to %s: %w", toFolder, err)
	}

	return nil
}

// resolveUID finds the UID for a Message-ID in the selected folder.
func resolveUID(client *imapclient.Client, messageID string) (goimap.UID, bool, error) {
	criteria := &goimap.SearchCriteria{
		Header: []goimap.SearchCriteriaHeaderField{
			{Key: "Message-Id", Value: strings.Trim(messageID, "<>")},
		},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, false, fmt.Errorf("resolving UID for %s: %w", messageID, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return 0, false, nil
	}

	return uids[len(uids)-1], true, nil
}

// headerFromBuffer extracts a HeaderRecord from a fetched message.
func headerFromBuffer(buf *imapclient.FetchMessageBuffer) remote.HeaderRecord {
	rec := remote.HeaderRecord{UID: uint32(buf.UID)}

	if buf.Envelope != nil {
		rec.MessageID = normalizeMessageID(buf.Envelope.MessageID)
		rec.Subject = buf.Envelope.Subject
		rec.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			rec.From = toAddress(buf.Envelope.From[0])
		}
		for _, a := range buf.Envelope.To {
			rec.To = append(rec.To, toAddress(a))
		}
		for _, a := range buf.Envelope.Cc {
			rec.Cc = append(rec.Cc, toAddress(a))
		}
		for _, a := range buf.Envelope.ReplyTo {
			rec.ReplyTo = append(rec.ReplyTo, toAddress(a))
		}
	}

	rec.Flags = fromIMAPFlags(buf.Flags)

	for _, section := range buf.BodySection {
		inReplyTo, references := parseThreadingHeaders(section.Bytes)
		if inReplyTo != "" {
			rec.InReplyTo = inReplyTo
		}
		if len(references) > 0 {
			rec.References = references
		}
	}

	return rec
}

func toAddress(a goimap.Address) model.Address {
	return model.Address{Addr: a.Addr(), Name: a.Name}
}

// normalizeMessageID strips angle brackets so identifiers compare
// equal regardless of how a server quotes them.
func normalizeMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

var flagMap = map[model.Flag]goimap.Flag{
	model.FlagSeen:     goimap.FlagSeen,
	model.FlagAnswered: goimap.FlagAnswered,
	model.FlagFlagged:  goimap.FlagFlagged,
	model.FlagDeleted:  goimap.FlagDeleted,
	model.FlagDraft:    goimap.FlagDraft,
}

func toIMAPFlags(flags []model.Flag) []goimap.Flag {
	out := make([]goimap.Flag, 0, len(flags))
	for _, f := range flags {
		if mapped, ok := flagMap[f]; ok {
			out = append(out, mapped)
		}
	}
	return out
}

func fromIMAPFlags(flags []goimap.Flag) []model.Flag {
	var out []model.Flag
	for _, f := range flags {
		for k, v := range flagMap {
			if v == f {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
