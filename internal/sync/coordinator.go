package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/remote"
	"github.com/nhle/mailcore/internal/store"
	"github.com/nhle/mailcore/internal/thread"
)

// Coordinator mediates between the local cache and the mail server for
// one account. Reads consult the freshness policy and refresh the cache
// when needed; mutations apply on the server first and update the cache
// only after the server confirms.
type Coordinator struct {
	account string
	store   store.Store
	fetcher remote.Fetcher
	mutator remote.Mutator
	policy  *Policy
	log     *zap.Logger

	windowDays   int
	fetchTimeout time.Duration
	offline      bool

	group singleflight.Group

	mu       gosync.Mutex
	inflight map[string]int

	// now is swappable for tests.
	now func() time.Time
}

// Options configures a Coordinator.
type Options struct {
	Account string
	Store   store.Store
	Fetcher remote.Fetcher
	Mutator remote.Mutator
	Policy  *Policy
	Logger  *zap.Logger
	Cache   model.CacheConfig

	// Offline makes every read serve the cache as-is and every
	// mutation fail fast.
	Offline bool
}

// NewCoordinator creates a coordinator for one account.
func NewCoordinator(opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	timeout := time.Duration(opts.Cache.RemoteTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Coordinator{
		account:      opts.Account,
		store:        opts.Store,
		fetcher:      opts.Fetcher,
		mutator:      opts.Mutator,
		policy:       opts.Policy,
		log:          log,
		windowDays:   opts.Cache.WindowDays,
		fetchTimeout: timeout,
		offline:      opts.Offline,
		inflight:     make(map[string]int),
		now:          time.Now,
	}
}

// ErrOffline is returned for mutations while offline mode is active.
var ErrOffline = errors.New("offline mode: server mutations are disabled")

// ListInbox returns conversation summaries for a folder, refreshing the
// cache first when the freshness policy says it is stale. A refresh
// failure surfaces as an error; cached data is served instead only in
// offline mode, where no refresh is attempted.
func (c *Coordinator) ListInbox(ctx context.Context, folder string, unreadOnly, force bool) ([]model.ConversationSummary, error) {
	if err := c.ensureInboxFresh(ctx, folder, force); err != nil {
		return nil, err
	}

	return c.store.ListConversations(ctx, store.ConversationFilter{
		Account:    c.account,
		Folder:     folder,
		UnreadOnly: unreadOnly,
	})
}

// ensureInboxFresh refreshes the folder scope when stale. Concurrent
// callers for the same scope share a single refresh.
func (c *Coordinator) ensureInboxFresh(ctx context.Context, folder string, force bool) error {
	if c.offline {
		return nil
	}

	scope := InboxScope(c.account, folder)

	refreshedAt, known, err := c.store.RefreshedAt(ctx, scope)
	if err != nil {
		return err
	}
	if !c.policy.Stale(scope, refreshedAt, known, force, c.now()) {
		return nil
	}

	_, err, _ = c.group.Do(scope, func() (interface{}, error) {
		return nil, c.refreshInbox(folder)
	})
	return err
}

// refreshInbox pulls headers for the retention window, threads them,
// and merges them into the cache. It runs on a detached context so a
// caller hanging up does not abort a refresh other callers share.
func (c *Coordinator) refreshInbox(folder string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	since := c.now().AddDate(0, 0, -c.windowDays)

	headers, err := c.fetcher.ListHeaders(ctx, folder, since)
	if err != nil {
		return err
	}

	msgs := c.messagesFromHeaders(headers, folder)
	if err := c.threadAndUpsert(ctx, msgs); err != nil {
		return err
	}

	if err := c.store.MarkRefreshed(ctx, InboxScope(c.account, folder), c.now()); err != nil {
		return err
	}

	c.pruneWindow(ctx)

	c.log.Debug("inbox refreshed",
		zap.String("account", c.account),
		zap.String("folder", folder),
		zap.Int("messages", len(msgs)),
	)
	return nil
}

func (c *Coordinator) messagesFromHeaders(headers []remote.HeaderRecord, folder string) []model.Message {
	now := c.now()
	msgs := make([]model.Message, 0, len(headers))
	for _, h := range headers {
		msgs = append(msgs, model.Message{
			MessageID:        h.MessageID,
			Account:          c.account,
			Folder:           folder,
			From:             h.From,
			To:               h.To,
			Cc:               h.Cc,
			ReplyTo:          h.ReplyTo,
			Subject:          h.Subject,
			Date:             h.Date,
			Flags:            h.Flags,
			InReplyTo:        h.InReplyTo,
			References:       h.References,
			HeadersFetchedAt: now,
		})
	}
	return msgs
}

// threadAndUpsert assigns conversation identifiers to a batch and
// writes it to the cache. When threading shows that a previously cached
// conversation was rooted at a message that is now known to be a reply,
// the old conversation is retagged onto the new root before the upsert
// so replies never split across identifiers.
func (c *Coordinator) threadAndUpsert(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	assignments := thread.Assign(msgs)

	for i := range msgs {
		convID, ok := assignments[msgs[i].MessageID]
		if !ok {
			convID = thread.DeriveConversationID(msgs[i].MessageID)
		}
		msgs[i].ConvID = convID

		derived := thread.DeriveConversationID(msgs[i].MessageID)
		if derived != convID {
			moved, err := c.store.RetagConversation(ctx, derived, convID)
			if err != nil {
				return err
			}
			if moved > 0 {
				c.log.Debug("conversation re-rooted",
					zap.String("old", derived),
					zap.String("new", convID),
					zap.Int("messages", moved),
				)
			}
		}
	}

	return c.store.UpsertMessages(ctx, msgs)
}

// pruneWindow deletes messages older than the retention window,
// skipping conversations with an in-flight refresh.
func (c *Coordinator) pruneWindow(ctx context.Context) {
	cutoff := c.now().AddDate(0, 0, -c.windowDays)

	c.mu.Lock()
	skip := make([]string, 0, len(c.inflight))
	for id := range c.inflight {
		skip = append(skip, id)
	}
	c.mu.Unlock()

	pruned, err := c.store.Prune(ctx, cutoff, skip)
	if err != nil {
		c.log.Warn("prune failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		c.log.Debug("pruned messages outside window", zap.Int("count", pruned))
	}
}

func (c *Coordinator) lockConversation(convID string) {
	c.mu.Lock()
	c.inflight[convID]++
	c.mu.Unlock()
}

func (c *Coordinator) unlockConversation(convID string) {
	c.mu.Lock()
	if c.inflight[convID] <= 1 {
		delete(c.inflight, convID)
	} else {
		c.inflight[convID]--
	}
	c.mu.Unlock()
}

// ResolveConversation expands a conversation identifier prefix to the
// single conversation it names.
func (c *Coordinator) ResolveConversation(ctx context.Context, prefix string) (string, error) {
	summaries, err := c.store.FindConversationsByPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	switch len(summaries) {
	case 0:
		return "", fmt.Errorf("conversation %s: %w", prefix, store.ErrNotFound)
	case 1:
		return summaries[0].ConvID, nil
	default:
		matches := make([]string, 0, len(summaries))
		for _, s := range summaries {
			matches = append(matches, s.ConvID)
		}
		return "", &store.AmbiguousPrefixError{Prefix: prefix, Matches: matches}
	}
}

// ResolveMessage expands a message identifier prefix to the single
// message it names.
func (c *Coordinator) ResolveMessage(ctx context.Context, prefix string) (string, error) {
	ids, err := c.store.FindMessageIDsByPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("message %s: %w", prefix, store.ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", &store.AmbiguousPrefixError{Prefix: prefix, Matches: ids}
	}
}

// GetConversation returns a full conversation, fetching any missing or
// stale bodies first. The identifier may be a unique prefix.
func (c *Coordinator) GetConversation(ctx context.Context, idOrPrefix string, force bool) (*model.Conversation, error) {
	convID, err := c.ResolveConversation(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	if err := c.ensureBodiesFresh(ctx, convID, force); err != nil {
		return nil, err
	}

	return c.store.GetConversation(ctx, convID)
}

// ensureBodiesFresh fetches bodies for conversation members that have
// none, or for all members when the conversation scope is stale or the
// refresh is forced.
func (c *Coordinator) ensureBodiesFresh(ctx context.Context, convID string, force bool) error {
	if c.offline {
		return nil
	}

	scope := ConvScope(convID)

	refreshedAt, known, err := c.store.RefreshedAt(ctx, scope)
	if err != nil {
		return err
	}
	stale := c.policy.Stale(scope, refreshedAt, known, force, c.now())

	conv, err := c.store.GetConversation(ctx, convID)
	if err != nil {
		return err
	}

	// folder -> message ids needing a body fetch
	wanted := make(map[string][]string)
	for _, m := range conv.Messages {
		if m.BodyFetchedAt == nil || stale {
			wanted[m.Folder] = append(wanted[m.Folder], m.MessageID)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	_, err, _ = c.group.Do(scope, func() (interface{}, error) {
		return nil, c.fetchBodies(convID, wanted)
	})
	return err
}

// fetchBodies runs the remote body fetch for one conversation on a
// detached context, holding the conversation's prune lock for the
// duration.
func (c *Coordinator) fetchBodies(convID string, wanted map[string][]string) error {
	c.lockConversation(convID)
	defer c.unlockConversation(convID)

	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	for folder, ids := range wanted {
		bodies, err := c.fetcher.FetchBodies(ctx, folder, ids)
		if err != nil {
			return err
		}

		now := c.now()
		for _, b := range bodies {
			if err := c.store.UpdateBody(ctx, b.MessageID, b.Text, b.HTML, now); err != nil {
				return err
			}
			if len(b.Attachments) > 0 {
				if err := c.attachMetadata(ctx, b.MessageID, b.Attachments); err != nil {
					return err
				}
			}
		}
	}

	return c.store.MarkRefreshed(ctx, ConvScope(convID), c.now())
}

// attachMetadata records attachment metadata discovered during a body
// fetch.
func (c *Coordinator) attachMetadata(ctx context.Context, messageID string, attachments []model.Attachment) error {
	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	msg.Attachments = attachments
	return c.store.UpsertMessages(ctx, []model.Message{*msg})
}

// GetMessage returns one message, fetching its body when missing. The
// identifier may be a unique prefix.
func (c *Coordinator) GetMessage(ctx context.Context, idOrPrefix string, force bool) (*model.Message, error) {
	messageID, err := c.ResolveMessage(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if c.offline {
		return msg, nil
	}

	// A body past the conversation TTL counts as stale, same as a
	// missing one. ensureBodiesFresh is a no-op when the scope is
	// fresh and every body is present.
	if err := c.ensureBodiesFresh(ctx, msg.ConvID, force); err != nil {
		return nil, err
	}
	return c.store.GetMessage(ctx, messageID)
}

// MarkRead marks a message seen on the server, then in the cache.
func (c *Coordinator) MarkRead(ctx context.Context, idOrPrefix string) error {
	return c.setFlag(ctx, idOrPrefix, model.FlagSeen, true)
}

// MarkUnread removes the seen flag on the server, then in the cache.
func (c *Coordinator) MarkUnread(ctx context.Context, idOrPrefix string) error {
	return c.setFlag(ctx, idOrPrefix, model.FlagSeen, false)
}

// Flag marks a message flagged on the server, then in the cache.
func (c *Coordinator) Flag(ctx context.Context, idOrPrefix string) error {
	return c.setFlag(ctx, idOrPrefix, model.FlagFlagged, true)
}

// Unflag removes the flagged flag on the server, then in the cache.
func (c *Coordinator) Unflag(ctx context.Context, idOrPrefix string) error {
	return c.setFlag(ctx, idOrPrefix, model.FlagFlagged, false)
}

// setFlag applies a flag change server-first. A server failure leaves
// the cache untouched.
func (c *Coordinator) setFlag(ctx context.Context, idOrPrefix string, flag model.Flag, add bool) error {
	if c.offline {
		return ErrOffline
	}

	messageID, err := c.ResolveMessage(ctx, idOrPrefix)
	if err != nil {
		return err
	}
	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	if err := c.mutator.SetFlags(rctx, msg.Folder, messageID, []model.Flag{flag}, add); err != nil {
		return fmt.Errorf("updating flags on server: %w", err)
	}

	flags := applyFlagChange(msg.Flags, flag, add)
	return c.store.UpdateFlags(ctx, messageID, flags)
}

func applyFlagChange(flags []model.Flag, flag model.Flag, add bool) []model.Flag {
	out := make([]model.Flag, 0, len(flags)+1)
	for _, f := range flags {
		if f != flag {
			out = append(out, f)
		}
	}
	if add {
		out = append(out, flag)
	}
	return out
}

// Move relocates a message to another folder server-first.
func (c *Coordinator) Move(ctx context.Context, idOrPrefix, toFolder string) error {
	if c.offline {
		return ErrOffline
	}

	messageID, err := c.ResolveMessage(ctx, idOrPrefix)
	if err != nil {
		return err
	}
	msg, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	if err := c.mutator.Move(rctx, msg.Folder, toFolder, messageID); err != nil {
		return fmt.Errorf("moving message on server: %w", err)
	}

	return c.store.MoveMessage(ctx, messageID, toFolder)
}

// SearchRemote runs a server-side search, merges the results into the
// cache, and returns the matching messages.
func (c *Coordinator) SearchRemote(ctx context.Context, folder, query string) ([]model.Message, error) {
	if c.offline {
		return nil, ErrOffline
	}

	rctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	headers, err := c.fetcher.Search(rctx, folder, query)
	if err != nil {
		return nil, err
	}

	msgs := c.messagesFromHeaders(headers, folder)
	if err := c.threadAndUpsert(ctx, msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}
