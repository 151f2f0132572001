package app

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/nhle/mailcore/internal/audit"
	"github.com/nhle/mailcore/internal/credential"
	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/remote"
	imapremote "github.com/nhle/mailcore/internal/remote/imap"
	smtpremote "github.com/nhle/mailcore/internal/remote/smtp"
	"github.com/nhle/mailcore/internal/search"
	"github.com/nhle/mailcore/internal/send"
	"github.com/nhle/mailcore/internal/store"
	"github.com/nhle/mailcore/internal/sync"
)

// App wires configuration, the cache, per-account sync coordinators,
// and the send pipeline behind one facade. Coordinators and pipelines
// are built lazily so credentials are only read for accounts that get
// used.
type App struct {
	cfg     *model.AppConfig
	store   store.Store
	log     *zap.Logger
	auditor *audit.Log
	offline bool

	mu        gosync.Mutex
	coords    map[string]*sync.Coordinator
	pipelines map[string]*send.Pipeline
}

// Option customizes App construction.
type Option func(*App)

// WithOffline disables all server contact; reads serve the cache and
// mutations fail fast.
func WithOffline(offline bool) Option {
	return func(a *App) { a.offline = offline }
}

// WithStore substitutes the cache store. Used by tests.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// New constructs the application from loaded configuration.
func New(cfg *model.AppConfig, log *zap.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		auditor:   audit.NewLog(filepath.Join(cfg.DataDir, "send_log.jsonl")),
		coords:    make(map[string]*sync.Coordinator),
		pipelines: make(map[string]*send.Pipeline),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "cache.db"))
		if err != nil {
			return nil, err
		}
		a.store = st
	}

	return a, nil
}

// Close releases the cache and flushes the logger.
func (a *App) Close() error {
	_ = a.log.Sync()
	return a.store.Close()
}

// Store exposes the underlying cache for diagnostics commands.
func (a *App) Store() store.Store {
	return a.store
}

// coordinatorFor returns the sync coordinator for an account, creating
// it on first use.
func (a *App) coordinatorFor(account string) (*sync.Coordinator, string, error) {
	name, acct, err := a.cfg.GetAccount(account)
	if err != nil {
		return nil, "", err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if coord, ok := a.coords[name]; ok {
		return coord, name, nil
	}

	var fetcher remote.Fetcher
	var mutator remote.Mutator
	if !a.offline {
		password, err := credential.Get(credential.IMAPKey(name))
		if err != nil {
			return nil, "", fmt.Errorf("reading IMAP credential for %s: %w", name, err)
		}
		client := imapremote.NewClient(acct.IMAP, name, password)
		fetcher, mutator = client, client
	}

	coord := sync.NewCoordinator(sync.Options{
		Account: name,
		Store:   a.store,
		Fetcher: fetcher,
		Mutator: mutator,
		Policy:  sync.NewPolicy(a.cfg.Cache),
		Logger:  a.log,
		Cache:   a.cfg.Cache,
		Offline: a.offline,
	})
	a.coords[name] = coord
	return coord, name, nil
}

// pipelineFor returns the send pipeline for an account, creating it on
// first use.
func (a *App) pipelineFor(account string) (*send.Pipeline, error) {
	name, acct, err := a.cfg.GetAccount(account)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.pipelines[name]; ok {
		return p, nil
	}

	password, err := credential.Get(credential.SMTPKey(name))
	if err != nil {
		return nil, fmt.Errorf("reading SMTP credential for %s: %w", name, err)
	}
	sender := smtpremote.NewSender(acct.SMTP, name, password)

	p := send.NewPipeline(acct, a.cfg.Send, a.store, sender, a.auditor, a.log)
	a.pipelines[name] = p
	return p, nil
}

// Inbox lists conversation summaries for a folder.
func (a *App) Inbox(ctx context.Context, account, folder string, unreadOnly, force bool) ([]model.ConversationSummary, error) {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return nil, err
	}
	if folder == "" {
		folder = "INBOX"
	}
	return coord.ListInbox(ctx, folder, unreadOnly, force)
}

// Conversation returns a full conversation by identifier or unique
// prefix.
func (a *App) Conversation(ctx context.Context, account, idOrPrefix string, force bool) (*model.Conversation, error) {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return nil, err
	}
	return coord.GetConversation(ctx, idOrPrefix, force)
}

// Message returns one message by identifier or unique prefix.
func (a *App) Message(ctx context.Context, account, idOrPrefix string, force bool) (*model.Message, error) {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return nil, err
	}
	return coord.GetMessage(ctx, idOrPrefix, force)
}

// MarkRead marks a message seen.
func (a *App) MarkRead(ctx context.Context, account, idOrPrefix string) error {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return err
	}
	return coord.MarkRead(ctx, idOrPrefix)
}

// MarkUnread removes the seen flag.
func (a *App) MarkUnread(ctx context.Context, account, idOrPrefix string) error {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return err
	}
	return coord.MarkUnread(ctx, idOrPrefix)
}

// Flag marks a message flagged.
func (a *App) Flag(ctx context.Context, account, idOrPrefix string) error {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return err
	}
	return coord.Flag(ctx, idOrPrefix)
}

// Unflag removes the flagged flag.
func (a *App) Unflag(ctx context.Context, account, idOrPrefix string) error {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return err
	}
	return coord.Unflag(ctx, idOrPrefix)
}

// Move relocates a message to another folder.
func (a *App) Move(ctx context.Context, account, idOrPrefix, toFolder string) error {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return err
	}
	return coord.Move(ctx, idOrPrefix, toFolder)
}

// Search runs a structured query against the local cache.
func (a *App) Search(ctx context.Context, account, folder, rawQuery string, limit int) ([]model.Message, error) {
	q, err := search.Parse(rawQuery)
	if err != nil {
		return nil, err
	}

	name := account
	if name != "" || a.cfg.DefaultAccount != "" {
		resolved, _, err := a.cfg.GetAccount(account)
		if err != nil {
			return nil, err
		}
		name = resolved
	}

	return a.store.SearchMessages(ctx, q, store.SearchFilter{
		Account: name,
		Folder:  folder,
		Limit:   limit,
	})
}

// SearchRemote runs a server-side search and merges the results into
// the cache.
func (a *App) SearchRemote(ctx context.Context, account, folder, query string) ([]model.Message, error) {
	coord, _, err := a.coordinatorFor(account)
	if err != nil {
		return nil, err
	}
	if folder == "" {
		folder = "INBOX"
	}
	return coord.SearchRemote(ctx, folder, query)
}

// RawQuery executes a read-only SQL statement against the cache.
func (a *App) RawQuery(ctx context.Context, query string, limit int) ([]map[string]interface{}, error) {
	return a.store.RawQuery(ctx, query, nil, limit)
}

// Stats returns cache diagnostics.
func (a *App) Stats(ctx context.Context) (*model.CacheStats, error) {
	return a.store.Stats(ctx)
}

// AuditEntries returns the full send log.
func (a *App) AuditEntries() ([]audit.Entry, error) {
	return a.auditor.Entries()
}
