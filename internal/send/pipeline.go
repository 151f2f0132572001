package send

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailcore/internal/audit"
	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/remote"
	"github.com/nhle/mailcore/internal/store"
)

// BlockReason classifies why a send was refused.
type BlockReason string

const (
	// ReasonAuthMismatch means the draft's sender identity does not
	// match the account it would be sent through.
	ReasonAuthMismatch BlockReason = "auth_mismatch"

	// ReasonBlockedRecipient means a recipient is on the block list.
	ReasonBlockedRecipient BlockReason = "blocked_recipient"

	// ReasonRateLimited means the hourly send budget is exhausted.
	ReasonRateLimited BlockReason = "rate_limited"

	// ReasonTokenInvalid means the confirmation token was wrong,
	// expired, or already used.
	ReasonTokenInvalid BlockReason = "token_invalid"
)

// BlockedError is returned when the safety pipeline refuses a send.
type BlockedError struct {
	Reason BlockReason
	Detail string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("send blocked (%s): %s", e.Reason, e.Detail)
}

// IsBlocked reports whether err is a BlockedError, returning it.
func IsBlocked(err error) (*BlockedError, bool) {
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return blocked, true
	}
	return nil, false
}

// Confirmation is the pending-send handle returned by Prepare. The
// caller must present Token to Confirm before it expires.
type Confirmation struct {
	DraftID    string
	Token      string
	ExpiresAt  time.Time
	Recipients []string
	Subject    string
}

const tokenTTL = 5 * time.Minute

type pendingToken struct {
	token   string
	expires time.Time
}

// Pipeline runs every outgoing message through the safety gates for
// one account: sender identity check, recipient block list, rate
// limit, and a two-step confirmation. Gates run in that order and the
// first failure wins.
type Pipeline struct {
	account model.AccountConfig
	cfg     model.SendConfig
	store   store.Store
	sender  remote.Sender
	auditor *audit.Log
	limiter *RateLimiter
	log     *zap.Logger

	mu        sync.Mutex
	tokens    map[string]pendingToken
	confirmed map[string]bool

	now func() time.Time
}

// NewPipeline creates the send pipeline for one account.
func NewPipeline(account model.AccountConfig, cfg model.SendConfig, st store.Store, sender remote.Sender, auditor *audit.Log, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		account:   account,
		cfg:       cfg,
		store:     st,
		sender:    sender,
		auditor:   auditor,
		limiter:   NewRateLimiter(cfg.RateLimitPerHour),
		log:       log,
		tokens:    make(map[string]pendingToken),
		confirmed: make(map[string]bool),
		now:       time.Now,
	}
}

// Prepare validates a draft against every gate and issues a
// confirmation token. The token is single use and expires after five
// minutes.
func (p *Pipeline) Prepare(ctx context.Context, draftID string) (*Confirmation, error) {
	draft, err := p.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if err := p.runGates(draft); err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	expires := p.now().Add(tokenTTL)

	p.mu.Lock()
	p.tokens[draftID] = pendingToken{token: token, expires: expires}
	delete(p.confirmed, draftID)
	p.mu.Unlock()

	recipients := make([]string, 0)
	for _, a := range draft.Recipients() {
		recipients = append(recipients, a.Addr)
	}

	return &Confirmation{
		DraftID:    draftID,
		Token:      token,
		ExpiresAt:  expires,
		Recipients: recipients,
		Subject:    draft.Subject,
	}, nil
}

// Confirm consumes a confirmation token and sends the draft. The token
// is invalidated before the send attempt, so a failed send needs
// Resend rather than a second Confirm with the same token.
func (p *Pipeline) Confirm(ctx context.Context, draftID, token string) (string, error) {
	p.mu.Lock()
	pending, ok := p.tokens[draftID]
	if ok {
		delete(p.tokens, draftID)
	}
	p.mu.Unlock()

	if !ok {
		return "", &BlockedError{
			Reason: ReasonTokenInvalid,
			Detail: fmt.Sprintf("no pending confirmation for draft %s", draftID),
		}
	}
	if p.now().After(pending.expires) {
		return "", &BlockedError{
			Reason: ReasonTokenInvalid,
			Detail: "confirmation token expired",
		}
	}
	if subtle.ConstantTimeCompare([]byte(pending.token), []byte(token)) != 1 {
		return "", &BlockedError{
			Reason: ReasonTokenInvalid,
			Detail: "confirmation token mismatch",
		}
	}

	p.mu.Lock()
	p.confirmed[draftID] = true
	p.mu.Unlock()

	return p.send(ctx, draftID)
}

// Resend retries a draft whose confirmation succeeded but whose send
// attempt failed. The original confirmation stays valid for retries;
// an unconfirmed draft is refused.
func (p *Pipeline) Resend(ctx context.Context, draftID string) (string, error) {
	p.mu.Lock()
	ok := p.confirmed[draftID]
	p.mu.Unlock()

	if !ok {
		return "", &BlockedError{
			Reason: ReasonTokenInvalid,
			Detail: fmt.Sprintf("draft %s has not been confirmed", draftID),
		}
	}

	return p.send(ctx, draftID)
}

// SendDirect sends a draft without the confirmation step. It is
// refused when the account requires confirmation.
func (p *Pipeline) SendDirect(ctx context.Context, draftID string) (string, error) {
	if p.cfg.RequireConfirmation {
		return "", &BlockedError{
			Reason: ReasonTokenInvalid,
			Detail: "this account requires confirmation before sending",
		}
	}
	return p.send(ctx, draftID)
}

// send re-runs the gates and submits the draft. Gates run again here
// because conditions can change between Prepare and Confirm.
func (p *Pipeline) send(ctx context.Context, draftID string) (string, error) {
	draft, err := p.store.GetDraft(ctx, draftID)
	if err != nil {
		return "", err
	}
	if err := p.runGates(draft); err != nil {
		return "", err
	}

	messageID, err := p.sender.Send(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("sending draft %s: %w", draftID, err)
	}

	p.limiter.Record()

	p.mu.Lock()
	delete(p.confirmed, draftID)
	p.mu.Unlock()

	entry := audit.Entry{
		Timestamp: p.now(),
		Account:   draft.Account,
		To:        addrStrings(draft.To),
		Cc:        addrStrings(draft.Cc),
		Subject:   draft.Subject,
		MessageID: messageID,
	}
	if err := p.auditor.Append(entry); err != nil {
		// The message is already on the wire; surface the logging
		// failure without failing the send.
		p.log.Error("audit log append failed",
			zap.String("draft_id", draftID),
			zap.Error(err),
		)
	}

	if _, err := p.store.DeleteDraft(ctx, draftID); err != nil {
		p.log.Warn("deleting sent draft failed",
			zap.String("draft_id", draftID),
			zap.Error(err),
		)
	}

	p.log.Info("message sent",
		zap.String("account", draft.Account),
		zap.String("message_id", messageID),
		zap.Int("recipients", len(draft.Recipients())),
	)

	return messageID, nil
}

// runGates applies the ordered safety checks.
func (p *Pipeline) runGates(draft *model.Draft) error {
	if !strings.EqualFold(draft.From.Addr, p.account.FromAddress) {
		return &BlockedError{
			Reason: ReasonAuthMismatch,
			Detail: fmt.Sprintf("draft sender %s does not match account address %s",
				draft.From.Addr, p.account.FromAddress),
		}
	}

	for _, rcpt := range draft.Recipients() {
		if p.isBlockedRecipient(rcpt.Addr) {
			return &BlockedError{
				Reason: ReasonBlockedRecipient,
				Detail: fmt.Sprintf("recipient %s is on the block list", rcpt.Addr),
			}
		}
	}

	if !p.limiter.Allow() {
		return &BlockedError{
			Reason: ReasonRateLimited,
			Detail: fmt.Sprintf("hourly send limit of %d reached", p.cfg.RateLimitPerHour),
		}
	}

	return nil
}

func (p *Pipeline) isBlockedRecipient(addr string) bool {
	for _, blocked := range p.cfg.BlockedRecipients {
		if strings.EqualFold(addr, blocked) {
			return true
		}
	}
	return false
}

func addrStrings(addrs []model.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Addr)
	}
	return out
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
