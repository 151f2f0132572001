package app

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/send"
	"github.com/nhle/mailcore/internal/store"
)

// newDraftID returns a short hex identifier usable with prefix lookup.
func newDraftID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// parseAddressList parses comma-separated address arguments in either
// bare or "Name <addr>" form.
func parseAddressList(raw []string) ([]model.Address, error) {
	var out []model.Address
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			parsed, err := mail.ParseAddress(part)
			if err != nil {
				return nil, fmt.Errorf("invalid address %q: %w", part, err)
			}
			out = append(out, model.Address{Addr: parsed.Address, Name: parsed.Name})
		}
	}
	return out, nil
}

// Compose creates a new draft for an account. The sender identity is
// taken from the account configuration.
func (a *App) Compose(ctx context.Context, account string, to, cc, bcc []string, subject, body string) (*model.Draft, error) {
	name, acct, err := a.cfg.GetAccount(account)
	if err != nil {
		return nil, err
	}

	toAddrs, err := parseAddressList(to)
	if err != nil {
		return nil, err
	}
	if len(toAddrs) == 0 {
		return nil, fmt.Errorf("a draft needs at least one recipient")
	}
	ccAddrs, err := parseAddressList(cc)
	if err != nil {
		return nil, err
	}
	bccAddrs, err := parseAddressList(bcc)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	draft := &model.Draft{
		DraftID:   newDraftID(),
		Account:   name,
		From:      model.Address{Addr: acct.FromAddress, Name: acct.FromName},
		To:        toAddrs,
		Cc:        ccAddrs,
		Bcc:       bccAddrs,
		Subject:   subject,
		BodyText:  body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.store.SaveDraft(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// Reply creates a draft replying to the latest message of a
// conversation. The reply carries the whole reference chain so it
// threads correctly on every client, and replyAll keeps the original
// recipient set minus the sender's own address.
func (a *App) Reply(ctx context.Context, account, convIDOrPrefix, body string, replyAll bool) (*model.Draft, error) {
	name, acct, err := a.cfg.GetAccount(account)
	if err != nil {
		return nil, err
	}

	conv, err := a.Conversation(ctx, account, convIDOrPrefix, false)
	if err != nil {
		return nil, err
	}
	latest := conv.Messages[len(conv.Messages)-1]

	subject := latest.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	to := latest.ReplyTo
	if len(to) == 0 {
		to = []model.Address{latest.From}
	}

	var cc []model.Address
	if replyAll {
		seen := map[string]bool{strings.ToLower(acct.FromAddress): true}
		for _, addr := range to {
			seen[strings.ToLower(addr.Addr)] = true
		}
		for _, addr := range append(append([]model.Address{}, latest.To...), latest.Cc...) {
			key := strings.ToLower(addr.Addr)
			if seen[key] {
				continue
			}
			seen[key] = true
			cc = append(cc, addr)
		}
	}

	references := append(append([]string{}, latest.References...), latest.MessageID)

	now := time.Now()
	draft := &model.Draft{
		DraftID:       newDraftID(),
		Account:       name,
		From:          model.Address{Addr: acct.FromAddress, Name: acct.FromName},
		To:            to,
		Cc:            cc,
		Subject:       subject,
		BodyText:      body,
		ReplyToConvID: conv.ConvID,
		InReplyTo:     latest.MessageID,
		References:    references,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := a.store.SaveDraft(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// resolveDraft expands a draft identifier prefix.
func (a *App) resolveDraft(ctx context.Context, prefix string) (string, error) {
	ids, err := a.store.FindDraftIDsByPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("draft %s: %w", prefix, store.ErrNotFound)
	case 1:
		return ids[0], nil
	default:
		return "", &store.AmbiguousPrefixError{Prefix: prefix, Matches: ids}
	}
}

// Drafts lists all saved drafts.
func (a *App) Drafts(ctx context.Context) ([]model.Draft, error) {
	return a.store.ListDrafts(ctx)
}

// Draft returns one draft by identifier or unique prefix.
func (a *App) Draft(ctx context.Context, idOrPrefix string) (*model.Draft, error) {
	id, err := a.resolveDraft(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	return a.store.GetDraft(ctx, id)
}

// DeleteDraft removes a draft by identifier or unique prefix.
func (a *App) DeleteDraft(ctx context.Context, idOrPrefix string) error {
	id, err := a.resolveDraft(ctx, idOrPrefix)
	if err != nil {
		return err
	}
	deleted, err := a.store.DeleteDraft(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("draft %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// PrepareSend runs a draft through the safety gates and issues a
// confirmation token.
func (a *App) PrepareSend(ctx context.Context, idOrPrefix string) (*send.Confirmation, error) {
	id, err := a.resolveDraft(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	draft, err := a.store.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	pipeline, err := a.pipelineFor(draft.Account)
	if err != nil {
		return nil, err
	}
	return pipeline.Prepare(ctx, id)
}

// ConfirmSend consumes a confirmation token and sends the draft,
// returning the assigned Message-ID.
func (a *App) ConfirmSend(ctx context.Context, idOrPrefix, token string) (string, error) {
	id, err := a.resolveDraft(ctx, idOrPrefix)
	if err != nil {
		return "", err
	}
	draft, err := a.store.GetDraft(ctx, id)
	if err != nil {
		return "", err
	}
	pipeline, err := a.pipelineFor(draft.Account)
	if err != nil {
		return "", err
	}
	return pipeline.Confirm(ctx, id, token)
}

// ResendDraft retries a confirmed draft whose send attempt failed.
func (a *App) ResendDraft(ctx context.Context, idOrPrefix string) (string, error) {
	id, err := a.resolveDraft(ctx, idOrPrefix)
	if err != nil {
		return "", err
	}
	draft, err := a.store.GetDraft(ctx, id)
	if err != nil {
		return "", err
	}
	pipeline, err := a.pipelineFor(draft.Account)
	if err != nil {
		return "", err
	}
	return pipeline.Resend(ctx, id)
}

// SendDirect sends a draft without confirmation, for accounts that
// allow it.
func (a *App) SendDirect(ctx context.Context, idOrPrefix string) (string, error) {
	id, err := a.resolveDraft(ctx, idOrPrefix)
	if err != nil {
		return "", err
	}
	draft, err := a.store.GetDraft(ctx, id)
	if err != nil {
		return "", err
	}
	pipeline, err := a.pipelineFor(draft.Account)
	if err != nil {
		return "", err
	}
	return pipeline.SendDirect(ctx, id)
}
