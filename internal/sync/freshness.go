package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/mailcore/internal/model"
)

// InboxScope names the freshness scope for a folder listing.
func InboxScope(account, folder string) string {
	return fmt.Sprintf("inbox/%s/%s", account, folder)
}

// ConvScope names the freshness scope for a conversation's bodies.
func ConvScope(convID string) string {
	return "conv/" + convID
}

// Policy decides whether cached data for a scope is fresh enough to
// serve without contacting the server. Each scope kind carries its own
// TTL; a scope that has never been refreshed is always stale.
type Policy struct {
	inboxTTL  time.Duration
	folderTTL time.Duration
	convTTL   time.Duration
}

// NewPolicy builds a freshness policy from cache configuration.
func NewPolicy(cfg model.CacheConfig) *Policy {
	return &Policy{
		inboxTTL:  time.Duration(cfg.InboxFreshnessMin) * time.Minute,
		folderTTL: time.Duration(cfg.FolderFreshnessMin) * time.Minute,
		convTTL:   time.Duration(cfg.BodyFreshnessMin) * time.Minute,
	}
}

// TTL returns the freshness window for a scope.
func (p *Policy) TTL(scope string) time.Duration {
	switch {
	case strings.HasPrefix(scope, "conv/"):
		return p.convTTL
	case strings.HasSuffix(scope, "/INBOX"):
		return p.inboxTTL
	default:
		return p.folderTTL
	}
}

// Stale reports whether a scope needs a refresh. refreshedAt and known
// come from the store's sync state; force always wins.
func (p *Policy) Stale(scope string, refreshedAt time.Time, known bool, force bool, now time.Time) bool {
	if force {
		return true
	}
	if !known {
		return true
	}
	return now.Sub(refreshedAt) >= p.TTL(scope)
}
