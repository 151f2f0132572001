package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/mailcore/internal/model"
)

func testPolicy() *Policy {
	return NewPolicy(model.CacheConfig{
		InboxFreshnessMin:  5,
		FolderFreshnessMin: 10,
		BodyFreshnessMin:   60,
	})
}

func TestPolicyScopeTTLs(t *testing.T) {
	p := testPolicy()

	assert.Equal(t, 5*time.Minute, p.TTL(InboxScope("work", "INBOX")))
	assert.Equal(t, 10*time.Minute, p.TTL(InboxScope("work", "Archive")))
	assert.Equal(t, time.Hour, p.TTL(ConvScope("a1b2c3d4e5f6")))
}

func TestPolicyStaleBoundaries(t *testing.T) {
	p := testPolicy()
	scope := InboxScope("work", "INBOX")
	refreshed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		elapsed time.Duration
		stale   bool
	}{
		{"just refreshed", 0, false},
		{"under the window", 4*time.Minute + 59*time.Second, false},
		{"exactly at the window", 5 * time.Minute, true},
		{"past the window", 5*time.Minute + time.Second, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := refreshed.Add(tc.elapsed)
			assert.Equal(t, tc.stale, p.Stale(scope, refreshed, true, false, now))
		})
	}
}

func TestPolicyNeverRefreshedIsStale(t *testing.T) {
	p := testPolicy()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, p.Stale(InboxScope("work", "INBOX"), time.Time{}, false, false, now))
}

func TestPolicyForceAlwaysStale(t *testing.T) {
	p := testPolicy()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, p.Stale(InboxScope("work", "INBOX"), now, true, true, now))
}
