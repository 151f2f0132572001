package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/store"
	"github.com/nhle/mailcore/tests/testutil"
)

func testDraft(id string, at time.Time) *model.Draft {
	return &model.Draft{
		DraftID:   id,
		Account:   "work",
		From:      model.Address{Addr: "me@example.com", Name: "Me"},
		To:        []model.Address{{Addr: "bob@example.com"}},
		Subject:   "Hello",
		BodyText:  "Quick note",
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestDraftRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	d := testDraft("abc123def456", at)
	d.InReplyTo = "root@x"
	d.References = []string{"root@x"}
	d.ReplyToConvID = "conv01"

	require.NoError(t, s.SaveDraft(ctx, d))

	got, err := s.GetDraft(ctx, "abc123def456")
	require.NoError(t, err)

	assert.Equal(t, "me@example.com", got.From.Addr)
	assert.Equal(t, []model.Address{{Addr: "bob@example.com"}}, got.To)
	assert.Equal(t, "root@x", got.InReplyTo)
	assert.Equal(t, []string{"root@x"}, got.References)
	assert.Equal(t, "conv01", got.ReplyToConvID)
	assert.True(t, got.CreatedAt.Equal(at))
}

func TestDraftNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetDraft(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListDraftsNewestFirst(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveDraft(ctx, testDraft("older0000000", base)))
	require.NoError(t, s.SaveDraft(ctx, testDraft("newer0000000", base.Add(time.Hour))))

	drafts, err := s.ListDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, "newer0000000", drafts[0].DraftID)
}

func TestDeleteDraft(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDraft(ctx, testDraft("abc123def456", time.Now().UTC())))

	deleted, err := s.DeleteDraft(ctx, "abc123def456")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteDraft(ctx, "abc123def456")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestFindDraftIDsByPrefix(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveDraft(ctx, testDraft("abc111111111", base)))
	require.NoError(t, s.SaveDraft(ctx, testDraft("abc222222222", base.Add(time.Hour))))
	require.NoError(t, s.SaveDraft(ctx, testDraft("xyz333333333", base)))

	ids, err := s.FindDraftIDsByPrefix(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc222222222", "abc111111111"}, ids)

	ids, err = s.FindDraftIDsByPrefix(ctx, "abc1")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc111111111"}, ids)

	ids, err = s.FindDraftIDsByPrefix(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
