package store_test

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailcore/internal/model"
	"github.com/nhle/mailcore/internal/search"
	"github.com/nhle/mailcore/internal/store"
	"github.com/nhle/mailcore/tests/testutil"
)

func testMessage(id, convID string, date time.Time) model.Message {
	return model.Message{
		MessageID:        id,
		ConvID:           convID,
		Account:          "work",
		Folder:           "INBOX",
		From:             model.Address{Addr: "alice@example.com", Name: "Alice"},
		To:               []model.Address{{Addr: "bob@example.com"}},
		Subject:          "Quarterly planning",
		Date:             date,
		Flags:            []model.Flag{model.FlagSeen},
		HeadersFetchedAt: date,
	}
}

func TestUpsertAndGetMessage(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	date := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	m := testMessage("m1@x", "conv01", date)

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m}))

	got, err := s.GetMessage(ctx, "m1@x")
	require.NoError(t, err)

	assert.Equal(t, "m1@x", got.MessageID)
	assert.Equal(t, "conv01", got.ConvID)
	assert.Equal(t, "Alice", got.From.Name)
	assert.True(t, got.Date.Equal(date))
	assert.True(t, got.IsRead())
	assert.Nil(t, got.BodyText)
}

func TestGetMessageNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetMessage(context.Background(), "missing@x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertMergePreservesBody(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	date := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testMessage("m1@x", "conv01", date)
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m}))

	body := "Hello there"
	require.NoError(t, s.UpdateBody(ctx, "m1@x", &body, nil, date.Add(time.Minute)))

	// A later header-only refresh must not clear the fetched body.
	refreshed := testMessage("m1@x", "conv01", date)
	refreshed.Flags = []model.Flag{model.FlagSeen, model.FlagFlagged}
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{refreshed}))

	got, err := s.GetMessage(ctx, "m1@x")
	require.NoError(t, err)

	require.NotNil(t, got.BodyText)
	assert.Equal(t, "Hello there", *got.BodyText)
	require.NotNil(t, got.BodyFetchedAt)
	assert.True(t, got.IsFlagged(), "flags should be overwritten by the refresh")
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	m := testMessage("m1@x", "conv01", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m}))
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageCount)
}

func TestUpdateFlags(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	m := testMessage("m1@x", "conv01", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m}))

	require.NoError(t, s.UpdateFlags(ctx, "m1@x", []model.Flag{model.FlagFlagged}))

	got, err := s.GetMessage(ctx, "m1@x")
	require.NoError(t, err)
	assert.False(t, got.IsRead())
	assert.True(t, got.IsFlagged())

	err = s.UpdateFlags(ctx, "missing@x", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetConversationOrdering(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m1 := testMessage("m1@x", "conv01", base)
	m2 := testMessage("m2@x", "conv01", base.Add(time.Hour))
	m2.From = model.Address{Addr: "bob@example.com", Name: "Bob"}
	m2.Flags = nil // unread

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m2, m1}))

	conv, err := s.GetConversation(ctx, "conv01")
	require.NoError(t, err)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "m1@x", conv.Messages[0].MessageID, "oldest first")
	assert.Equal(t, 1, conv.UnreadCount)
	assert.True(t, conv.LatestDate.Equal(base.Add(time.Hour)))
	assert.Contains(t, conv.Participants, "alice@example.com")
	assert.Contains(t, conv.Participants, "bob@example.com")

	_, err = s.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListConversations(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	old := testMessage("m1@x", "conv01", base)
	recent := testMessage("m2@x", "conv02", base.Add(2*time.Hour))
	recent.Subject = "Lunch"
	recent.Flags = nil // unread

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{old, recent}))

	summaries, err := s.ListConversations(ctx, store.ConversationFilter{Account: "work", Folder: "INBOX"})
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "conv02", summaries[0].ConvID, "latest conversation first")

	unread, err := s.ListConversations(ctx, store.ConversationFilter{
		Account:    "work",
		Folder:     "INBOX",
		UnreadOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "conv02", unread[0].ConvID)
	assert.Equal(t, 1, unread[0].UnreadCount)
}

func TestConversationSnippetKeepsRuneBoundaries(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	date := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := testMessage("m1@x", "conv01", date)
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m}))

	// Every rune is two bytes, so a byte-offset cut would land inside a
	// sequence.
	body := strings.Repeat("ü", 120)
	require.NoError(t, s.UpdateBody(ctx, "m1@x", &body, nil, date))

	summaries, err := s.ListConversations(ctx, store.ConversationFilter{Account: "work", Folder: "INBOX"})
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	snippet := summaries[0].Snippet
	assert.True(t, utf8.ValidString(snippet))
	assert.Equal(t, 100, utf8.RuneCountInString(snippet))
}

func TestFindConversationsByPrefix(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m1 := testMessage("m1@x", "a1b2c3d4e5f6", base)
	m2 := testMessage("m2@x", "a1b2ffffffff", base.Add(time.Hour))
	m3 := testMessage("m3@x", "ffffffffffff", base)

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m1, m2, m3}))

	t.Run("unique prefix", func(t *testing.T) {
		got, err := s.FindConversationsByPrefix(ctx, "a1b2c3")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a1b2c3d4e5f6", got[0].ConvID)
	})

	t.Run("ambiguous prefix returns all matches newest first", func(t *testing.T) {
		got, err := s.FindConversationsByPrefix(ctx, "a1b2")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a1b2ffffffff", got[0].ConvID)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := s.FindConversationsByPrefix(ctx, "0000")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRetagConversation(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m1 := testMessage("m1@x", "oldconv", base)
	m2 := testMessage("m2@x", "oldconv", base.Add(time.Hour))
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m1, m2}))

	moved, err := s.RetagConversation(ctx, "oldconv", "newconv")
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	conv, err := s.GetConversation(ctx, "newconv")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)

	_, err = s.GetConversation(ctx, "oldconv")
	assert.ErrorIs(t, err, store.ErrNotFound)

	moved, err = s.RetagConversation(ctx, "same", "same")
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestPrune(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -7)

	inside := testMessage("fresh@x", "conv01", now.AddDate(0, 0, -6))
	outside := testMessage("stale@x", "conv02", now.AddDate(0, 0, -8))
	locked := testMessage("locked@x", "conv03", now.AddDate(0, 0, -8))

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{inside, outside, locked}))

	pruned, err := s.Prune(ctx, cutoff, []string{"conv03"})
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = s.GetMessage(ctx, "stale@x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetMessage(ctx, "fresh@x")
	assert.NoError(t, err)

	_, err = s.GetMessage(ctx, "locked@x")
	assert.NoError(t, err, "in-flight conversations must survive pruning")
}

func TestSyncState(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, known, err := s.RefreshedAt(ctx, "inbox/work/INBOX")
	require.NoError(t, err)
	assert.False(t, known)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkRefreshed(ctx, "inbox/work/INBOX", at))

	got, known, err := s.RefreshedAt(ctx, "inbox/work/INBOX")
	require.NoError(t, err)
	assert.True(t, known)
	assert.True(t, got.Equal(at))

	later := at.Add(time.Hour)
	require.NoError(t, s.MarkRefreshed(ctx, "inbox/work/INBOX", later))

	got, _, err = s.RefreshedAt(ctx, "inbox/work/INBOX")
	require.NoError(t, err)
	assert.True(t, got.Equal(later))
}

func TestStats(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m1 := testMessage("m1@x", "conv01", base)
	m2 := testMessage("m2@x", "conv02", base.Add(time.Hour))
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m1, m2}))
	require.NoError(t, s.MarkRefreshed(ctx, "inbox/work/INBOX", base.Add(2*time.Hour)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.MessageCount)
	assert.Equal(t, 2, stats.ConversationCount)
	require.NotNil(t, stats.OldestMessage)
	assert.True(t, stats.OldestMessage.Equal(base))
	require.NotNil(t, stats.LastSync)
}

func mustParse(t *testing.T, raw string) *search.Query {
	t.Helper()
	q, err := search.Parse(raw)
	require.NoError(t, err)
	return q
}

func TestSearchMessages(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	newYearsEve := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	newYear := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	old := testMessage("old@x", "conv01", newYearsEve)
	old.Subject = "Year end review"

	recent := testMessage("recent@x", "conv02", newYear)
	recent.Subject = "Kickoff"
	recent.From = model.Address{Addr: "carol@example.com", Name: "Carol"}
	recent.Flags = nil
	recent.Attachments = []model.Attachment{{Filename: "plan.pdf", Size: 1024, ContentType: "application/pdf"}}

	require.NoError(t, s.UpsertMessages(ctx, []model.Message{old, recent}))

	filter := store.SearchFilter{Account: "work"}

	t.Run("before is exclusive of the named day", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "before:2025-01-01"), filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "old@x", got[0].MessageID)
	})

	t.Run("after starts the following day", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "after:2024-12-31"), filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "recent@x", got[0].MessageID)
	})

	t.Run("date covers the full day", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "date:2024-12-31"), filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "old@x", got[0].MessageID)
	})

	t.Run("predicates conjoin", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "from:carol is:unread has:attachment"), filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "recent@x", got[0].MessageID)
	})

	t.Run("conflicting predicates match nothing", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "from:carol is:read"), filter)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("full text matches subject", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "kickoff"), filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "recent@x", got[0].MessageID)
	})

	t.Run("free text conjoins with from", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "kickoff from:carol"), filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "recent@x", got[0].MessageID)

		got, err = s.SearchMessages(ctx, mustParse(t, "kickoff from:alice"), filter)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("free text conjoins with to", func(t *testing.T) {
		got, err := s.SearchMessages(ctx, mustParse(t, "kickoff to:bob"), filter)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "recent@x", got[0].MessageID)
	})
}

func TestRawQuery(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{
		testMessage("m1@x", "conv01", base),
		testMessage("m2@x", "conv01", base.Add(time.Hour)),
	}))

	t.Run("select works", func(t *testing.T) {
		rows, err := s.RawQuery(ctx, "SELECT message_id, subject FROM messages ORDER BY date_utc", nil, 10)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "m1@x", rows[0]["message_id"])
	})

	t.Run("limit is enforced", func(t *testing.T) {
		rows, err := s.RawQuery(ctx, "SELECT message_id FROM messages", nil, 1)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("mutations are rejected", func(t *testing.T) {
		for _, q := range []string{
			"DELETE FROM messages",
			"UPDATE messages SET subject = 'x'",
			"DROP TABLE messages",
			"SELECT 1; DELETE FROM messages",
			"PRAGMA journal_mode=DELETE",
		} {
			_, err := s.RawQuery(ctx, q, nil, 10)
			require.Error(t, err, "query %q should be rejected", q)
			assert.True(t, search.IsInvalidQuery(err), "query %q: got %v", q, err)
		}

		var count int
		rows, err := s.RawQuery(ctx, "SELECT COUNT(*) AS n FROM messages", nil, 1)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		switch v := rows[0]["n"].(type) {
		case int64:
			count = int(v)
		case string:
			require.Equal(t, "2", v)
			count = 2
		}
		assert.Equal(t, 2, count)
	})
}

func TestMoveMessage(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	m := testMessage("m1@x", "conv01", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.UpsertMessages(ctx, []model.Message{m}))

	require.NoError(t, s.MoveMessage(ctx, "m1@x", "Archive"))

	got, err := s.GetMessage(ctx, "m1@x")
	require.NoError(t, err)
	assert.Equal(t, "Archive", got.Folder)

	err = s.MoveMessage(ctx, "missing@x", "Archive")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
