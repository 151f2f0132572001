package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogAppendAndRead(t *testing.T) {
	log := NewLog(filepath.Join(t.TempDir(), "sub", "send_log.jsonl"))

	first := Entry{
		Timestamp: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		Account:   "work",
		To:        []string{"alice@example.com"},
		Cc:        []string{"bob@example.com"},
		Subject:   "Status",
		MessageID: "m1@mailcore.local",
	}
	require.NoError(t, log.Append(first))

	second := first
	second.Timestamp = first.Timestamp.Add(time.Minute)
	second.MessageID = "m2@mailcore.local"
	second.Cc = nil
	require.NoError(t, log.Append(second))

	entries, err := log.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, first, entries[0])
	assert.Equal(t, second, entries[1])
}

func TestLogMissingFile(t *testing.T) {
	log := NewLog(filepath.Join(t.TempDir(), "never_written.jsonl"))

	entries, err := log.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
