package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Cache.WindowDays)
	assert.Equal(t, 5, cfg.Cache.InboxFreshnessMin)
	assert.Equal(t, 60, cfg.Cache.BodyFreshnessMin)
	assert.True(t, cfg.Send.RequireConfirmation)
	assert.Equal(t, 20, cfg.Send.RateLimitPerHour)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Accounts)
}

func TestLoadConfigParsesAccounts(t *testing.T) {
	path := writeConfig(t, `
default_account: work
accounts:
  work:
    from_address: me@example.com
    from_name: Mel
    imap:
      host: imap.example.com
      port: "993"
      username: me@example.com
      tls: true
    smtp:
      host: smtp.example.com
      port: "465"
      username: me@example.com
      tls: true
cache:
  window_days: 14
send:
  rate_limit: 5
  blocked_recipients:
    - boss@example.com
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "work", cfg.DefaultAccount)
	require.Contains(t, cfg.Accounts, "work")
	acct := cfg.Accounts["work"]
	assert.Equal(t, "me@example.com", acct.FromAddress)
	assert.Equal(t, "imap.example.com", acct.IMAP.Host)
	assert.True(t, acct.SMTP.TLS)

	// Overrides apply, untouched values keep their defaults.
	assert.Equal(t, 14, cfg.Cache.WindowDays)
	assert.Equal(t, 5, cfg.Cache.InboxFreshnessMin)
	assert.Equal(t, 5, cfg.Send.RateLimitPerHour)
	assert.Equal(t, []string{"boss@example.com"}, cfg.Send.BlockedRecipients)
	assert.True(t, cfg.Send.RequireConfirmation)
}

func TestLoadConfigUnknownDefaultAccount(t *testing.T) {
	path := writeConfig(t, `
default_account: personal
accounts:
  work:
    from_address: me@example.com
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "personal")
}

func TestLoadConfigInfersDefaultAccount(t *testing.T) {
	path := writeConfig(t, `
accounts:
  work:
    from_address: me@example.com
  archive:
    from_address: old@example.com
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "archive", cfg.DefaultAccount, "lowest account name wins")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	cfg.DefaultAccount = "work"
	cfg.Accounts = map[string]AccountConfig{
		"work": {FromAddress: "me@example.com"},
	}

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "work", loaded.DefaultAccount)
	assert.Equal(t, "me@example.com", loaded.Accounts["work"].FromAddress)
}
