package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// IMAPConfig holds the IMAP server settings for one account.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// SMTPConfig holds the SMTP server settings for one account.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// AccountConfig is the configuration for a single email account.
type AccountConfig struct {
	IMAP IMAPConfig `mapstructure:"imap" yaml:"imap"`
	SMTP SMTPConfig `mapstructure:"smtp" yaml:"smtp"`

	// FromAddress and FromName identify the sender for outgoing mail.
	// The send pipeline rejects drafts whose FROM does not match.
	FromAddress string `mapstructure:"from_address" yaml:"from_address"`
	FromName    string `mapstructure:"from_name" yaml:"from_name"`
}

// CacheConfig controls the retention window and per-scope freshness TTLs.
type CacheConfig struct {
	// WindowDays is the rolling retention horizon; messages older than
	// this are pruned on every sync cycle.
	WindowDays int `mapstructure:"window_days" yaml:"window_days"`

	// InboxFreshnessMin is the TTL for inbox listings, in minutes.
	InboxFreshnessMin int `mapstructure:"inbox_freshness_min" yaml:"inbox_freshness_min"`

	// BodyFreshnessMin is the TTL for fetched message bodies, in minutes.
	BodyFreshnessMin int `mapstructure:"body_freshness_min" yaml:"body_freshness_min"`

	// FolderFreshnessMin is the TTL for non-inbox folder listings.
	FolderFreshnessMin int `mapstructure:"folder_freshness_min" yaml:"folder_freshness_min"`

	// RemoteTimeoutSec bounds every remote collaborator call.
	RemoteTimeoutSec int `mapstructure:"remote_timeout_sec" yaml:"remote_timeout_sec"`
}

// SendConfig controls the send safety pipeline.
type SendConfig struct {
	RequireConfirmation bool     `mapstructure:"require_confirmation" yaml:"require_confirmation"`
	RateLimitPerHour    int      `mapstructure:"rate_limit" yaml:"rate_limit"`
	BlockedRecipients   []string `mapstructure:"blocked_recipients" yaml:"blocked_recipients"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	File        string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	DefaultAccount string                   `mapstructure:"default_account" yaml:"default_account"`
	Accounts       map[string]AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	Cache          CacheConfig              `mapstructure:"cache" yaml:"cache"`
	Send           SendConfig               `mapstructure:"send" yaml:"send"`
	Log            LogConfig                `mapstructure:"log" yaml:"log"`
	DataDir        string                   `mapstructure:"data_dir" yaml:"data_dir"`
}

// GetAccount resolves an account name, falling back to the default
// account when name is empty.
func (c *AppConfig) GetAccount(name string) (string, AccountConfig, error) {
	if name == "" {
		name = c.DefaultAccount
	}
	if name == "" {
		return "", AccountConfig{}, fmt.Errorf("no account specified and no default account configured")
	}
	acct, ok := c.Accounts[name]
	if !ok {
		return "", AccountConfig{}, fmt.Errorf("account %q not found", name)
	}
	return name, acct, nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailcore/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailcore", "config.yaml")
}

// DefaultDataDir returns the default directory for the cache database
// and the send audit log.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailcore")
	}
	return filepath.Join(home, ".local", "share", "mailcore")
}

// defaultAppConfig returns a configuration with all tunables at their
// documented defaults.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Accounts: map[string]AccountConfig{},
		Cache: CacheConfig{
			WindowDays:         7,
			InboxFreshnessMin:  5,
			BodyFreshnessMin:   60,
			FolderFreshnessMin: 10,
			RemoteTimeoutSec:   30,
		},
		Send: SendConfig{
			RequireConfirmation: true,
			RateLimitPerHour:    20,
		},
		Log: LogConfig{
			Level: "info",
		},
		DataDir: DefaultDataDir(),
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. If the file does not exist, it returns the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("cache.window_days", 7)
	v.SetDefault("cache.inbox_freshness_min", 5)
	v.SetDefault("cache.body_freshness_min", 60)
	v.SetDefault("cache.folder_freshness_min", 10)
	v.SetDefault("cache.remote_timeout_sec", 30)
	v.SetDefault("send.require_confirmation", true)
	v.SetDefault("send.rate_limit", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("data_dir", DefaultDataDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.DefaultAccount != "" {
		if _, ok := cfg.Accounts[cfg.DefaultAccount]; !ok {
			return nil, fmt.Errorf("default account %q not found in accounts", cfg.DefaultAccount)
		}
	}
	if cfg.DefaultAccount == "" {
		for name := range cfg.Accounts {
			if cfg.DefaultAccount == "" || name < cfg.DefaultAccount {
				cfg.DefaultAccount = name
			}
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("default_account", cfg.DefaultAccount)
	v.Set("accounts", cfg.Accounts)
	v.Set("cache", cfg.Cache)
	v.Set("send", cfg.Send)
	v.Set("log", cfg.Log)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
