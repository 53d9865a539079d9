package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GmailConfig holds the OAuth client used to reach the Gmail API.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url" yaml:"redirect_url"`
}

// IMAPConfig holds the IMAP server settings. The password lives in the
// keyring, never in the config file.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// Trash is the mailbox that trashed messages are moved to.
	Trash string `mapstructure:"trash" yaml:"trash"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`

	// File receives the log output. "stderr" writes to the terminal.
	File string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Provider selects the mail backend: "gmail" or "imap".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Account is the provider account id ("me" for the authorized Gmail user).
	Account string `mapstructure:"account" yaml:"account"`

	// FromLabel is the label (id or name) whose threads are imported.
	FromLabel string `mapstructure:"from_label" yaml:"from_label"`

	// ToLabel is added to each imported thread. Empty means only FromLabel
	// is removed.
	ToLabel string `mapstructure:"to_label" yaml:"to_label"`

	VaultPath        string `mapstructure:"vault_path" yaml:"vault_path"`
	MailFolder       string `mapstructure:"mail_folder" yaml:"mail_folder"`
	AttachmentFolder string `mapstructure:"attachment_folder" yaml:"attachment_folder"`

	// FetchAmount caps the number of threads imported per run.
	FetchAmount int `mapstructure:"fetch_amount" yaml:"fetch_amount"`

	DestroyOnFetch  bool `mapstructure:"destroy_on_fetch" yaml:"destroy_on_fetch"`
	FetchAttachment bool `mapstructure:"fetch_attachment" yaml:"fetch_attachment"`

	// Template is the vault path of the note template. Empty uses ${Body}.
	Template string `mapstructure:"template" yaml:"template"`

	// NoteName is the template of the note file name.
	NoteName string `mapstructure:"note_name" yaml:"note_name"`

	// HistoryDB is the SQLite ledger path. Empty disables the ledger.
	HistoryDB string `mapstructure:"history_db" yaml:"history_db"`

	// WatchInterval is the pause between runs of the watch command.
	WatchInterval time.Duration `mapstructure:"watch_interval" yaml:"watch_interval"`

	// RunTimeout bounds one scheduled run. Zero means no bound.
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`

	Gmail GmailConfig `mapstructure:"gmail" yaml:"gmail"`
	IMAP  IMAPConfig  `mapstructure:"imap" yaml:"imap"`
	Log   LogConfig   `mapstructure:"log" yaml:"log"`
}

const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailnote/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailnote", "config.yaml")
}

var defaults = map[string]any{
	"provider":           ProviderGmail,
	"account":            "me",
	"from_label":         "INBOX",
	"to_label":           "",
	"vault_path":         ".",
	"mail_folder":        "Mail",
	"attachment_folder":  "Mail/attachments",
	"fetch_amount":       100,
	"destroy_on_fetch":   false,
	"fetch_attachment":   true,
	"template":           "",
	"note_name":          "${Subject}",
	"history_db":         "~/.config/mailnote/history.db",
	"watch_interval":     "10m",
	"run_timeout":        "0s",
	"gmail.redirect_url": "http://localhost",
	"imap.port":          993,
	"imap.tls":           true,
	"imap.trash":         "[Gmail]/Trash",
	"log.level":          "info",
	"log.development":    false,
	"log.file":           "~/.config/mailnote/mailnote.log",
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.VaultPath = ExpandHome(cfg.VaultPath)
	cfg.HistoryDB = ExpandHome(cfg.HistoryDB)
	cfg.Log.File = ExpandHome(cfg.Log.File)
	return cfg, nil
}

// Validate reports settings a fetch run cannot work with.
func (c *AppConfig) Validate() error {
	switch c.Provider {
	case ProviderGmail, ProviderIMAP:
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderGmail, ProviderIMAP)
	}
	if c.FetchAmount <= 0 {
		return fmt.Errorf("fetch_amount must be positive, got %d", c.FetchAmount)
	}
	if c.FromLabel == "" {
		return errors.New("from_label is required")
	}
	if c.WatchInterval < 0 || c.RunTimeout < 0 {
		return errors.New("watch_interval and run_timeout must not be negative")
	}
	if c.FromLabel == c.ToLabel {
		return fmt.Errorf("from_label and to_label are both %q", c.FromLabel)
	}
	return nil
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

	v.Set("provider", cfg.Provider)
	v.Set("account", cfg.Account)
	v.Set("from_label", cfg.FromLabel)
	v.Set("to_label", cfg.ToLabel)
	v.Set("vault_path", cfg.VaultPath)
	v.Set("mail_folder", cfg.MailFolder)
	v.Set("attachment_folder", cfg.AttachmentFolder)
	v.Set("fetch_amount", cfg.FetchAmount)
	v.Set("destroy_on_fetch", cfg.DestroyOnFetch)
	v.Set("fetch_attachment", cfg.FetchAttachment)
	v.Set("template", cfg.Template)
	v.Set("note_name", cfg.NoteName)
	v.Set("history_db", cfg.HistoryDB)
	v.Set("watch_interval", cfg.WatchInterval.String())
	v.Set("run_timeout", cfg.RunTimeout.String())
	v.Set("gmail", cfg.Gmail)
	v.Set("imap", cfg.IMAP)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
