package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Provider != ProviderGmail || cfg.Account != "me" || cfg.FromLabel != "INBOX" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.FetchAmount != 100 || !cfg.FetchAttachment || cfg.DestroyOnFetch {
		t.Errorf("fetch defaults = %+v", cfg)
	}
	if cfg.NoteName != "${Subject}" || cfg.MailFolder != "Mail" {
		t.Errorf("note defaults = %+v", cfg)
	}
	if cfg.IMAP.Port != 993 || !cfg.IMAP.TLS {
		t.Errorf("imap defaults = %+v", cfg.IMAP)
	}
	if cfg.WatchInterval != 10*time.Minute || cfg.RunTimeout != 0 {
		t.Errorf("watch defaults = %v, %v", cfg.WatchInterval, cfg.RunTimeout)
	}
	if strings.HasPrefix(cfg.HistoryDB, "~") {
		t.Errorf("HistoryDB not expanded: %q", cfg.HistoryDB)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
provider: imap
from_label: Newsletters
fetch_amount: 5
fetch_attachment: false
watch_interval: 90s
imap:
  host: imap.example.com
  username: bob
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Provider != ProviderIMAP || cfg.FromLabel != "Newsletters" || cfg.FetchAmount != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FetchAttachment {
		t.Error("explicit fetch_attachment: false was overridden by the default")
	}
	if cfg.WatchInterval != 90*time.Second {
		t.Errorf("WatchInterval = %v", cfg.WatchInterval)
	}
	if cfg.IMAP.Host != "imap.example.com" || cfg.IMAP.Port != 993 {
		t.Errorf("imap = %+v", cfg.IMAP)
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("provider: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.ToLabel = "Label_42"
	cfg.DestroyOnFetch = true
	cfg.Gmail.ClientID = "client.apps.googleusercontent.com"
	cfg.RunTimeout = 3 * time.Minute

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save: %v", err)
	}
	if loaded.ToLabel != "Label_42" || !loaded.DestroyOnFetch {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.RunTimeout != 3*time.Minute {
		t.Errorf("RunTimeout = %v", loaded.RunTimeout)
	}
	if loaded.Gmail.ClientID != "client.apps.googleusercontent.com" {
		t.Errorf("Gmail = %+v", loaded.Gmail)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		return &AppConfig{Provider: ProviderGmail, FromLabel: "INBOX", FetchAmount: 10}
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"valid", func(*AppConfig) {}, false},
		{"unknown provider", func(c *AppConfig) { c.Provider = "pop3" }, true},
		{"zero amount", func(c *AppConfig) { c.FetchAmount = 0 }, true},
		{"no from label", func(c *AppConfig) { c.FromLabel = "" }, true},
		{"same labels", func(c *AppConfig) { c.ToLabel = "INBOX" }, true},
		{"negative interval", func(c *AppConfig) { c.WatchInterval = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/x/y.db"); got != filepath.Join(home, "x", "y.db") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("~user/x"); got != "~user/x" {
		t.Errorf("ExpandHome = %q", got)
	}
}
