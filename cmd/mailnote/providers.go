package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/credential"
	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/internal/source"
	"github.com/nhle/mailnote/internal/source/email"
	"github.com/nhle/mailnote/internal/source/gmail"
	"github.com/nhle/mailnote/internal/store"
)

// buildProvider returns the configured mail provider. Missing credentials
// are not an error here; Authorize reports them.
func buildProvider(cfg *model.AppConfig, logger *zap.Logger) (source.Provider, error) {
	switch cfg.Provider {
	case model.ProviderGmail:
		oc := gmail.NewOAuthConfig(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RedirectURL)
		tokens := credential.TokenStore{Key: credential.GmailTokenKey(cfg.Account)}
		return gmail.New(oc, tokens, cfg.Account, logger.Named("gmail")), nil

	case model.ProviderIMAP:
		password, err := credential.Get(credential.IMAPPasswordKey(cfg.IMAP.Username))
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return nil, err
		}
		return email.NewIMAPClient(email.Config{
			Host:     cfg.IMAP.Host,
			Port:     strconv.Itoa(cfg.IMAP.Port),
			Username: cfg.IMAP.Username,
			Password: password,
			TLS:      cfg.IMAP.TLS,
			Trash:    cfg.IMAP.Trash,
		}, logger.Named("imap")), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// openLedger opens the history database, or returns nil when it is
// disabled.
func openLedger(cfg *model.AppConfig) (*store.SQLiteStore, error) {
	if cfg.HistoryDB == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryDB), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	return store.NewSQLiteStore(cfg.HistoryDB)
}
