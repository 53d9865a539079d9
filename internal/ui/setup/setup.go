package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/nhle/mailnote/internal/credential"
	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/internal/source/gmail"
)

// ErrAborted is returned when the user leaves a form.
var ErrAborted = errors.New("setup aborted")

// SecretSetter stores a secret under a keyring key.
type SecretSetter func(key, value string) error

// PromptFunc shows the consent URL and returns what the user pasted.
type PromptFunc func(ctx context.Context, authURL string) (string, error)

// Run asks for the settings, stores them at path and, for Gmail, walks
// through the consent flow. cfg is updated in place.
func Run(ctx context.Context, path string, cfg *model.AppConfig, logger *zap.Logger) error {
	v := ValuesFrom(cfg)
	if err := runForm(ctx, NewForm(&v)); err != nil {
		return err
	}

	if err := Save(path, cfg, v, credential.Set); err != nil {
		return err
	}
	logger.Info("configuration saved", zap.String("path", path), zap.String("provider", cfg.Provider))

	if cfg.Provider != model.ProviderGmail {
		return nil
	}

	oc := gmail.NewOAuthConfig(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret, cfg.Gmail.RedirectURL)
	tokens := credential.TokenStore{Key: credential.GmailTokenKey(cfg.Account)}
	if err := AuthorizeGmail(ctx, oc, tokens, promptCode); err != nil {
		return err
	}
	logger.Info("gmail authorized", zap.String("account", cfg.Account))
	return nil
}

// Save applies v to cfg, stores the IMAP password if one was entered and
// writes the configuration file.
func Save(path string, cfg *model.AppConfig, v Values, setSecret SecretSetter) error {
	if err := v.Apply(cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if cfg.Provider == model.ProviderIMAP && v.IMAPPassword != "" {
		if err := setSecret(credential.IMAPPasswordKey(cfg.IMAP.Username), v.IMAPPassword); err != nil {
			return fmt.Errorf("saving imap password: %w", err)
		}
	}

	return model.SaveConfig(path, cfg)
}

// AuthorizeGmail runs the consent flow and stores the resulting token.
func AuthorizeGmail(
	ctx context.Context, oc *oauth2.Config, tokens gmail.TokenStore, prompt PromptFunc,
) error {
	input, err := prompt(ctx, gmail.AuthCodeURL(oc))
	if err != nil {
		return err
	}
	return gmail.Exchange(ctx, oc, tokens, input)
}

func promptCode(ctx context.Context, authURL string) (string, error) {
	var code string
	if err := runForm(ctx, NewAuthForm(authURL, &code)); err != nil {
		return "", err
	}
	return code, nil
}

func runForm(ctx context.Context, form *huh.Form) error {
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("running form: %w", err)
	}
	return nil
}
