package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

const serviceName = "mailnote"

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailnote/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailnote-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get returns the value stored under key. It wraps ErrNotFound when there
// is none.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", wrapErr("getting", key, err)
	}
	return string(item.Data), nil
}

// Set stores value under key, replacing any previous value.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return wrapErr("setting", key, err)
	}
	return nil
}

// Delete removes the value stored under key. It wraps ErrNotFound when
// there is none.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}
	if err := ring.Remove(key); err != nil {
		return wrapErr("deleting", key, err)
	}
	return nil
}

func wrapErr(op, key string, err error) error {
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
		err = ErrNotFound
	}
	return fmt.Errorf("%s credential %q: %w", op, key, err)
}

// GmailTokenKey is the keyring key of the OAuth token for account.
func GmailTokenKey(account string) string {
	return "gmail-token-" + account
}

// IMAPPasswordKey is the keyring key of the IMAP password for username.
func IMAPPasswordKey(username string) string {
	return "imap-" + username
}

// TokenStore keeps an OAuth token as JSON under a keyring key.
type TokenStore struct {
	Key string
}

// Load returns the stored token. It wraps ErrNotFound when there is none.
func (s TokenStore) Load() (*oauth2.Token, error) {
	raw, err := Get(s.Key)
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decoding token %q: %w", s.Key, err)
	}
	return &tok, nil
}

// Save stores tok, replacing any previous token.
func (s TokenStore) Save(tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token %q: %w", s.Key, err)
	}
	return Set(s.Key, string(raw))
}
