package gmail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// consentState is echoed back by the consent screen. The flow is
// interactive and single-shot, so a fixed value is enough.
const consentState = "mailnote-setup"

// AuthCodeURL returns the consent page URL asking for offline access.
func AuthCodeURL(config *oauth2.Config) string {
	return config.AuthCodeURL(consentState, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the authorization code for a token and stores it. input
// may be the bare code or the whole URL the browser was redirected to.
func Exchange(
	ctx context.Context, config *oauth2.Config, tokens TokenStore, input string,
) error {
	code, err := ParseAuthCode(input)
	if err != nil {
		return err
	}

	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	if err := tokens.Save(tok); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// ParseAuthCode extracts the authorization code from a pasted code or
// redirect URL.
func ParseAuthCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty authorization code")
	}
	if !strings.Contains(input, "code=") {
		return input, nil
	}

	rawQuery := input
	if u, err := url.Parse(input); err == nil && u.RawQuery != "" {
		rawQuery = u.RawQuery
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parsing redirect URL: %w", err)
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("consent denied: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL has no code")
	}
	return code, nil
}
