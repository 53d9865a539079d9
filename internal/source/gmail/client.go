// Package gmail implements source.Provider on the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mailnote/internal/source"
)

// maxPageSize is the largest page the threads.list endpoint returns.
const maxPageSize = 500

// threadLinkPrefix opens a thread in the Gmail web UI.
const threadLinkPrefix = "https://mail.google.com/mail/#all/"

// TokenStore persists the OAuth token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// Client talks to the Gmail API on behalf of one account.
type Client struct {
	config  *oauth2.Config
	tokens  TokenStore
	account string
	logger  *zap.Logger
	svc     *gmailapi.Service
}

// NewOAuthConfig returns the OAuth client configuration for the importer.
// The modify scope covers reading, relabeling and trashing threads.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmailapi.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}
}

// New creates a client. Nothing is contacted until Authorize.
func New(
	config *oauth2.Config,
	tokens TokenStore,
	account string,
	logger *zap.Logger,
) *Client {
	if account == "" {
		account = "me"
	}
	return &Client{
		config:  config,
		tokens:  tokens,
		account: account,
		logger:  logger,
	}
}

// NewWithService wraps an already authorized service.
func NewWithService(svc *gmailapi.Service, account string, logger *zap.Logger) *Client {
	c := New(nil, nil, account, logger)
	c.svc = svc
	return c
}

// Type returns the provider type identifier for Gmail.
func (c *Client) Type() source.ProviderType {
	return source.ProviderGmail
}

// Authorize loads the stored token and builds the API service. Refreshed
// tokens are written back to the token store.
func (c *Client) Authorize(ctx context.Context) error {
	if c.svc != nil {
		return nil
	}
	if c.config == nil || c.config.ClientID == "" {
		return &source.AuthError{
			Provider: source.ProviderGmail,
			Message:  "OAuth client is not configured",
		}
	}

	tok, err := c.tokens.Load()
	if err != nil {
		return &source.AuthError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("no usable token for %s: %v", c.account, err),
		}
	}

	ts := &persistingTokenSource{
		base:   c.config.TokenSource(ctx, tok),
		store:  c.tokens,
		last:   tok.AccessToken,
		logger: c.logger,
	}

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return fmt.Errorf("creating gmail service: %w", err)
	}
	c.svc = svc
	return nil
}

// Profile returns the account's e-mail address.
func (c *Client) Profile(ctx context.Context) (string, error) {
	svc, err := c.service()
	if err != nil {
		return "", err
	}

	profile, err := svc.Users.GetProfile(c.account).Context(ctx).Do()
	if err != nil {
		return "", wrapError(err, "getting profile")
	}
	return profile.EmailAddress, nil
}

// Labels lists all labels of the account.
func (c *Client) Labels(ctx context.Context) ([]source.Label, error) {
	svc, err := c.service()
	if err != nil {
		return nil, err
	}

	res, err := svc.Users.Labels.List(c.account).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "listing labels")
	}

	labels := make([]source.Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, source.Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// ListThreads pages through threads.list until max ids are collected or
// the listing ends.
func (c *Client) ListThreads(
	ctx context.Context, labelID string, max int64,
) ([]string, error) {
	svc, err := c.service()
	if err != nil {
		return nil, err
	}

	var (
		ids       []string
		pageToken string
	)
	for max <= 0 || int64(len(ids)) < max {
		pageSize := int64(maxPageSize)
		if max > 0 && max-int64(len(ids)) < pageSize {
			pageSize = max - int64(len(ids))
		}

		call := svc.Users.Threads.List(c.account).
			LabelIds(labelID).
			MaxResults(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, wrapError(err, "listing threads")
		}
		for _, t := range res.Threads {
			ids = append(ids, t.Id)
		}

		if res.NextPageToken == "" || len(res.Threads) == 0 {
			break
		}
		pageToken = res.NextPageToken
	}

	if max > 0 && int64(len(ids)) > max {
		ids = ids[:max]
	}
	return ids, nil
}

// GetThread fetches a thread in full format.
func (c *Client) GetThread(ctx context.Context, id string) (*source.Thread, error) {
	svc, err := c.service()
	if err != nil {
		return nil, err
	}

	res, err := svc.Users.Threads.Get(c.account, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("getting thread %s", id))
	}

	thread, err := convertThread(res)
	if err != nil {
		return nil, fmt.Errorf("converting thread %s: %w", id, err)
	}
	return thread, nil
}

// GetAttachment downloads and decodes an attachment.
func (c *Client) GetAttachment(
	ctx context.Context, messageID, attachmentID string,
) ([]byte, error) {
	svc, err := c.service()
	if err != nil {
		return nil, err
	}

	body, err := svc.Users.Messages.Attachments.Get(c.account, messageID, attachmentID).
		Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, fmt.Sprintf("getting attachment of message %s", messageID))
	}

	data, err := decodeData(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding attachment of message %s: %w", messageID, err)
	}
	return data, nil
}

// ModifyThreadLabels adds and removes labels on a thread.
func (c *Client) ModifyThreadLabels(
	ctx context.Context, id string, add, remove []string,
) error {
	svc, err := c.service()
	if err != nil {
		return err
	}

	req := &gmailapi.ModifyThreadRequest{
		AddLabelIds:    nonEmpty(add),
		RemoveLabelIds: nonEmpty(remove),
	}
	if len(req.AddLabelIds) == 0 && len(req.RemoveLabelIds) == 0 {
		return nil
	}

	if _, err := svc.Users.Threads.Modify(c.account, id, req).Context(ctx).Do(); err != nil {
		return wrapError(err, fmt.Sprintf("modifying labels of thread %s", id))
	}
	return nil
}

// TrashThread moves a thread to the trash.
func (c *Client) TrashThread(ctx context.Context, id string) error {
	svc, err := c.service()
	if err != nil {
		return err
	}

	if _, err := svc.Users.Threads.Trash(c.account, id).Context(ctx).Do(); err != nil {
		return wrapError(err, fmt.Sprintf("trashing thread %s", id))
	}
	return nil
}

// ThreadLink returns the Gmail web link of a thread.
func (c *Client) ThreadLink(id string) string {
	return threadLinkPrefix + id
}

func (c *Client) service() (*gmailapi.Service, error) {
	if c.svc == nil {
		return nil, &source.AuthError{
			Provider: source.ProviderGmail,
			Message:  "not authorized",
		}
	}
	return c.svc, nil
}

// wrapError turns rejected credentials into an AuthError and annotates
// everything else with the failed operation.
func wrapError(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, &source.AuthError{
			Provider: source.ProviderGmail,
			Message:  apiErr.Message,
		})
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%s: %w", op, &source.AuthError{
			Provider: source.ProviderGmail,
			Message:  fmt.Sprintf("refreshing token: %v", retrieveErr),
		})
	}

	return fmt.Errorf("%s: %w", op, err)
}

func nonEmpty(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// persistingTokenSource saves every newly minted token so refreshes
// survive between runs.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  TokenStore
	last   string
	logger *zap.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(tok); err != nil {
			s.logger.Warn("saving refreshed token failed", zap.Error(err))
		}
	}
	return tok, nil
}
