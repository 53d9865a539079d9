package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mailnote/internal/mailpart"
)

// AuthError indicates that authorization is missing, expired or was
// rejected by the provider.
type AuthError struct {
	Provider ProviderType
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ProviderType identifies the kind of mail provider.
type ProviderType string

const (
	ProviderGmail ProviderType = "gmail"
	ProviderIMAP  ProviderType = "imap"
)

// Label is a provider-side tag. ID is opaque; Name is shown to users.
type Label struct {
	ID   string
	Name string
}

// Message is one message of a thread, with its body as a part tree.
type Message struct {
	ID       string
	LabelIDs []string
	Headers  []mailpart.Header

	// Payload is the root of the body tree.
	Payload mailpart.Part
}

// Thread is an ordered group of related messages, oldest first.
type Thread struct {
	ID       string
	Messages []Message
}

// Provider defines the mail provider operations the importer consumes.
type Provider interface {
	// Type returns the provider type identifier.
	Type() ProviderType

	// Authorize prepares an authorized session. It returns an *AuthError
	// when no credentials are configured or they are rejected.
	Authorize(ctx context.Context) error

	// Profile returns the authorized account's address.
	Profile(ctx context.Context) (string, error)

	// Labels lists every label of the account.
	Labels(ctx context.Context) ([]Label, error)

	// ListThreads returns up to max thread ids carrying labelID, in the
	// provider's listing order.
	ListThreads(ctx context.Context, labelID string, max int64) ([]string, error)

	// GetThread retrieves a thread with full message payloads.
	GetThread(ctx context.Context, id string) (*Thread, error)

	// GetAttachment retrieves the decoded content of an attachment.
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)

	// ModifyThreadLabels adds and removes labels on every message of a thread.
	ModifyThreadLabels(ctx context.Context, id string, add, remove []string) error

	// TrashThread moves a thread to the trash.
	TrashThread(ctx context.Context, id string) error

	// ThreadLink returns a link to the thread in the provider's web UI,
	// or "" when there is none.
	ThreadLink(id string) string
}

// LabelNames maps label ids to display names.
func LabelNames(labels []Label) map[string]string {
	names := make(map[string]string, len(labels))
	for _, l := range labels {
		names[l.ID] = l.Name
	}
	return names
}

// ResolveLabelID returns the id of the label whose id or name equals
// nameOrID. Ids win over names. It returns "" when nothing matches.
func ResolveLabelID(labels []Label, nameOrID string) string {
	if nameOrID == "" {
		return ""
	}
	for _, l := range labels {
		if l.ID == nameOrID {
			return l.ID
		}
	}
	for _, l := range labels {
		if l.Name == nameOrID {
			return l.ID
		}
	}
	return ""
}
