// Package email implements source.Provider over IMAP. Mailboxes play the
// role of labels and every message is a thread of its own.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/source"
)

// Config holds the IMAP server settings.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool

	// Trash is the mailbox trashed messages are moved to.
	Trash string

	// TLSConfig overrides the TLS settings of the connection. Nil uses the
	// system roots.
	TLSConfig *tls.Config
}

// archiveFolders are tried in order when a message loses its only mailbox.
var archiveFolders = []string{
	"Archive", "[Gmail]/All Mail", "Archives", "INBOX.Archive",
}

// IMAPClient wraps go-imap v2. Every operation opens its own session.
//
// Moving a message out of its mailbox gives it a new uid, so the client
// remembers where each moved thread went and later operations on the
// original id follow it there.
type IMAPClient struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	moved map[string]location
}

// location is where a message lives. A zero uid means the server did not
// report it and the message has to be found by its Message-ID.
type location struct {
	mailbox   string
	uid       imap.UID
	messageID string
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(cfg Config, logger *zap.Logger) *IMAPClient {
	return &IMAPClient{cfg: cfg, logger: logger, moved: make(map[string]location)}
}

// Type returns the provider type identifier for IMAP.
func (c *IMAPClient) Type() source.ProviderType {
	return source.ProviderIMAP
}

// connect establishes a connection to the IMAP server and authenticates.
// The caller is responsible for calling Logout on the returned client.
func (c *IMAPClient) connect(_ context.Context) (*imapclient.Client, error) {
	if c.cfg.Host == "" || c.cfg.Username == "" || c.cfg.Password == "" {
		return nil, &source.AuthError{
			Provider: source.ProviderIMAP,
			Message:  "IMAP account is not configured",
		}
	}

	addr := c.cfg.Host + ":" + c.cfg.Port

	var client *imapclient.Client
	var err error

	opts := &imapclient.Options{TLSConfig: c.cfg.TLSConfig}
	if c.cfg.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Provider: source.ProviderIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.cfg.Username, err,
			),
		}
	}

	return client, nil
}

// withMailbox runs fn on a session with mailbox selected.
func (c *IMAPClient) withMailbox(
	ctx context.Context,
	mailbox string,
	readOnly bool,
	fn func(*imapclient.Client) error,
) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	opts := &imap.SelectOptions{ReadOnly: readOnly}
	if _, err := client.Select(mailbox, opts).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}
	return fn(client)
}

// Authorize verifies the credentials by logging in once.
func (c *IMAPClient) Authorize(ctx context.Context) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	_ = client.Logout().Wait()
	return nil
}

// Profile returns the login name.
func (c *IMAPClient) Profile(_ context.Context) (string, error) {
	return c.cfg.Username, nil
}

// Labels lists the selectable mailboxes. Id and name are both the mailbox
// name.
func (c *IMAPClient) Labels(ctx context.Context) ([]source.Label, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	boxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	labels := make([]source.Label, 0, len(boxes))
	for _, box := range boxes {
		if slices.Contains(box.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		labels = append(labels, source.Label{ID: box.Mailbox, Name: box.Mailbox})
	}
	return labels, nil
}

// ListThreads returns the newest max messages of the mailbox, newest
// first, as thread ids.
func (c *IMAPClient) ListThreads(
	ctx context.Context, mailbox string, max int64,
) ([]string, error) {
	var ids []string
	err := c.withMailbox(ctx, mailbox, true, func(client *imapclient.Client) error {
		searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return fmt.Errorf("searching %s: %w", mailbox, err)
		}

		uids := searchData.AllUIDs()
		slices.Reverse(uids)
		if max > 0 && int64(len(uids)) > max {
			uids = uids[:max]
		}
		for _, uid := range uids {
			ids = append(ids, threadID(mailbox, uid))
		}
		return nil
	})
	return ids, err
}

// GetThread fetches the full message behind a thread id.
func (c *IMAPClient) GetThread(ctx context.Context, id string) (*source.Thread, error) {
	mailbox, uid, err := splitThreadID(id)
	if err != nil {
		return nil, err
	}

	var thread *source.Thread
	err = c.withMailbox(ctx, mailbox, true, func(client *imapclient.Client) error {
		bodySection := &imap.FetchItemBodySection{Peek: true}
		fetchOpts := &imap.FetchOptions{
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{bodySection},
		}

		bufs, err := client.Fetch(imap.UIDSetNum(uid), fetchOpts).Collect()
		if err != nil {
			return fmt.Errorf("fetching message %s: %w", id, err)
		}
		if len(bufs) == 0 {
			return fmt.Errorf("message %s not found", id)
		}

		raw := bufs[0].FindBodySection(bodySection)
		headers, payload, err := parseMessage(raw)
		if err != nil {
			return fmt.Errorf("parsing message %s: %w", id, err)
		}

		thread = &source.Thread{
			ID: id,
			Messages: []source.Message{{
				ID:       id,
				LabelIDs: []string{mailbox},
				Headers:  headers,
				Payload:  payload,
			}},
		}
		return nil
	})
	return thread, err
}

// GetAttachment is never needed over IMAP: attachment bodies arrive with
// the message.
func (c *IMAPClient) GetAttachment(
	_ context.Context, messageID, _ string,
) ([]byte, error) {
	return nil, fmt.Errorf("message %s: attachments are delivered inline over IMAP", messageID)
}

// ModifyThreadLabels copies the message into every added mailbox. When
// its current mailbox is removed the message is moved rather than copied,
// falling back to an archive folder if nothing is added.
func (c *IMAPClient) ModifyThreadLabels(
	ctx context.Context, id string, add, remove []string,
) error {
	loc, err := c.locate(id)
	if err != nil {
		return err
	}

	var targets []string
	for _, box := range add {
		if box != "" && box != loc.mailbox {
			targets = append(targets, box)
		}
	}
	leave := slices.Contains(remove, loc.mailbox)
	if len(targets) == 0 && !leave {
		return nil
	}

	return c.withMailbox(ctx, loc.mailbox, false, func(client *imapclient.Client) error {
		uid, err := loc.resolve(client)
		if err != nil {
			return err
		}
		uidSet := imap.UIDSetNum(uid)

		if !leave {
			for _, box := range targets {
				if _, err := client.Copy(uidSet, box).Wait(); err != nil {
					return fmt.Errorf("copying %s to %s: %w", id, box, err)
				}
			}
			return nil
		}

		msgID := loc.messageID
		if msgID == "" {
			msgID = fetchMessageID(client, uidSet)
		}

		if len(targets) == 0 {
			return c.archive(client, id, uidSet, msgID)
		}

		for _, box := range targets[1:] {
			if _, err := client.Copy(uidSet, box).Wait(); err != nil {
				return fmt.Errorf("copying %s to %s: %w", id, box, err)
			}
		}
		data, err := client.Move(uidSet, targets[0]).Wait()
		if err != nil {
			return fmt.Errorf("moving %s to %s: %w", id, targets[0], err)
		}
		c.recordMove(id, targets[0], data, msgID)
		return nil
	})
}

// archive moves the message to the first archive folder the server
// accepts, falling back to marking it deleted.
func (c *IMAPClient) archive(
	client *imapclient.Client, id string, uidSet imap.UIDSet, msgID string,
) error {
	for _, folder := range archiveFolders {
		data, err := client.Move(uidSet, folder).Wait()
		if err == nil {
			c.recordMove(id, folder, data, msgID)
			return nil
		}
	}
	c.logger.Warn("no archive folder accepted the message, flagging as deleted",
		zap.String("thread", id))
	return markDeleted(client, uidSet)
}

// TrashThread moves the message to the trash mailbox, falling back to the
// \Deleted flag. A thread moved by ModifyThreadLabels is trashed from its
// new mailbox.
func (c *IMAPClient) TrashThread(ctx context.Context, id string) error {
	loc, err := c.locate(id)
	if err != nil {
		return err
	}

	err = c.withMailbox(ctx, loc.mailbox, false, func(client *imapclient.Client) error {
		uid, err := loc.resolve(client)
		if err != nil {
			return err
		}
		uidSet := imap.UIDSetNum(uid)
		if c.cfg.Trash != "" && c.cfg.Trash != loc.mailbox {
			_, err := client.Move(uidSet, c.cfg.Trash).Wait()
			if err == nil {
				return nil
			}
			c.logger.Warn("moving to trash failed, flagging as deleted",
				zap.String("thread", id), zap.Error(err))
		}
		return markDeleted(client, uidSet)
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.moved, id)
	c.mu.Unlock()
	return nil
}

// locate returns where the thread currently lives.
func (c *IMAPClient) locate(id string) (location, error) {
	c.mu.Lock()
	loc, ok := c.moved[id]
	c.mu.Unlock()
	if ok {
		return loc, nil
	}

	mailbox, uid, err := splitThreadID(id)
	if err != nil {
		return location{}, err
	}
	return location{mailbox: mailbox, uid: uid}, nil
}

// recordMove remembers the new location of a moved thread. The uid comes
// from the COPYUID response when the server supports UIDPLUS.
func (c *IMAPClient) recordMove(
	id, mailbox string, data *imapclient.MoveData, msgID string,
) {
	loc := location{mailbox: mailbox, messageID: msgID}
	if data != nil {
		if dest, ok := data.DestUIDs.(imap.UIDSet); ok {
			if uids, ok := dest.Nums(); ok && len(uids) == 1 {
				loc.uid = uids[0]
			}
		}
	}
	if loc.uid == 0 && msgID == "" {
		c.logger.Warn("moved message cannot be located again",
			zap.String("thread", id), zap.String("mailbox", mailbox))
	}

	c.mu.Lock()
	c.moved[id] = loc
	c.mu.Unlock()
}

// resolve returns the uid of the message in the selected mailbox.
func (l location) resolve(client *imapclient.Client) (imap.UID, error) {
	if l.uid != 0 {
		return l.uid, nil
	}
	if l.messageID == "" {
		return 0, fmt.Errorf("message moved to %s has no known uid", l.mailbox)
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "Message-ID", Value: l.messageID}},
	}
	data, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("searching %s for %s: %w", l.mailbox, l.messageID, err)
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return 0, fmt.Errorf("message %s not found in %s", l.messageID, l.mailbox)
	}
	return uids[len(uids)-1], nil
}

// fetchMessageID reads the Message-ID of a message, or "" when it has none.
func fetchMessageID(client *imapclient.Client, uidSet imap.UIDSet) string {
	bufs, err := client.Fetch(uidSet, &imap.FetchOptions{Envelope: true}).Collect()
	if err != nil || len(bufs) == 0 || bufs[0].Envelope == nil {
		return ""
	}
	return bufs[0].Envelope.MessageID
}

func markDeleted(client *imapclient.Client, uidSet imap.UIDSet) error {
	storeCmd := client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging message deleted: %w", err)
	}
	return nil
}

// ThreadLink returns an RFC 5092 IMAP URL for the message.
func (c *IMAPClient) ThreadLink(id string) string {
	mailbox, uid, err := splitThreadID(id)
	if err != nil {
		return ""
	}
	u := url.URL{
		Scheme: "imap",
		User:   url.User(c.cfg.Username),
		Host:   c.cfg.Host,
		Path:   "/" + mailbox + ";UID=" + strconv.FormatUint(uint64(uid), 10),
	}
	return u.String()
}

func threadID(mailbox string, uid imap.UID) string {
	return mailbox + ":" + strconv.FormatUint(uint64(uid), 10)
}

// splitThreadID reverses threadID. Mailbox names may contain colons, so
// the uid is taken from the last one.
func splitThreadID(id string) (string, imap.UID, error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid thread id %q", id)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil || uid == 0 {
		return "", 0, fmt.Errorf("invalid uid in thread id %q", id)
	}
	return id[:i], imap.UID(uid), nil
}
