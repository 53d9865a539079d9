// Package notify fans fetch status messages out to the log, the ledger and
// the terminal.
package notify

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/model"
)

// Status lines shown to the user.
const (
	MsgFetchStarting = "Fetch starting"
	MsgUpToDate      = "Your inbox is up to date"
	MsgSetupRequired = "Please set up authorization first"
)

// Kind classifies an event for consumers that render them differently.
type Kind int

const (
	KindInfo Kind = iota
	KindProgress
	KindSetupRequired
	KindError
)

// Event is one user-visible status update.
type Event struct {
	Kind    Kind
	Message string

	// Percent is set on progress events.
	Percent int

	// RunID is the ledger id of the emitting run, if any.
	RunID string
	Time  time.Time
}

// Info returns a plain status event.
func Info(msg string) Event {
	return Event{Kind: KindInfo, Message: msg}
}

// Progress returns the "N% fetched" event.
func Progress(percent int) Event {
	return Event{
		Kind:    KindProgress,
		Message: fmt.Sprintf("%d%% fetched", percent),
		Percent: percent,
	}
}

// Fetched returns the "N mails fetched." event.
func Fetched(n int) Event {
	return Info(fmt.Sprintf("%d mails fetched.", n))
}

// Remaining returns the "There are K mails not fetched." event.
func Remaining(k int) Event {
	return Info(fmt.Sprintf("There are %d mails not fetched.", k))
}

// SetupRequired returns the event emitted when authorization is missing.
func SetupRequired() Event {
	return Event{Kind: KindSetupRequired, Message: MsgSetupRequired}
}

// Failed returns the event emitted when a run aborts.
func Failed(err error) Event {
	return Event{Kind: KindError, Message: fmt.Sprintf("Fetch failed: %v", err)}
}

// Notifier receives status events. Delivery failures are the notifier's
// own concern and never interrupt a run.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, e Event)

// Notify calls f.
func (f Func) Notify(ctx context.Context, e Event) { f(ctx, e) }

type multi []Notifier

// Multi delivers every event to each notifier in order. Nil entries are
// skipped.
func Multi(notifiers ...Notifier) Notifier {
	var m multi
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}

func (m multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// LogNotifier writes events to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier logging at info level, or error level
// for failures.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) {
	fields := []zap.Field{zap.String("message", e.Message)}
	if e.RunID != "" {
		fields = append(fields, zap.String("run_id", e.RunID))
	}

	switch e.Kind {
	case KindError:
		n.logger.Error("notification", fields...)
	case KindSetupRequired:
		n.logger.Warn("notification", fields...)
	default:
		n.logger.Info("notification", fields...)
	}
}

// NotificationStore is the part of the ledger that keeps notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n model.Notification) error
}

// StoreNotifier persists events in the ledger.
type StoreNotifier struct {
	store    NotificationStore
	provider string
	logger   *zap.Logger
}

// NewStoreNotifier creates a notifier writing to store.
func NewStoreNotifier(store NotificationStore, provider string, logger *zap.Logger) *StoreNotifier {
	return &StoreNotifier{store: store, provider: provider, logger: logger}
}

func (n *StoreNotifier) Notify(ctx context.Context, e Event) {
	created := e.Time
	if created.IsZero() {
		created = time.Now()
	}

	err := n.store.CreateNotification(ctx, model.Notification{
		RunID:     e.RunID,
		Provider:  n.provider,
		Message:   e.Message,
		CreatedAt: created,
	})
	if err != nil {
		n.logger.Warn("persisting notification failed",
			zap.String("message", e.Message), zap.Error(err))
	}
}

// WriterNotifier prints one line per event.
type WriterNotifier struct {
	w io.Writer
}

// NewWriterNotifier creates a notifier printing to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(_ context.Context, e Event) {
	fmt.Fprintln(n.w, e.Message)
}
