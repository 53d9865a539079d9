// Package fetch imports labeled mail threads as notes. A Fetcher lists the
// threads under the source label, writes one note per thread into the
// vault and then moves the thread to the destination label.
package fetch

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/internal/note"
	"github.com/nhle/mailnote/internal/notify"
	"github.com/nhle/mailnote/internal/source"
	"github.com/nhle/mailnote/internal/vault"
)

// State is the position of a Fetcher in its run.
type State int

const (
	StateIdle State = iota
	StateAuthorizing
	StateListingThreads
	StateNoNewMail
	StateProcessingMessages
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthorizing:
		return "authorizing"
	case StateListingThreads:
		return "listing threads"
	case StateNoNewMail:
		return "no new mail"
	case StateProcessingMessages:
		return "processing messages"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultListLimit bounds the listing used to count available threads.
const DefaultListLimit = 500

// progressSteps is the number of progress notifications per run.
const progressSteps = 5

// Options are the per-run settings.
type Options struct {
	// FromLabel and ToLabel are label ids or display names. ToLabel may
	// be empty.
	FromLabel string
	ToLabel   string

	MailFolder       string
	AttachmentFolder string

	// FetchAmount caps the threads imported per run.
	FetchAmount int

	// ListLimit caps the listing; it is raised to FetchAmount if lower.
	ListLimit int

	DestroyOnFetch  bool
	FetchAttachment bool

	// TemplatePath is the vault path of the note template. Empty means
	// the default template.
	TemplatePath string

	// NoteName is the note name template, "${Subject}" when empty.
	NoteName string
}

// Ledger records runs and imported threads.
type Ledger interface {
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run model.Run) error
	RecordImport(ctx context.Context, rec model.ImportRecord) error
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID string

	// Available is the number of threads listed under the source label.
	Available int

	// Fetched is the number of threads imported.
	Fetched int

	// Remaining is the number of listed threads left for a later run.
	Remaining int

	// Notes are the vault paths of the created notes, in listing order.
	Notes []string
}

// Fetcher runs imports. It is not safe to call Run concurrently; State may
// be read from any goroutine.
type Fetcher struct {
	provider source.Provider
	vault    vault.Store
	notifier notify.Notifier
	ledger   Ledger
	logger   *zap.Logger
	opts     Options

	mu    gosync.Mutex
	state State
}

// New creates a Fetcher.
func New(
	provider source.Provider,
	store vault.Store,
	notifier notify.Notifier,
	logger *zap.Logger,
	opts Options,
) *Fetcher {
	if opts.NoteName == "" {
		opts.NoteName = note.Token(note.FieldSubject)
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = DefaultListLimit
	}
	if opts.ListLimit < opts.FetchAmount {
		opts.ListLimit = opts.FetchAmount
	}
	return &Fetcher{
		provider: provider,
		vault:    store,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// SetLedger enables run and import bookkeeping.
func (f *Fetcher) SetLedger(l Ledger) {
	f.ledger = l
}

// State returns the current state.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fetcher) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	f.logger.Debug("fetch state", zap.Stringer("state", s))
}

// run carries the values resolved once per run.
type run struct {
	record     model.Run
	fromID     string
	toID       string
	labelNames map[string]string
	template   note.Template
}

// Run performs one import. Missing authorization is reported through the
// notifier and returned as a *source.AuthError without starting the run.
// Any other error aborts the run; threads imported before it stay
// imported and relabeled.
func (f *Fetcher) Run(ctx context.Context) (Summary, error) {
	if f.opts.FetchAmount <= 0 {
		return Summary{}, fmt.Errorf("fetch amount must be positive, got %d", f.opts.FetchAmount)
	}

	f.setState(StateAuthorizing)
	if err := f.provider.Authorize(ctx); err != nil {
		if source.IsAuthError(err) {
			f.setState(StateIdle)
			f.notifier.Notify(ctx, notify.SetupRequired())
			return Summary{}, err
		}
		return Summary{}, f.fail(ctx, nil, fmt.Errorf("authorizing: %w", err))
	}

	r := &run{
		record: model.Run{
			Provider:  string(f.provider.Type()),
			FromLabel: f.opts.FromLabel,
			StartedAt: time.Now(),
			Status:    model.RunRunning,
		},
	}
	if f.ledger != nil {
		if err := f.ledger.CreateRun(ctx, &r.record); err != nil {
			return Summary{}, f.fail(ctx, nil, fmt.Errorf("recording run: %w", err))
		}
	}
	f.notify(ctx, r, notify.Info(notify.MsgFetchStarting))

	summary, err := f.run(ctx, r)
	if err != nil {
		return summary, f.fail(ctx, r, err)
	}

	f.finish(ctx, r)
	f.setState(StateDone)
	return summary, nil
}

func (f *Fetcher) run(ctx context.Context, r *run) (Summary, error) {
	summary := Summary{RunID: r.record.ID}

	if err := f.prepare(ctx, r); err != nil {
		return summary, err
	}

	f.setState(StateListingThreads)
	ids, err := f.provider.ListThreads(ctx, r.fromID, int64(f.opts.ListLimit))
	if err != nil {
		return summary, fmt.Errorf("listing threads: %w", err)
	}
	summary.Available = len(ids)
	r.record.Available = len(ids)

	if len(ids) == 0 {
		f.setState(StateNoNewMail)
		r.record.Status = model.RunUpToDate
		f.notify(ctx, r, notify.Info(notify.MsgUpToDate))
		return summary, nil
	}

	f.setState(StateProcessingMessages)
	total := min(len(ids), f.opts.FetchAmount)
	step := (total + progressSteps - 1) / progressSteps

	for _, id := range ids[:total] {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		notePath, err := f.importThread(ctx, r, id)
		if err != nil {
			return summary, fmt.Errorf("importing thread %s: %w", id, err)
		}
		summary.Notes = append(summary.Notes, notePath)
		summary.Fetched++
		r.record.Fetched = summary.Fetched

		if summary.Fetched < total && summary.Fetched%step == 0 {
			f.notify(ctx, r, notify.Progress(summary.Fetched*100/total))
		}
	}

	summary.Remaining = summary.Available - summary.Fetched
	f.notify(ctx, r, notify.Fetched(summary.Fetched))
	if summary.Remaining > 0 {
		f.notify(ctx, r, notify.Remaining(summary.Remaining))
	} else {
		f.notify(ctx, r, notify.Info(notify.MsgUpToDate))
	}
	r.record.Status = model.RunDone
	return summary, nil
}

// prepare resolves the labels and the template and creates the target
// folders.
func (f *Fetcher) prepare(ctx context.Context, r *run) error {
	labels, err := f.provider.Labels(ctx)
	if err != nil {
		return fmt.Errorf("loading labels: %w", err)
	}
	r.labelNames = source.LabelNames(labels)

	r.fromID = source.ResolveLabelID(labels, f.opts.FromLabel)
	if r.fromID == "" {
		return fmt.Errorf("source label %q not found", f.opts.FromLabel)
	}
	if f.opts.ToLabel != "" {
		r.toID = source.ResolveLabelID(labels, f.opts.ToLabel)
		if r.toID == "" {
			return fmt.Errorf("destination label %q not found", f.opts.ToLabel)
		}
	}

	if f.opts.TemplatePath == "" {
		r.template = note.ResolveTemplate("")
	} else {
		r.template, err = note.LoadTemplate(ctx, f.vault, f.opts.TemplatePath)
		if err != nil {
			return err
		}
	}
	for _, w := range r.template.Warnings {
		f.logger.Warn("template option ignored", zap.String("warning", w))
	}

	if err := vault.EnsureFolder(ctx, f.vault, f.opts.MailFolder); err != nil {
		return fmt.Errorf("creating mail folder: %w", err)
	}
	if f.opts.FetchAttachment {
		if err := vault.EnsureFolder(ctx, f.vault, f.opts.AttachmentFolder); err != nil {
			return fmt.Errorf("creating attachment folder: %w", err)
		}
	}
	return nil
}

// fail moves the fetcher to StateFailed and closes the run record.
func (f *Fetcher) fail(ctx context.Context, r *run, err error) error {
	ctx = context.WithoutCancel(ctx)
	f.setState(StateFailed)
	if r == nil {
		f.notifier.Notify(ctx, notify.Failed(err))
		return err
	}

	f.notify(ctx, r, notify.Failed(err))
	r.record.Status = model.RunFailed
	r.record.Error = err.Error()
	f.finish(ctx, r)
	return err
}

func (f *Fetcher) finish(ctx context.Context, r *run) {
	if f.ledger == nil {
		return
	}
	if err := f.ledger.FinishRun(ctx, r.record); err != nil {
		f.logger.Warn("recording run result failed",
			zap.String("run_id", r.record.ID), zap.Error(err))
	}
}

func (f *Fetcher) notify(ctx context.Context, r *run, e notify.Event) {
	e.RunID = r.record.ID
	e.Time = time.Now()
	f.notifier.Notify(ctx, e)
}
