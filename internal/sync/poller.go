// Package sync runs imports repeatedly on an interval.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/fetch"
	"github.com/nhle/mailnote/internal/source"
)

// SyncState represents the current state of the poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// SyncStatus is a snapshot of the poller.
type SyncStatus struct {
	State SyncState

	// LastSync is when the last successful run finished.
	LastSync time.Time
	Last     fetch.Summary
	Error    error

	// Runs counts attempted runs, failed ones included.
	Runs int
}

// Runner performs one import. *fetch.Fetcher implements it.
type Runner interface {
	Run(ctx context.Context) (fetch.Summary, error)
}

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 10 * time.Minute

// Poller runs an import immediately and then on every tick, or earlier
// when triggered. Runs never overlap.
type Poller struct {
	runner   Runner
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	triggerCh chan struct{}

	mu     gosync.Mutex
	status SyncStatus
}

// New creates a Poller. A positive timeout bounds each run.
func New(runner Runner, interval, timeout time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		runner:    runner,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
	}
}

// Run polls until ctx is done, which is reported as a nil error. It stops
// early with the error when authorization is missing, since no later run
// can succeed until setup is done again.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.fetchOnce(ctx); source.IsAuthError(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.triggerCh:
			ticker.Reset(p.interval)
		}
	}
}

// Trigger asks for a run as soon as the current one, if any, is over.
// Triggers arriving while one is pending are merged.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the current status.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) fetchOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	p.setRunning()

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	summary, err := p.runner.Run(runCtx)
	p.finish(summary, err)

	switch {
	case err == nil:
		p.logger.Info("scheduled fetch finished",
			zap.Int("fetched", summary.Fetched),
			zap.Int("remaining", summary.Remaining),
			zap.Duration("next_in", p.interval),
		)
	case ctx.Err() != nil:
		p.logger.Info("scheduled fetch interrupted", zap.Error(err))
	default:
		p.logger.Warn("scheduled fetch failed", zap.Error(err))
	}
	return err
}

func (p *Poller) setRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = SyncRunning
	p.status.Runs++
}

func (p *Poller) finish(summary fetch.Summary, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Error = err
	if err != nil {
		p.status.State = SyncError
		return
	}
	p.status.State = SyncIdle
	p.status.Last = summary
	p.status.LastSync = time.Now()
}
