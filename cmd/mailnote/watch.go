package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/notify"
	"github.com/nhle/mailnote/internal/sync"
)

// runWatch fetches on an interval until interrupted. SIGHUP starts a run
// right away.
func runWatch(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	interval := fs.DurationP("interval", "i", a.cfg.WatchInterval, "pause between runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := *a.cfg
	cfg.WatchInterval = *interval
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	f, closeLedger, err := newFetcher(&cfg, a.logger, notify.NewWriterNotifier(os.Stdout))
	if err != nil {
		return err
	}
	defer closeLedger()

	poller := sync.New(f, cfg.WatchInterval, cfg.RunTimeout, a.logger.Named("watch"))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.logger.Info("fetch requested by signal")
				poller.Trigger()
			}
		}
	}()

	a.logger.Info("watching", zap.Duration("interval", cfg.WatchInterval))
	if err := poller.Run(ctx); err != nil {
		return err
	}

	st := poller.Status()
	a.logger.Info("watch stopped", zap.Int("runs", st.Runs), zap.Stringer("state", st.State))
	return nil
}
