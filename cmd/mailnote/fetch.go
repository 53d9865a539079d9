package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/fetch"
	"github.com/nhle/mailnote/internal/keys"
	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/internal/notify"
	"github.com/nhle/mailnote/internal/ui/progress"
	"github.com/nhle/mailnote/internal/vault"
)

func runFetch(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	plain := fs.Bool("plain", false, "print notifications as lines instead of the progress view")
	amount := fs.IntP("amount", "n", 0, "override fetch_amount for this run")
	from := fs.String("from", "", "override from_label for this run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := *a.cfg
	if *amount > 0 {
		cfg.FetchAmount = *amount
	}
	if *from != "" {
		cfg.FromLabel = *from
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	interactive := !*plain && isatty.IsTerminal(os.Stdout.Fd())
	var ui *progress.Notifier
	var out notify.Notifier
	if interactive {
		ui = progress.NewNotifier()
		out = ui
	} else {
		out = notify.NewWriterNotifier(os.Stdout)
	}

	f, closeLedger, err := newFetcher(&cfg, a.logger, out)
	if err != nil {
		return err
	}
	defer closeLedger()

	var summary fetch.Summary
	if interactive {
		summary, err = runProgram(ctx, f, ui)
	} else {
		summary, err = f.Run(ctx)
	}
	if err != nil {
		return err
	}

	a.logger.Info("fetch finished",
		zap.String("run_id", summary.RunID),
		zap.Int("fetched", summary.Fetched),
		zap.Int("remaining", summary.Remaining),
	)
	return nil
}

// newFetcher wires the provider, the vault and the ledger into a Fetcher
// that reports to out as well as to the log and the ledger.
func newFetcher(cfg *model.AppConfig, logger *zap.Logger, out notify.Notifier) (*fetch.Fetcher, func(), error) {
	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	v, err := vault.Open(cfg.VaultPath)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := openLedger(cfg)
	if err != nil {
		return nil, nil, err
	}

	notifiers := []notify.Notifier{notify.NewLogNotifier(logger), out}
	closeLedger := func() {}
	if ledger != nil {
		notifiers = append(notifiers, notify.NewStoreNotifier(ledger, cfg.Provider, logger))
		closeLedger = func() {
			if err := ledger.Close(); err != nil {
				logger.Warn("closing history database failed", zap.Error(err))
			}
		}
	}

	f := fetch.New(provider, v, notify.Multi(notifiers...), logger.Named("fetch"), fetchOptions(cfg))
	if ledger != nil {
		f.SetLedger(ledger)
	}
	return f, closeLedger, nil
}

func runProgram(ctx context.Context, f *fetch.Fetcher, ui *progress.Notifier) (fetch.Summary, error) {
	m := progress.New(ctx, "mailnote fetch", f.Run, keys.DefaultKeyMap())
	p := tea.NewProgram(m)
	ui.Attach(p.Send)

	final, err := p.Run()
	if err != nil {
		return fetch.Summary{}, fmt.Errorf("running progress view: %w", err)
	}
	return final.(progress.Model).Result()
}

func fetchOptions(cfg *model.AppConfig) fetch.Options {
	return fetch.Options{
		FromLabel:        cfg.FromLabel,
		ToLabel:          cfg.ToLabel,
		MailFolder:       cfg.MailFolder,
		AttachmentFolder: cfg.AttachmentFolder,
		FetchAmount:      cfg.FetchAmount,
		DestroyOnFetch:   cfg.DestroyOnFetch,
		FetchAttachment:  cfg.FetchAttachment,
		TemplatePath:     cfg.Template,
		NoteName:         cfg.NoteName,
	}
}
