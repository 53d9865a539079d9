// Command mailnote imports labeled mail threads into a Markdown vault.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/logging"
	"github.com/nhle/mailnote/internal/model"
)

// app carries what every subcommand needs.
type app struct {
	configPath string
	cfg        *model.AppConfig
	logger     *zap.Logger
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"fetch":   {"import the threads under the source label", runFetch},
	"labels":  {"list the labels of the account", runLabels},
	"account": {"show the authorized account", runAccount},
	"setup":   {"configure the provider, labels and vault", runSetup},
	"history": {"show past runs and imported threads", runHistory},
	"watch":   {"fetch on an interval until interrupted", runWatch},
	"logout":  {"remove the stored credential", runLogout},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mailnote: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("mailnote", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	configPath := fs.StringP("config", "c", model.DefaultConfigPath(), "configuration file")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if fs.NArg() == 0 {
		usage(fs)
		return errors.New("missing command")
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		usage(fs)
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{configPath: *configPath, cfg: cfg, logger: logger.With(zap.String("command", name))}
	if err := cmd.run(ctx, a, fs.Args()[1:]); err != nil {
		a.logger.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}

func usage(fs *pflag.FlagSet) {
	var b strings.Builder
	b.WriteString("Usage: mailnote [--config FILE] <command> [flags]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %-8s %s\n", name, commands[name].summary)
	}
	b.WriteString("\nFlags:\n")
	b.WriteString(fs.FlagUsages())
	fmt.Fprint(os.Stderr, b.String())
}
