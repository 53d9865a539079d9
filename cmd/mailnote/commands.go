package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/mailnote/internal/credential"
	"github.com/nhle/mailnote/internal/model"
	"github.com/nhle/mailnote/internal/notify"
	"github.com/nhle/mailnote/internal/source"
	"github.com/nhle/mailnote/internal/theme"
	"github.com/nhle/mailnote/internal/ui/setup"
)

const timeLayout = "2006-01-02 15:04"

// authorized builds the provider and authorizes it, printing the setup hint
// when credentials are missing.
func authorized(ctx context.Context, a *app) (source.Provider, error) {
	provider, err := buildProvider(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if err := provider.Authorize(ctx); err != nil {
		if source.IsAuthError(err) {
			fmt.Fprintln(os.Stderr, theme.WarningStyle.Render(notify.MsgSetupRequired))
		}
		return nil, err
	}
	return provider, nil
}

func runLabels(ctx context.Context, a *app, _ []string) error {
	provider, err := authorized(ctx, a)
	if err != nil {
		return err
	}
	labels, err := provider.Labels(ctx)
	if err != nil {
		return err
	}
	sort.Slice(labels, func(i, j int) bool {
		return strings.ToLower(labels[i].Name) < strings.ToLower(labels[j].Name)
	})

	rows := make([][]string, 0, len(labels))
	for _, l := range labels {
		marker := ""
		switch {
		case l.ID == a.cfg.FromLabel || l.Name == a.cfg.FromLabel:
			marker = "from"
		case a.cfg.ToLabel != "" && (l.ID == a.cfg.ToLabel || l.Name == a.cfg.ToLabel):
			marker = "to"
		}
		rows = append(rows, []string{l.Name, l.ID, marker})
	}
	fmt.Println(renderTable([]string{"NAME", "ID", ""}, rows, nil))
	return nil
}

func runAccount(ctx context.Context, a *app, _ []string) error {
	provider, err := authorized(ctx, a)
	if err != nil {
		return err
	}
	address, err := provider.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", address, provider.Type())
	return nil
}

func runSetup(ctx context.Context, a *app, _ []string) error {
	err := setup.Run(ctx, a.configPath, a.cfg, a.logger)
	if errors.Is(err, setup.ErrAborted) {
		fmt.Fprintln(os.Stderr, "Setup cancelled; nothing was changed.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(theme.SuccessStyle.Render("Saved " + a.configPath))
	return nil
}

// runLogout forgets the stored credential of the configured provider.
func runLogout(_ context.Context, a *app, _ []string) error {
	var key string
	switch a.cfg.Provider {
	case model.ProviderGmail:
		key = credential.GmailTokenKey(a.cfg.Account)
	case model.ProviderIMAP:
		key = credential.IMAPPasswordKey(a.cfg.IMAP.Username)
	default:
		return fmt.Errorf("unknown provider %q", a.cfg.Provider)
	}

	if err := credential.Delete(key); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			fmt.Println("No stored credential.")
			return nil
		}
		return err
	}
	a.logger.Info("credential removed", zap.String("key", key))
	fmt.Println("Stored credential removed.")
	return nil
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	limit := fs.IntP("limit", "n", 20, "number of entries to show")
	runs := fs.Bool("runs", false, "show runs instead of imported threads")
	events := fs.Bool("notifications", false, "show notifications instead of imported threads")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ledger, err := openLedger(a.cfg)
	if err != nil {
		return err
	}
	if ledger == nil {
		return errors.New("history is disabled: history_db is empty")
	}
	defer ledger.Close()

	switch {
	case *runs:
		list, err := ledger.GetRuns(ctx, *limit)
		if err != nil {
			return err
		}
		fmt.Println(runsTable(list))
	case *events:
		list, err := ledger.GetNotifications(ctx, *limit)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, n := range list {
			rows = append(rows, []string{n.CreatedAt.Local().Format(timeLayout), n.Provider, n.Message})
		}
		fmt.Println(renderTable([]string{"TIME", "PROVIDER", "MESSAGE"}, rows, nil))
	default:
		list, err := ledger.GetImports(ctx, *limit)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(list))
		for _, rec := range list {
			rows = append(rows, []string{
				rec.ImportedAt.Local().Format(timeLayout),
				rec.Subject,
				rec.NotePath,
				strconv.Itoa(len(rec.Attachments)),
			})
		}
		fmt.Println(renderTable([]string{"IMPORTED", "SUBJECT", "NOTE", "FILES"}, rows, nil))
	}
	return nil
}

func runsTable(runs []model.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format(timeLayout),
			r.Provider,
			r.FromLabel,
			string(r.Status),
			fmt.Sprintf("%d/%d", r.Fetched, r.Available),
			r.Error,
		})
	}
	const statusCol = 3
	return renderTable(
		[]string{"STARTED", "PROVIDER", "LABEL", "STATUS", "FETCHED", "ERROR"},
		rows,
		func(row, col int) (lipgloss.Style, bool) {
			if col != statusCol {
				return lipgloss.Style{}, false
			}
			return theme.RunStatusStyle(rows[row][statusCol]), true
		},
	)
}

// cellStyle overrides the style of a body cell when it returns true.
type cellStyle func(row, col int) (lipgloss.Style, bool)

func renderTable(headers []string, rows [][]string, style cellStyle) string {
	if len(rows) == 0 {
		return theme.NoticeStyle.Render("No entries.")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorGray)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.TableHeaderStyle
			}
			if style != nil {
				if s, ok := style(row, col); ok {
					return s.Padding(0, 1)
				}
			}
			return theme.TableCellStyle
		})
	return t.String()
}
