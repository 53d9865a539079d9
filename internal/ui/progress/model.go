// Package progress is the terminal view of a running fetch: a spinner,
// a percentage bar and the latest status lines.
package progress

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailnote/internal/fetch"
	"github.com/nhle/mailnote/internal/keys"
	"github.com/nhle/mailnote/internal/notify"
	"github.com/nhle/mailnote/internal/theme"
)

// maxNotices is the number of status lines kept on screen.
const maxNotices = 6

const barWidth = 30

// EventMsg is a tea.Msg carrying a notification from the fetcher.
type EventMsg notify.Event

// DoneMsg is a tea.Msg sent when the run returns.
type DoneMsg struct {
	Summary fetch.Summary
	Err     error
}

// RunFunc performs the fetch.
type RunFunc func(ctx context.Context) (fetch.Summary, error)

// Model is the Bubble Tea model for the fetch progress view.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	run    RunFunc

	title      string
	spinner    spinner.Model
	help       help.Model
	keys       *keys.KeyMap
	percent    int
	notices    []string
	setup      bool
	cancelling bool

	done    bool
	summary fetch.Summary
	err     error

	width int
}

// New creates a progress view that starts run when the program starts.
// Cancelling the view cancels the context passed to run.
func New(parent context.Context, title string, run RunFunc, k *keys.KeyMap) Model {
	ctx, cancel := context.WithCancel(parent)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		ctx:     ctx,
		cancel:  cancel,
		run:     run,
		title:   title,
		spinner: sp,
		help:    help.New(),
		keys:    k,
		width:   80,
	}
}

// Init starts the spinner and the run.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

func (m Model) start() tea.Cmd {
	ctx, run, cancel := m.ctx, m.run, m.cancel
	return func() tea.Msg {
		defer cancel()
		summary, err := run(ctx)
		return DoneMsg{Summary: summary, Err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case EventMsg:
		m.notices = append(m.notices, msg.Message)
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
		switch msg.Kind {
		case notify.KindProgress:
			m.percent = msg.Percent
		case notify.KindSetupRequired:
			m.setup = true
		}
		return m, nil

	case DoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		if msg.Err == nil && msg.Summary.Fetched > 0 {
			m.percent = 100
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	return m, nil
}

// View renders the progress view.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(theme.HeaderStyle.Render(m.title))
	b.WriteString("\n\n")

	status := m.spinner.View() + " working"
	switch {
	case m.done && m.err != nil && m.setup:
		status = theme.WarningStyle.Render("Setup required: run `mailnote setup`")
	case m.done && m.err != nil:
		status = theme.ErrorStyle.Render("Failed: " + m.err.Error())
	case m.done:
		status = theme.SuccessStyle.Render(fmt.Sprintf(
			"%d imported, %d remaining", m.summary.Fetched, m.summary.Remaining))
	case m.cancelling:
		status = m.spinner.View() + " cancelling after the current thread"
	}
	b.WriteString(status)
	b.WriteString("\n")
	b.WriteString(Bar(m.percent, barWidth))
	b.WriteString("\n\n")

	for _, n := range m.notices {
		b.WriteString(theme.NoticeStyle.Render(n))
		b.WriteString("\n")
	}

	if !m.done {
		b.WriteString("\n")
		b.WriteString(m.help.View(m.keys))
	}

	return b.String() + "\n"
}

// Result returns the outcome once the program has exited.
func (m Model) Result() (fetch.Summary, error) {
	return m.summary, m.err
}

// Bar renders a percentage bar of width cells followed by the percentage.
func Bar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := width * percent / 100

	return theme.BarFilledStyle.Render(strings.Repeat("█", filled)) +
		theme.BarEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %3d%%", percent)
}

// Notifier forwards fetch notifications to a running program.
type Notifier struct {
	mu   gosync.Mutex
	send func(tea.Msg)
}

// NewNotifier creates a notifier that drops events until attached.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Attach routes events to send, typically (*tea.Program).Send.
func (n *Notifier) Attach(send func(tea.Msg)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.send = send
}

func (n *Notifier) Notify(_ context.Context, e notify.Event) {
	n.mu.Lock()
	send := n.send
	n.mu.Unlock()

	if send != nil {
		send(EventMsg(e))
	}
}
