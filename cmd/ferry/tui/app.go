package tui

import (
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
	"github.com/jamesainslie/ferry/pkg/ferry/session"
	"github.com/jamesainslie/ferry/pkg/ferry/transfer"
	"github.com/jamesainslie/ferry/pkg/ferry/types"
)

// CommandMsg carries a command decoded by the transport.
type CommandMsg protocol.Command

// TransportDoneMsg is sent when the transport stops reading.
type TransportDoneMsg struct {
	Err error
}

// SignalMsg forwards a process signal.
type SignalMsg struct {
	Signal os.Signal
}

type startMsg struct{}

// timerMsg runs a scheduled session callback.
type timerMsg struct {
	fn func()
}

type lineKind int

const (
	lineStatus lineKind = iota
	lineError
)

type line struct {
	kind lineKind
	text string
}

// output collects what the session renders. It is shared by every copy of
// the Model.
type output struct {
	lines       []line
	plan        *session.Plan
	prompts     int
	progress    transfer.Progress
	hasProgress bool

	quit     bool
	exitCode int
}

func (o *output) Println(text string)    { o.lines = append(o.lines, line{lineStatus, text}) }
func (o *output) PrintError(text string) { o.lines = append(o.lines, line{lineError, text}) }

func (o *output) ShowPlan(plan session.Plan) {
	o.plan = &plan
}

func (o *output) ShowPrompt() {
	o.prompts++
}

func (o *output) ShowProgress(p transfer.Progress) {
	o.progress = p
	o.hasProgress = true
}

func (o *output) setQuit(code int) {
	o.quit = true
	o.exitCode = code
}

// scheduler turns session timers into tea commands returned from Update.
type scheduler struct {
	pending []tea.Cmd
}

func (s *scheduler) After(d time.Duration, fn func()) {
	s.pending = append(s.pending, tea.Tick(d, func(time.Time) tea.Msg {
		return timerMsg{fn: fn}
	}))
}

func (s *scheduler) drain() []tea.Cmd {
	out := s.pending
	s.pending = nil
	return out
}

// Options configures the TUI application.
type Options struct {
	Session session.Options
	Sender  session.Sender
	Width   int
}

// Model is the Bubble Tea model hosting one receive session.
type Model struct {
	sess  *session.Session
	out   *output
	sched *scheduler

	spinner  spinner.Model
	progress progress.Model

	width int
}

// NewModel creates the model and its session.
func NewModel(opts Options) Model {
	out := &output{}
	sched := &scheduler{}

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	width := opts.Width
	if width <= 0 {
		width = 80
	}
	bar := progress.New(progress.WithGradient(string(primaryColor), string(accentColor)))
	bar.Width = progressWidth(width)

	return Model{
		sess:     session.New(opts.Session, opts.Sender, out, sched, out.setQuit),
		out:      out,
		sched:    sched,
		spinner:  s,
		progress: bar,
		width:    width,
	}
}

func progressWidth(width int) int {
	return max(10, min(60, width-30))
}

// Session returns the hosted session.
func (m Model) Session() *session.Session { return m.sess }

// ExitCode returns the code the session quit with.
func (m Model) ExitCode() int { return m.out.exitCode }

// Result returns the session outcome.
func (m Model) Result() session.Result { return m.sess.Result() }

// Init starts the session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		func() tea.Msg { return startMsg{} },
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = progressWidth(msg.Width)
		return m, nil

	case startMsg:
		_ = m.sess.Start()

	case CommandMsg:
		m.sess.HandleCommand(protocol.Command(msg))

	case TransportDoneMsg:
		m.sess.Disconnected(msg.Err)

	case SignalMsg:
		if msg.Signal == syscall.SIGTERM {
			m.sess.Terminate()
		} else {
			m.sess.Interrupt()
		}

	case timerMsg:
		msg.fn()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.out.quit {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		return m, nil
	}

	return m, m.afterSession()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.sess.Interrupt()
	case tea.KeyEsc:
		m.sess.HandleEscape()
	case tea.KeyRunes:
		m.sess.HandleText(string(msg.Runes))
	default:
		return m, nil
	}
	return m, m.afterSession()
}

// afterSession collects timers the session scheduled and quits the program
// once the session has.
func (m Model) afterSession() tea.Cmd {
	cmds := m.sched.drain()
	if m.out.quit {
		cmds = append(cmds, tea.Quit)
	}
	return tea.Batch(cmds...)
}

// View renders the session output.
func (m Model) View() string {
	var b strings.Builder

	for _, l := range m.out.lines {
		switch l.kind {
		case lineError:
			b.WriteString(errorTextStyle.Render(l.text))
		default:
			b.WriteString(l.text)
		}
		b.WriteString("\n")
	}

	if m.out.plan != nil && m.out.prompts > 0 {
		b.WriteString(m.renderPlan(*m.out.plan))
	}

	if m.out.hasProgress {
		b.WriteString(m.renderProgress())
	} else if !m.out.quit && m.out.plan == nil {
		b.WriteString(mutedTextStyle.Render(m.spinner.View() + " waiting for terminal"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPlan(plan session.Plan) string {
	var b strings.Builder
	contentWidth := max(40, m.width-4)

	b.WriteString(titleStyle.Render("The following file transfers will be performed. A red destination means an existing file will be overwritten."))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	for _, item := range plan.Items {
		dest := truncatePath(item.LocalPath, contentWidth/2)
		if item.Exists {
			dest = overwriteStyle.Render(dest)
		}
		fmt.Fprintf(&b, "%s %s %s %s\n",
			badgeStyle(item.Type).Render(item.Type.ShortText()),
			truncatePath(item.Name, contentWidth/2),
			arrowStyle.Render("→"),
			dest,
		)
	}
	b.WriteString(plan.Summary())
	b.WriteString("\n\n")
	if m.sess.Confirming() {
		fmt.Fprintf(&b, "Press %s to continue or %s to abort\n", yesKeyStyle.Render("y"), noKeyStyle.Render("n"))
	}
	return b.String()
}

func (m Model) renderProgress() string {
	p := m.out.progress
	var b strings.Builder

	percent := 0.0
	if p.Total > 0 {
		percent = min(1, float64(p.Transferred)/float64(p.Total))
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString("\n")

	stat := func(label, value string) string {
		return statsLabelStyle.Render(label+" ") + statsValueStyle.Render(value)
	}
	b.WriteString(strings.Join([]string{
		statsValueStyle.Render(types.FormatSize(p.Transferred) + " / " + types.FormatSize(p.Total)),
		stat("rate", types.FormatRate(p.Rate)),
		stat("eta", types.FormatETA(p.ETA)),
		stat("elapsed", types.FormatETA(p.Elapsed)),
	}, "  "))
	b.WriteString("\n")

	if p.Active != "" && !m.out.quit {
		b.WriteString(mutedTextStyle.Render(m.spinner.View() + " " + truncatePath(p.Active, max(20, m.width-4))))
		b.WriteString("\n")
	}
	if m.out.quit && m.out.exitCode == 0 {
		b.WriteString(successTextStyle.Render("Done"))
		b.WriteString("\n")
	}
	return b.String()
}
