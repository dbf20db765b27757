package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/thaitts/corpusprep/internal/dispatch"
)

const maxBarWidth = 60

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	statStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

type (
	progressMsg dispatch.Progress
	doneMsg     struct{}
)

type progressModel struct {
	title string
	bar   progress.Model
	last  dispatch.Progress
}

func newProgressModel(title string) progressModel {
	return progressModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
	}
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)
	case progressMsg:
		m.last = dispatch.Progress(msg)
	case doneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	return titleStyle.Render(m.title) + "\n" +
		m.bar.ViewAs(m.last.Percent()) + "\n" +
		statStyle.Render(statusLine(m.last)) + "\n"
}

func statusLine(p dispatch.Progress) string {
	s := fmt.Sprintf("%s/%s lines", humanize.Comma(int64(p.Done)), humanize.Comma(int64(p.Total)))
	if p.Rate > 0 {
		s += fmt.Sprintf(" · %.1f/s", p.Rate)
	}
	if p.ETA > 0 {
		s += " · ETA " + p.ETA.Round(time.Second).String()
	}
	return s
}

// Tracker shows dispatcher progress: a bubbletea progress bar on a
// terminal, periodic log lines otherwise.
type Tracker struct {
	prog   *tea.Program
	done   chan struct{}
	logger *log.Logger
	title  string
	decile int
	once   sync.Once

	captured *log.Logger
	restore  io.Writer
}

// NewTracker starts a tracker. With tty set the bar is drawn on out.
func NewTracker(title string, out io.Writer, tty bool, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	t := &Tracker{logger: logger, title: title, decile: -1}
	if !tty {
		return t
	}

	t.prog = tea.NewProgram(newProgressModel(title),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		if _, err := t.prog.Run(); err != nil {
			logger.Warn("progress view failed", "error", err)
		}
	}()
	return t
}

// Update publishes a progress snapshot.
func (t *Tracker) Update(p dispatch.Progress) {
	if t.prog != nil {
		t.prog.Send(progressMsg(p))
		return
	}
	if p.Total == 0 {
		return
	}
	// Log every 10% without a terminal.
	if d := p.Done * 10 / p.Total; d > t.decile {
		t.decile = d
		t.logger.Info(t.title, "done", p.Done, "total", p.Total, "rate", fmt.Sprintf("%.1f/s", p.Rate), "eta", p.ETA.Round(time.Second))
	}
}

// CaptureLogs prints l's output above the bar until Stop, then points l
// back at restore. Without a terminal it does nothing.
func (t *Tracker) CaptureLogs(l *log.Logger, restore io.Writer) {
	if t.prog == nil || l == nil {
		return
	}
	t.captured, t.restore = l, restore
	l.SetOutput(lineWriter{t.prog})
}

// lineWriter hands each log entry to the program, which prints it above
// the view.
type lineWriter struct{ prog *tea.Program }

func (w lineWriter) Write(b []byte) (int, error) {
	w.prog.Send(tea.Println(strings.TrimRight(string(b), "\n"))())
	return len(b), nil
}

// Stop tears the view down and waits for it to exit.
func (t *Tracker) Stop() {
	t.once.Do(func() {
		if t.prog == nil {
			return
		}
		if t.captured != nil {
			t.captured.SetOutput(t.restore)
		}
		t.prog.Send(doneMsg{})
		<-t.done
	})
}
