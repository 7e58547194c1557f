// Package progressui is a minimal, read-only terminal view of a render
// in progress: frames rendered so far and a color strip of active voice
// groups. It replaces the teacher's internal/views package (a full
// multi-screen tracker editor) with the one view this core actually
// needs — the teacher's editor is an out-of-scope front-end (spec.md §1),
// but bubbletea/lipgloss/go-colorful/termenv/bubbles are carried forward
// for the same purpose the teacher used them for: rendering terminal
// state that changes every frame tick. The percentage bar and the
// before-first-frame wait indicator are bubbles' own `progress` and
// `spinner` components rather than hand-rolled equivalents.
package progressui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"
)

// Snapshot is one render tick's worth of progress the caller reports
// into the model via a ProgressMsg.
type Snapshot struct {
	FramesRendered int
	FramesTotal    int
	ActiveGroups   []uint64 // group ids, for the voice activity strip
	DroppedNotes   uint64
}

// ProgressMsg carries a Snapshot into the bubbletea Update loop.
type ProgressMsg Snapshot

// DoneMsg signals the render finished; the model prints a summary and
// asks bubbletea to quit.
type DoneMsg struct{}

var barStyle = lipgloss.NewStyle().Bold(true)

// Model is the bubbletea model driving the progress view.
type Model struct {
	last    Snapshot
	done    bool
	profile termenv.Profile
	bar     progress.Model
	wait    spinner.Model
	started bool
}

// New constructs a progress model; the color profile is detected once up
// front (termenv.ColorProfile's role) so the voice strip degrades to
// plain text on a dumb terminal instead of emitting raw escape codes.
func New() Model {
	return Model{
		profile: termenv.ColorProfile(),
		bar:     progress.New(progress.WithDefaultGradient()),
		wait:    spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m Model) Init() tea.Cmd { return m.wait.Tick }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.last = Snapshot(msg)
		m.started = true
		pct := 0.0
		if m.last.FramesTotal > 0 {
			pct = float64(m.last.FramesRendered) / float64(m.last.FramesTotal)
		}
		cmd := m.bar.SetPercent(pct)
		return m, cmd
	case DoneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.started {
			return m, nil
		}
		var cmd tea.Cmd
		m.wait, cmd = m.wait.Update(msg)
		return m, cmd
	case progress.FrameMsg:
		barModel, cmd := m.bar.Update(msg)
		m.bar = barModel.(progress.Model)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

// voiceColor assigns a stable hue per group id spread across the color
// wheel (go-colorful's HSV role), so adjacent groups are visually
// distinct even as groups come and go across blocks.
func voiceColor(groupID uint64) colorful.Color {
	hue := float64((groupID * 137) % 360)
	return colorful.Hsv(hue, 0.65, 0.95)
}

func (m Model) View() string {
	var b strings.Builder
	if !m.started {
		fmt.Fprintf(&b, "%s waiting for the first block\n", m.wait.View())
	} else {
		fmt.Fprintf(&b, "%s %d/%d frames\n", m.bar.View(), m.last.FramesRendered, m.last.FramesTotal)
	}

	if m.profile == termenv.Ascii {
		fmt.Fprintf(&b, "active voices: %d\n", len(m.last.ActiveGroups))
	} else {
		var strip strings.Builder
		for _, g := range m.last.ActiveGroups {
			c := voiceColor(g)
			strip.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("█"))
		}
		b.WriteString(barStyle.Render("voices: ") + strip.String() + "\n")
	}

	if m.last.DroppedNotes > 0 {
		fmt.Fprintf(&b, "dropped notes: %d\n", m.last.DroppedNotes)
	}
	if m.done {
		b.WriteString("done.\n")
	} else {
		b.WriteString("(q to quit)\n")
	}
	return b.String()
}
