// Package ui provides the terminal progress view shown while a narration is
// generated and played.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/tts"
	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
)

const maxBarWidth = 60

// NewProgram returns a new Tea program that runs run and shows its progress.
// stop is called when the user skips playback; it may be nil.
func NewProgram(cfg Config, run NarrateFunc, stop func()) *tea.Program {
	log.Debug("Starting narration view", "source", cfg.Source, "play", cfg.Play)

	if cfg.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	return tea.NewProgram(newModel(cfg, run, stop))
}

// Outcome returns the result of a finished program's model.
func Outcome(m tea.Model) (*tts.Result, error) {
	mm, ok := m.(model)
	if !ok {
		return nil, fmt.Errorf("unexpected model %T", m)
	}
	if mm.err != nil {
		return nil, mm.err
	}
	if mm.result == nil {
		return nil, context.Canceled
	}
	return mm.result, nil
}

type model struct {
	cfg    Config
	run    NarrateFunc
	stop   func()
	ctx    context.Context
	cancel context.CancelFunc

	updates chan ttypes.Progress
	spinner spinner.Model
	bar     progress.Model
	status  *StatusDisplay
	width   int

	result   *tts.Result
	err      error
	quitting bool
}

func newModel(cfg Config, run NarrateFunc, stop func()) model {
	ctx, cancel := context.WithCancel(context.Background())

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(highlight)

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = maxBarWidth

	m := model{
		cfg:     cfg,
		run:     run,
		stop:    stop,
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan ttypes.Progress, 16),
		spinner: sp,
		bar:     bar,
		status:  NewStatusDisplay(),
		width:   int(cfg.Width), //nolint:gosec
	}
	m.status.UpdateFromMessage(narrationStartedMsg{})
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		narrateCmd(m.ctx, m.run, m.updates),
		waitForProgress(m.updates),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			m.cancel()
			if m.stop != nil {
				m.stop()
			}
			return m, tea.Quit
		case "s":
			// skip the rest of playback but keep the result
			if m.result != nil && m.stop != nil {
				m.stop()
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		if m.cfg.Width == 0 {
			m.width = msg.Width
		}
		m.bar.Width = min(maxBarWidth, max(10, m.width-4))
		return m, nil

	case spinner.TickMsg:
		if !m.status.IsActive() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.status.UpdateFromMessage(msg)
		if m.result != nil || m.err != nil {
			return m, nil
		}
		return m, waitForProgress(m.updates)

	case narrationDoneMsg:
		m.status.UpdateFromMessage(msg)
		m.cancel()
		if msg.result == nil {
			m.err = msg.err
			return m, tea.Quit
		}
		if msg.err != nil {
			log.Warn("Narration ready but not playing", "error", msg.err)
		}
		m.result = msg.result
		if m.cfg.Play && msg.result.Done != nil {
			return m, waitForPlayback(msg.result.Done)
		}
		return m, tea.Quit

	case playbackDoneMsg:
		m.status.UpdateFromMessage(msg)
		return m, tea.Quit
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	header := titleStyle.Render("Dastaan")
	if m.cfg.Source != "" {
		header += subtleStyle.Render(" · " + m.cfg.Source)
	}
	settings := m.cfg.Settings
	header += subtleStyle.Render(fmt.Sprintf(" · %s · %s", settings.Voice, settings.Tone.Label()))
	b.WriteString(header + "\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorView(m.status.ErrorLine(m.width), m.err, m.width))
	case m.result != nil:
		b.WriteString(m.resultView())
	default:
		line := m.spinner.View() + " " + m.status.CompactStatus()
		if !m.cfg.ShowChunkCount {
			line = m.spinner.View() + " Generating narration"
		}
		b.WriteString(line + "\n")
		b.WriteString(m.bar.ViewAs(m.status.Progress()) + "\n\n")
		b.WriteString(subtleStyle.Render("q: cancel"))
	}

	return "\n" + indent(b.String(), 2)
}

func (m model) resultView() string {
	r := m.result
	summary := doneStyle.Render("✓") + fmt.Sprintf(" Narrated %d chunk(s), %s of audio", len(r.Chunks), formatDuration(r.Duration()))
	if m.status.IsActive() {
		return summary + "\n" + m.status.CompactStatus() + "\n\n" + subtleStyle.Render("s: skip playback · q: quit")
	}
	return summary + "\n"
}

func errorView(line string, err error, width int) string {
	guidance := ttypes.Guidance(ttypes.ReportOf(err))
	if width > 4 {
		guidance = wordwrap.String(guidance, width-4)
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s\n",
		errorTitleStyle.Render("ERROR"),
		line,
		subtleStyle.Render(guidance),
	)
}
