package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/muesli/reflow/truncate"
)

// StatusDisplay renders the narration state for the status line.
type StatusDisplay struct {
	state        ttypes.State
	current      int
	total        int
	duration     time.Duration
	fromCache    int
	errorMessage string
}

// NewStatusDisplay creates an idle status display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{state: ttypes.StateIdle}
}

// UpdateFromMessage updates the display from a narration message.
func (s *StatusDisplay) UpdateFromMessage(msg interface{}) {
	switch m := msg.(type) {
	case narrationStartedMsg:
		s.Reset()
		s.state = ttypes.StateGenerating

	case progressMsg:
		s.state = ttypes.StateGenerating
		s.current = m.Current
		s.total = m.Total

	case narrationDoneMsg:
		if m.result == nil {
			s.state = ttypes.StateError
			if m.err != nil {
				s.errorMessage = m.err.Error()
			}
			return
		}
		s.current = len(m.result.Chunks)
		s.total = len(m.result.Chunks)
		s.duration = m.result.Duration()
		s.state = ttypes.StateIdle
		if m.result.Done != nil {
			s.state = ttypes.StatePlaying
		}

	case playbackDoneMsg:
		s.state = ttypes.StateIdle
	}
}

// Progress returns the completed fraction in [0, 1].
func (s *StatusDisplay) Progress() float64 {
	if s.total <= 0 {
		return 0
	}
	return float64(s.current) / float64(s.total)
}

// CompactStatus returns a one line status.
func (s *StatusDisplay) CompactStatus() string {
	var icon string
	var text string

	switch s.state {
	case ttypes.StateGenerating:
		icon = "⟳"
		text = "Generating"
	case ttypes.StatePlaying:
		icon = "▶"
		text = "Playing"
	case ttypes.StateError:
		icon = "✗"
		text = "Failed"
	default:
		if s.duration == 0 {
			return ""
		}
		icon = "■"
		text = "Ready"
	}

	status := lipgloss.NewStyle().Foreground(s.stateColor()).Render(icon + " " + text)

	if s.total > 0 && s.state == ttypes.StateGenerating {
		status += subtleStyle.Render(fmt.Sprintf(" chunk %d/%d", s.current, s.total))
	}
	if s.duration > 0 {
		status += subtleStyle.Render(" " + formatDuration(s.duration))
	}
	return status
}

// ErrorLine returns the failure message truncated to width.
func (s *StatusDisplay) ErrorLine(width int) string {
	if s.errorMessage == "" {
		return ""
	}
	msg := s.errorMessage
	if width > 10 {
		// width-2 leaves room for the indent
		msg = truncate.StringWithTail(msg, uint(width-2), "...") //nolint:gosec
	}
	return errorStyle.Render(msg)
}

func (s *StatusDisplay) stateColor() lipgloss.TerminalColor {
	switch s.state {
	case ttypes.StateGenerating:
		return blue
	case ttypes.StatePlaying:
		return green
	case ttypes.StateError:
		return red
	default:
		return gray
	}
}

// IsActive returns true while generating or playing.
func (s *StatusDisplay) IsActive() bool {
	return s.state == ttypes.StateGenerating || s.state == ttypes.StatePlaying
}

// Reset returns the display to idle.
func (s *StatusDisplay) Reset() {
	*s = StatusDisplay{state: ttypes.StateIdle}
}

// formatDuration formats a duration as m:ss.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
