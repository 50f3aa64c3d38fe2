package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dastaan/dastaan/internal/tts"
	"github.com/dastaan/dastaan/internal/ttypes"
)

// NarrateFunc runs one narration, reporting progress after every chunk.
type NarrateFunc func(ctx context.Context, progress ttypes.ProgressFunc) (*tts.Result, error)

type (
	narrationStartedMsg struct{}
	progressMsg         ttypes.Progress
	narrationDoneMsg    struct {
		result *tts.Result
		err    error
	}
	playbackDoneMsg struct{}
)

// narrateCmd runs the narration off the UI loop. Progress is forwarded to
// updates without blocking the narration when the UI lags behind. updates is
// closed when the run returns.
func narrateCmd(ctx context.Context, run NarrateFunc, updates chan<- ttypes.Progress) tea.Cmd {
	return func() tea.Msg {
		defer close(updates)
		result, err := run(ctx, func(p ttypes.Progress) {
			select {
			case updates <- p:
			default:
			}
		})
		return narrationDoneMsg{result: result, err: err}
	}
}

func waitForProgress(updates <-chan ttypes.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-updates
		if !ok {
			return nil
		}
		return progressMsg(p)
	}
}

func waitForPlayback(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return playbackDoneMsg{}
	}
}
