package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dastaan/dastaan/internal/tts/engines"
	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/spf13/cobra"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List narrator voices and tones",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		voices := table.New().Border(lipgloss.HiddenBorder()).Headers("VOICE", "SPEAKER", "")
		for _, v := range ttypes.Voices() {
			voices.Row(string(v), engines.ProviderVoice(v), engines.VoiceDescriptions[v])
		}

		tones := table.New().Border(lipgloss.HiddenBorder()).Headers("TONE", "")
		for _, t := range ttypes.Tones() {
			tones.Row(string(t), t.Label())
		}

		_, err := fmt.Fprintf(os.Stdout, "%s\n%s\n", voices.Render(), tones.Render())
		return err
	},
}
