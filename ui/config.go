package ui

import "github.com/dastaan/dastaan/internal/ttypes"

// Config contains TUI-specific configuration.
type Config struct {
	// Width the view wraps at. Zero means the terminal width.
	Width uint

	// Source is shown in the header; a file name or "stdin".
	Source   string
	Settings ttypes.GenerationSettings

	// Play keeps the program open until playback finishes.
	Play bool

	NoColor bool `env:"NO_COLOR"`

	// For debugging the UI
	ShowChunkCount bool `env:"DASTAAN_SHOW_CHUNKS" envDefault:"true"`
}
