package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# narrator voice: kore, puck, charon, fenrir or zephyr
voice: "zephyr"
# narrator tone: bedtime, dramatic, calm or reflective
tone: "calm"
# background music file or URL played under the narration
music: ""
# MP3 export bitrate in kbps: 24, 48, 96 or 128
quality: 128

gemini:
  model: "gemini-2.5-flash-preview-tts"
  base_url: "https://generativelanguage.googleapis.com/v1beta"
  # per request timeout
  timeout: "90s"
  # 0 uses the default of 10, a negative value disables pacing
  requests_per_minute: 10

retry:
  # total attempts per chunk
  attempts: 3
  # first backoff; doubles with every attempt, and again for quota errors
  base_delay: "2s"

chunk:
  # characters per request
  max_size: 700

cache:
  # defaults to the user cache directory
  dir: ""
  # disk cache size in MB; 0 disables it
  max_size: 512

library:
  # defaults to the user data directory
  path: ""

# ffmpeg binary used for MP3 export and background music
ffmpeg: "ffmpeg"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the dastaan config file",
	Long:    paragraph(fmt.Sprintf("\n%s the dastaan config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("dastaan config\ndastaan config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Dastaan", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
