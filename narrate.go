package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/audio"
	"github.com/dastaan/dastaan/internal/cache"
	"github.com/dastaan/dastaan/internal/credentials"
	"github.com/dastaan/dastaan/internal/tts"
	"github.com/dastaan/dastaan/internal/tts/engines"
	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/dastaan/dastaan/ui"
	"github.com/dastaan/dastaan/utils"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// narrationApp wires the narrator to its collaborators for one invocation.
type narrationApp struct {
	opts     narrateOptions
	keys     *credentials.Source
	cache    *cache.Manager
	ffmpeg   *audio.FFmpeg
	playback *audio.Playback
	narrator *tts.Narrator
	console  *log.Logger

	// interactive shows the progress view instead of log lines
	interactive bool
}

func newNarrationApp(o narrateOptions) (*narrationApp, error) {
	keys, err := credentials.NewSource("")
	if err != nil {
		return nil, err
	}

	model := viper.GetString("gemini.model")
	engine, err := engines.NewGeminiEngine(engines.GeminiConfig{
		Keys:              keys,
		Model:             model,
		BaseURL:           viper.GetString("gemini.base_url"),
		Timeout:           viper.GetDuration("gemini.timeout"),
		MaxAttempts:       viper.GetInt("retry.attempts"),
		BaseDelay:         viper.GetDuration("retry.base_delay"),
		RequestsPerMinute: viper.GetInt("gemini.requests_per_minute"),
	})
	if err != nil {
		return nil, err
	}

	a := &narrationApp{
		opts:        o,
		keys:        keys,
		ffmpeg:      audio.NewFFmpeg(viper.GetString("ffmpeg"), 0),
		console:     newConsoleLogger(os.Stderr),
		interactive: isTerminal(os.Stdout),
	}

	config := tts.NarratorConfig{
		Generator:    engine,
		Encoder:      a.ffmpeg,
		MaxChunkSize: viper.GetInt("chunk.max_size"),
		Model:        model,
	}

	if !o.noCache {
		c, err := openCache()
		if err != nil {
			log.Warn("Chunk cache disabled", "error", err)
		} else {
			a.cache = c
			config.Cache = c
		}
	}

	if !o.noPlay {
		out, err := audio.OpenOutput(ttypes.SampleRate, ttypes.Channels)
		if err != nil {
			a.console.Warn("Audio output unavailable, playback disabled", "error", err)
		} else {
			a.playback = audio.NewPlayback(out, audio.NewFFmpegMusicLoader(a.ffmpeg, ttypes.SampleRate))
			config.Player = a.playback
		}
	}

	a.narrator, err = tts.NewNarrator(config)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openCache() (*cache.Manager, error) {
	config := cache.DefaultConfig()

	dir := utils.ExpandPath(viper.GetString("cache.dir"))
	if dir == "" {
		d, err := gap.NewScope(gap.User, "dastaan").CacheDir()
		if err != nil {
			return nil, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(d, "chunks")
	}
	config.DiskPath = dir
	config.DiskCapacity = int64(viper.GetInt("cache.max_size")) * 1024 * 1024

	return cache.NewManager(config)
}

// Close stops playback and releases the cache.
func (a *narrationApp) Close() {
	a.narrator.Cancel()
	a.stop()
	if a.cache != nil {
		stats := a.cache.Stats()
		log.Debug("Chunk cache", "memory_hits", stats.MemoryHits, "disk_hits", stats.DiskHits, "misses", stats.Misses)
		if err := a.cache.Close(); err != nil {
			log.Warn("Failed to close cache", "error", err)
		}
	}
}

func (a *narrationApp) stop() {
	if a.playback != nil {
		a.playback.Stop()
	}
}

// ensureCredential prompts for an API key when none is configured and a
// terminal is available to ask on.
func (a *narrationApp) ensureCredential(ctx context.Context) error {
	if a.keys.HasCredential() {
		return nil
	}
	if !isTerminal(os.Stdin) {
		return ttypes.ErrNoCredential
	}
	_, _ = fmt.Fprintln(os.Stderr, paragraph("No Gemini API key found. Paste one to store it in "+a.keys.Path()+"."))
	return a.keys.Prompt(ctx)
}

// narrate runs one narration, showing the progress view on a terminal and
// log lines otherwise. In the progress view playback is waited for before
// returning.
func (a *narrationApp) narrate(ctx context.Context, text string, settings ttypes.GenerationSettings, source string) (*tts.Result, error) {
	if a.interactive {
		cfg, err := env.ParseAs[ui.Config]()
		if err != nil {
			log.Warn("Ignoring UI environment", "error", err)
			cfg = ui.Config{ShowChunkCount: true}
		}
		cfg.Width = width
		cfg.Source = source
		cfg.Settings = settings
		cfg.Play = a.playback != nil

		run := func(ctx context.Context, progress ttypes.ProgressFunc) (*tts.Result, error) {
			return a.narrator.Narrate(ctx, text, settings, progress)
		}
		m, err := ui.NewProgram(cfg, run, a.stop).Run()
		if err != nil {
			return nil, fmt.Errorf("unable to run tui program: %w", err)
		}
		return ui.Outcome(m)
	}

	result, err := a.narrator.Narrate(ctx, text, settings, func(p ttypes.Progress) {
		a.console.Info("Generated chunk", "chunk", p.Current, "of", p.Total)
	})
	if result == nil {
		return nil, err
	}
	if err != nil {
		a.console.Warn("Narration ready but not playing", "error", err)
	}
	a.console.Info("Narration ready",
		"chunks", len(result.Chunks),
		"duration", result.Duration().Round(time.Second),
		"pcm", humanize.Bytes(uint64(len(result.PCM))), //nolint:gosec
	)
	return result, nil
}

// waitPlayback blocks until result finishes playing or ctx ends.
func (a *narrationApp) waitPlayback(ctx context.Context, result *tts.Result) {
	if a.interactive || result == nil || result.Done == nil {
		return
	}
	a.console.Info("Playing", "duration", result.Duration().Round(time.Second))
	select {
	case <-result.Done:
	case <-ctx.Done():
		a.stop()
	}
}

// export writes the last narration to output. A directory gets a generated
// file name; the extension or --format picks the container.
func (a *narrationApp) export(ctx context.Context, result *tts.Result, output string) (string, error) {
	format := tts.FormatFromPath(output, tts.FormatMP3)
	if a.opts.format != "" {
		f, err := tts.ParseFormat(a.opts.format)
		if err != nil {
			return "", err
		}
		format = f
	}

	path := utils.ExpandPath(output)
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || strings.HasSuffix(output, string(os.PathSeparator)) {
		path = filepath.Join(path, tts.ExportFilename(result.Settings, format, result.Settings.Quality, time.Now()))
	}

	data, err := a.narrator.Export(ctx, format, result.Settings.Quality)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return "", fmt.Errorf("unable to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return "", fmt.Errorf("unable to write %s: %w", path, err)
	}

	a.console.Info("Exported narration", "path", path, "type", format.MimeType(), "size", humanize.Bytes(uint64(len(data))))

	if a.opts.copyPath {
		if err := clipboard.WriteAll(path); err != nil {
			a.console.Warn("Could not copy path to clipboard", "error", err)
		}
	}
	return path, nil
}
