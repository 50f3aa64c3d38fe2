// Package main provides the entry point for the Dastaan CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/tts"
	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/dastaan/dastaan/utils"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	width      uint
	opts       narrateOptions

	rootCmd = &cobra.Command{
		Use:   "dastaan [FILE|-]",
		Short: "Narrate Urdu stories from the command line",
		Long: paragraph(
			fmt.Sprintf("\nTurn Urdu text into %s narration, then play it or export it as WAV or MP3.", keyword("spoken")),
		),
		Example: paragraph(
			"dastaan story.txt\ncat story.md | dastaan --markdown --tone bedtime\ndastaan story.txt --no-play -o out/ --quality 96",
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// narrateOptions are the per-invocation narration flags.
type narrateOptions struct {
	output   string
	format   string
	noPlay   bool
	markdown bool
	watch    bool
	noCache  bool
	save     bool
	copyPath bool
}

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(utils.ExpandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	if debug || viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if opts.format != "" {
		if _, err := tts.ParseFormat(opts.format); err != nil {
			return err
		}
	}

	if !cmd.Flags().Changed("width") && width == 0 {
		width = 80
		if isTerminal(os.Stdout) {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil { //nolint:gosec
				width = uint(min(w, 120)) //nolint:gosec
			}
		}
	}
	return nil
}

// settingsFromConfig builds generation settings from flags, the config file
// and DASTAAN_* environment variables, in that order of precedence.
func settingsFromConfig() (ttypes.GenerationSettings, error) {
	settings := ttypes.DefaultSettings()

	if v := strings.ToLower(strings.TrimSpace(viper.GetString("voice"))); v != "" {
		settings.Voice = ttypes.Voice(v)
	}
	if t := viper.GetString("tone"); t != "" {
		tone, err := ttypes.ParseTone(t)
		if err != nil {
			return settings, fmt.Errorf("invalid tone: %w (choose one of %v)", err, ttypes.Tones())
		}
		settings.Tone = tone
	}
	if q := viper.GetInt("quality"); q != 0 {
		settings.Quality = q
	}
	if m := strings.TrimSpace(viper.GetString("music")); m != "" {
		if !utils.IsURL(m) {
			m = utils.ExpandPath(m)
		}
		settings.BackgroundMusic = m
	}

	if err := settings.Validate(); err != nil {
		return settings, err
	}

	known := false
	for _, v := range ttypes.Voices() {
		known = known || v == settings.Voice
	}
	if !known {
		log.Warn("Unknown voice, narrating with the default", "voice", settings.Voice)
	}
	return settings, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) //nolint:gosec
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// readInput returns the text to narrate and a name for it. With no argument
// and nothing piped in, the auto-saved draft is used.
func readInput(ctx context.Context, args []string) (string, string, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	if arg == "" {
		piped, err := stdinIsPipe()
		if err != nil {
			return "", "", err
		}
		if piped {
			arg = "-"
		}
	}

	switch arg {
	case "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), "stdin", nil
	case "":
		lib, err := openLibrary()
		if err != nil {
			return "", "", err
		}
		defer lib.Close() //nolint:errcheck
		d, err := lib.LoadDraft(ctx)
		if err != nil {
			return "", "", err
		}
		if strings.TrimSpace(d.Text) == "" {
			return "", "", errors.New("nothing to narrate: pass a file or pipe text into dastaan")
		}
		return d.Text, "draft", nil
	default:
		b, err := os.ReadFile(utils.ExpandPath(arg))
		if err != nil {
			return "", "", fmt.Errorf("unable to open file: %w", err)
		}
		return string(b), filepath.Base(arg), nil
	}
}

// prepareText applies markdown extraction when asked for or when the file
// looks like markdown, then Unicode normalisation.
func prepareText(text, source string, markdown bool) string {
	markdown = markdown || utils.IsMarkdownFile(source)
	if markdown {
		text = string(utils.RemoveFrontmatter([]byte(text)))
	}
	return tts.NewTextPreparer(markdown).Prepare(text)
}

func execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if opts.watch && (len(args) == 0 || args[0] == "-") {
		return errors.New("--watch needs a file to watch")
	}

	settings, err := settingsFromConfig()
	if err != nil {
		return err
	}

	raw, source, err := readInput(ctx, args)
	if err != nil {
		return err
	}
	text := prepareText(raw, source, opts.markdown)

	saveDraft(ctx, text, settings)

	app, err := newNarrationApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.ensureCredential(ctx); err != nil {
		return withGuidance(err, false)
	}

	if opts.watch {
		path, err := filepath.Abs(utils.ExpandPath(args[0]))
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}
		return app.watch(ctx, path, settings)
	}

	result, err := app.narrate(ctx, text, settings, source)
	if err != nil {
		return withGuidance(err, app.interactive)
	}

	if opts.output != "" {
		if _, err := app.export(ctx, result, opts.output); err != nil {
			return withGuidance(err, false)
		}
	}

	if opts.save {
		if err := saveProject(ctx, raw, settings); err != nil {
			return err
		}
	}

	app.waitPlayback(ctx, result)
	return nil
}

// withGuidance prints what the user can do about a failure to stderr unless
// the progress view showed it already.
func withGuidance(err error, shown bool) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if !shown {
		msg := ttypes.Guidance(ttypes.ReportOf(err))
		_, _ = fmt.Fprintln(os.Stderr, wordwrap.String(msg, int(width))) //nolint:gosec
	}
	return err
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug output to the log file")
	rootCmd.PersistentFlags().UintVarP(&width, "width", "w", 0, "word-wrap messages at width")

	rootCmd.Flags().String("voice", string(ttypes.VoiceZephyr), "narrator voice (kore, puck, charon, fenrir, zephyr)")
	rootCmd.Flags().String("tone", string(ttypes.ToneCalm), "narrator tone (bedtime, dramatic, calm, reflective)")
	rootCmd.Flags().String("music", "", "background music file or URL played under the narration")
	rootCmd.Flags().IntP("quality", "q", 128, "MP3 export bitrate in kbps (24, 48, 96, 128)")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", "", "export to this file or directory")
	rootCmd.Flags().StringVar(&opts.format, "format", "", "export format: wav or mp3 (default from the output extension, else mp3)")
	rootCmd.Flags().BoolVar(&opts.noPlay, "no-play", false, "do not play the narration")
	rootCmd.Flags().BoolVarP(&opts.markdown, "markdown", "m", false, "treat the input as markdown")
	rootCmd.Flags().BoolVar(&opts.watch, "watch", false, "narrate again whenever the file changes")
	rootCmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "always call the speech service")
	rootCmd.Flags().BoolVar(&opts.save, "save", false, "save the text as a project in the library")
	rootCmd.Flags().BoolVar(&opts.copyPath, "copy", false, "copy the exported file path to the clipboard")

	// Config bindings
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("tone", rootCmd.Flags().Lookup("tone"))
	_ = viper.BindPFlag("music", rootCmd.Flags().Lookup("music"))
	_ = viper.BindPFlag("quality", rootCmd.Flags().Lookup("quality"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	setConfigDefaults()

	rootCmd.AddCommand(configCmd, manCmd, keyCmd, voicesCmd, libraryCmd, cacheCmd)
}

func setConfigDefaults() {
	defaults := ttypes.DefaultSettings()
	viper.SetDefault("voice", string(defaults.Voice))
	viper.SetDefault("tone", string(defaults.Tone))
	viper.SetDefault("music", "")
	viper.SetDefault("quality", defaults.Quality)

	viper.SetDefault("gemini.model", "gemini-2.5-flash-preview-tts")
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.timeout", "90s")
	viper.SetDefault("gemini.requests_per_minute", 10)
	viper.SetDefault("retry.attempts", 3)
	viper.SetDefault("retry.base_delay", "2s")
	viper.SetDefault("chunk.max_size", tts.DefaultMaxChunkSize)
	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.max_size", 512)
	viper.SetDefault("library.path", "")
	viper.SetDefault("ffmpeg", "ffmpeg")
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "dastaan")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "dastaan")}, dirs...)
	}

	if c := os.Getenv("DASTAAN_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("dastaan")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("dastaan")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "dastaan.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
