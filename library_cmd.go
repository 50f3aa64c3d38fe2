package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/library"
	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/dastaan/dastaan/utils"
	"github.com/dustin/go-humanize"
	"github.com/muesli/gitcha"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	libraryCmd = &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage saved stories",
		Long:    paragraph(fmt.Sprintf("\n%s saved stories. Save one with %s.", keyword("List, read, search and narrate"), keyword("dastaan FILE --save"))),
		Args:    cobra.NoArgs,
		RunE:    listProjects,
	}

	libraryListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved stories, newest first",
		Args:  cobra.NoArgs,
		RunE:  listProjects,
	}

	libraryShowCmd = &cobra.Command{
		Use:   "show ID",
		Short: "Show a saved story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd.Context(), func(ctx context.Context, lib *library.Store) error {
				p, err := lib.GetProject(ctx, args[0])
				if err != nil {
					return projectErr(args[0], err)
				}
				out, err := renderProject(p)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(os.Stdout, out)
				return err
			})
		},
	}

	libraryDeleteCmd = &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a saved story",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd.Context(), func(ctx context.Context, lib *library.Store) error {
				if err := lib.DeleteProject(ctx, args[0]); err != nil {
					return projectErr(args[0], err)
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}

	libraryFindCmd = &cobra.Command{
		Use:   "find QUERY",
		Short: "Fuzzy search saved stories by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd.Context(), func(ctx context.Context, lib *library.Store) error {
				found, err := lib.FindProjects(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				return printProjects(found)
			})
		},
	}

	libraryImportCmd = &cobra.Command{
		Use:   "import DIR",
		Short: "Save every text and markdown file under DIR as a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFromConfig()
			if err != nil {
				return err
			}
			return withLibrary(cmd.Context(), func(ctx context.Context, lib *library.Store) error {
				n, err := importStories(ctx, lib, utils.ExpandPath(args[0]), settings)
				if err != nil {
					return err
				}
				fmt.Printf("Imported %d stories\n", n)
				return nil
			})
		},
	}

	libraryNarrateCmd = &cobra.Command{
		Use:   "narrate ID",
		Short: "Narrate a saved story with its saved settings",
		Args:  cobra.ExactArgs(1),
		RunE:  narrateProject,
	}
)

func init() {
	libraryNarrateCmd.Flags().StringVarP(&opts.output, "output", "o", "", "export to this file or directory")
	libraryNarrateCmd.Flags().StringVar(&opts.format, "format", "", "export format: wav or mp3")
	libraryNarrateCmd.Flags().BoolVar(&opts.noPlay, "no-play", false, "do not play the narration")
	libraryNarrateCmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "always call the speech service")

	libraryCmd.AddCommand(libraryListCmd, libraryShowCmd, libraryDeleteCmd, libraryFindCmd, libraryImportCmd, libraryNarrateCmd)
}

func openLibrary() (*library.Store, error) {
	return library.Open(utils.ExpandPath(viper.GetString("library.path")))
}

func withLibrary(ctx context.Context, fn func(context.Context, *library.Store) error) error {
	lib, err := openLibrary()
	if err != nil {
		return err
	}
	defer lib.Close() //nolint:errcheck
	return fn(ctx, lib)
}

func projectErr(id string, err error) error {
	if errors.Is(err, library.ErrNotFound) {
		return fmt.Errorf("no saved story with id %q", id)
	}
	return err
}

// saveDraft keeps the last narrated text so a bare `dastaan` can pick it up.
func saveDraft(ctx context.Context, text string, settings ttypes.GenerationSettings) {
	err := withLibrary(ctx, func(ctx context.Context, lib *library.Store) error {
		return lib.SaveDraft(ctx, library.Draft{Text: text, Settings: settings})
	})
	if err != nil {
		log.Warn("Could not save draft", "error", err)
	}
}

func saveProject(ctx context.Context, content string, settings ttypes.GenerationSettings) error {
	return withLibrary(ctx, func(ctx context.Context, lib *library.Store) error {
		p, err := lib.SaveProject(ctx, content, settings)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %q as %s\n", p.Title, shortID(p.ID))
		return nil
	})
}

var storyExtensions = []string{"*.txt", "*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown"}

// importStories saves each story file under dir as a project, titled by its
// prepared text.
func importStories(ctx context.Context, lib *library.Store, dir string, settings ttypes.GenerationSettings) (int, error) {
	ch, err := gitcha.FindFilesExcept(dir, storyExtensions, nil)
	if err != nil {
		return 0, fmt.Errorf("unable to search %s: %w", dir, err)
	}

	n := 0
	for res := range ch {
		b, err := os.ReadFile(res.Path)
		if err != nil {
			log.Warn("Skipping unreadable file", "path", res.Path, "error", err)
			continue
		}
		content := string(b)
		if utils.IsMarkdownFile(res.Path) {
			content = string(utils.RemoveFrontmatter(b))
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if _, err := lib.SaveProject(ctx, content, settings); err != nil {
			return n, err
		}
		log.Debug("Imported story", "path", res.Path)
		n++
	}
	return n, nil
}

func listProjects(cmd *cobra.Command, _ []string) error {
	return withLibrary(cmd.Context(), func(ctx context.Context, lib *library.Store) error {
		projects, err := lib.ListProjects(ctx)
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Println("No saved stories yet. Save one with dastaan FILE --save.")
			return nil
		}
		return printProjects(projects)
	})
}

func printProjects(projects []library.Project) error {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "TITLE", "VOICE", "SAVED")
	for _, p := range projects {
		t.Row(shortID(p.ID), p.Title, fmt.Sprintf("%s · %s", p.Settings.Voice, p.Settings.Tone), humanize.Time(p.Time()))
	}
	_, err := fmt.Fprintln(os.Stdout, t.Render())
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// renderProject renders a saved story as markdown for the terminal.
func renderProject(p library.Project) (string, error) {
	style := "auto"
	if !isTerminal(os.Stdout) {
		style = "notty"
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(int(width)), //nolint:gosec
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	fmt.Fprintf(&b, "*%s · %s · %d kbps · saved %s*\n\n", p.Settings.Voice, p.Settings.Tone.Label(), p.Settings.Quality, humanize.Time(p.Time()))
	b.WriteString(p.Content)

	out, err := r.Render(b.String())
	if err != nil {
		return "", fmt.Errorf("unable to render story: %w", err)
	}
	return out, nil
}

func narrateProject(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var p library.Project
	err := withLibrary(ctx, func(ctx context.Context, lib *library.Store) error {
		var err error
		p, err = lib.GetProject(ctx, args[0])
		return projectErr(args[0], err)
	})
	if err != nil {
		return err
	}

	settings := p.Settings
	if err := settings.Validate(); err != nil {
		settings = ttypes.DefaultSettings()
	}
	text := prepareText(p.Content, "", false)

	app, err := newNarrationApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.ensureCredential(ctx); err != nil {
		return withGuidance(err, false)
	}

	result, err := app.narrate(ctx, text, settings, p.Title)
	if err != nil {
		return withGuidance(err, app.interactive)
	}
	if opts.output != "" {
		if _, err := app.export(ctx, result, opts.output); err != nil {
			return withGuidance(err, false)
		}
	}
	app.waitPlayback(ctx, result)
	return nil
}
