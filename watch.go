package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 300 * time.Millisecond

// watch narrates path now and again after every change until ctx ends. A
// change while a narration runs supersedes it.
func (a *narrationApp) watch(ctx context.Context, path string, settings ttypes.GenerationSettings) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}

	// concurrent runs cannot share the progress view
	a.interactive = false
	a.console.Info("Watching for changes", "file", path)

	var wg sync.WaitGroup
	defer wg.Wait()

	start := func() {
		b, err := os.ReadFile(path)
		if err != nil {
			a.console.Error("Could not read file", "error", err)
			return
		}
		text := prepareText(string(b), path, a.opts.markdown)

		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runWatched(ctx, text, settings, filepath.Base(path))
		}()
	}

	start()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			a.narrator.Cancel()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			debounce = time.After(watchDebounce)

		case <-debounce:
			debounce = nil
			a.console.Info("File changed, narrating again", "file", filepath.Base(path))
			start()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func (a *narrationApp) runWatched(ctx context.Context, text string, settings ttypes.GenerationSettings, source string) {
	result, err := a.narrate(ctx, text, settings, source)
	switch {
	case errors.Is(err, ttypes.ErrSuperseded):
		log.Debug("Narration superseded", "source", source)
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		a.console.Error("Narration failed", "error", withGuidance(err, false))
		return
	}

	if a.opts.output != "" {
		if _, err := a.export(ctx, result, a.opts.output); err != nil {
			a.console.Error("Export failed", "error", err)
		}
	}
	a.waitPlayback(ctx, result)
}
