package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Playback plays merged narration with optional background music. It owns at
// most one narration handle and one music handle; starting new playback
// releases the previous ones first.
type Playback struct {
	output Output
	music  MusicLoader

	pollInterval time.Duration

	mu        sync.Mutex
	narration Handle
	bg        Handle
	run       *playbackRun
}

// playbackRun is the done event of one Play call.
type playbackRun struct {
	done chan struct{}
	once sync.Once
}

func (r *playbackRun) finish() {
	r.once.Do(func() { close(r.done) })
}

// NewPlayback creates a playback controller. music may be nil when background
// music is not supported.
func NewPlayback(output Output, music MusicLoader) *Playback {
	return &Playback{
		output:       output,
		music:        music,
		pollInterval: 50 * time.Millisecond,
	}
}

// Play stops whatever is playing, then plays buf. When musicRef is non-empty
// the referenced track loops quietly underneath until narration ends. The
// returned channel is closed exactly once, when narration finishes or is
// stopped. Nothing starts if ctx is done by the time the music has loaded.
func (p *Playback) Play(ctx context.Context, buf *AudioBuffer, musicRef string) (<-chan struct{}, error) {
	if buf == nil || buf.Length() == 0 {
		return nil, errors.New("no audio to play")
	}

	p.Stop()

	narration, err := p.output.NewHandle(buf.Interleaved(), false)
	if err != nil {
		return nil, fmt.Errorf("failed to create narration player: %w", err)
	}

	var bg Handle
	if musicRef != "" && p.music != nil {
		samples, err := p.music.Load(ctx, musicRef)
		if err != nil {
			// Narration still plays without music.
			log.Warn("Background music unavailable", "ref", musicRef, "error", err)
		} else if bg, err = p.output.NewHandle(samples, true); err != nil {
			log.Warn("Failed to create music player", "error", err)
			bg = nil
		}
	}

	run := &playbackRun{done: make(chan struct{})}

	p.mu.Lock()
	if err := ctx.Err(); err != nil {
		p.mu.Unlock()
		releaseHandles(narration, bg)
		return nil, err
	}
	prev := p.run
	p.releaseLocked()
	p.narration = narration
	p.bg = bg
	p.run = run
	p.mu.Unlock()

	if prev != nil {
		prev.finish()
	}

	if bg != nil {
		bg.SetVolume(MusicVolume)
		bg.Play()
	}
	narration.Play()

	go p.watch(run, narration)

	log.Debug("Playback started", "duration", buf.Duration(), "music", musicRef != "")
	return run.done, nil
}

// watch resolves run once narration has drained and releases its handles.
func (p *Playback) watch(run *playbackRun, narration Handle) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-run.done:
			return
		case <-ticker.C:
			if narration.IsPlaying() {
				continue
			}
			p.mu.Lock()
			if p.run == run {
				p.releaseLocked()
			}
			p.mu.Unlock()
			run.finish()
			return
		}
	}
}

// Stop stops narration and music and resolves the current done event.
func (p *Playback) Stop() {
	p.mu.Lock()
	run := p.run
	p.releaseLocked()
	p.mu.Unlock()

	if run != nil {
		run.finish()
	}
}

// StopRun stops playback only if done belongs to the current run. Stopping a
// run that has already been replaced leaves the newer one playing.
func (p *Playback) StopRun(done <-chan struct{}) {
	p.mu.Lock()
	run := p.run
	if run == nil || (<-chan struct{})(run.done) != done {
		p.mu.Unlock()
		return
	}
	p.releaseLocked()
	p.mu.Unlock()

	run.finish()
}

// IsPlaying reports whether narration is playing.
func (p *Playback) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.narration != nil && p.narration.IsPlaying()
}

func (p *Playback) releaseLocked() {
	if p.narration != nil {
		if err := p.narration.Stop(); err != nil {
			log.Debug("Failed to stop narration", "error", err)
		}
		p.narration = nil
	}
	if p.bg != nil {
		if err := p.bg.Stop(); err != nil {
			log.Debug("Failed to stop background music", "error", err)
		}
		p.bg = nil
	}
	p.run = nil
}

func releaseHandles(handles ...Handle) {
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := h.Stop(); err != nil {
			log.Debug("Failed to release player", "error", err)
		}
	}
}
