package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/audio"
	"github.com/dastaan/dastaan/internal/cache"
	"github.com/dastaan/dastaan/internal/ttypes"
)

// Result is the published output of one successful narration. It is never
// modified after publication.
type Result struct {
	// PCM is the raw 16-bit mono audio of all chunks in order
	PCM []byte

	// Audio is the decoded float buffer matching PCM
	Audio *audio.AudioBuffer

	// Settings is the snapshot the narration ran with
	Settings ttypes.GenerationSettings

	// Chunks are the text segments sent for generation
	Chunks []string

	// Done closes when playback of this result ends. Nil when not played.
	Done <-chan struct{}

	CreatedAt time.Time
}

// Duration returns the playing time of the result.
func (r *Result) Duration() time.Duration {
	return audio.DefaultPCMFormat().Duration(len(r.PCM))
}

// NarratorConfig wires the narrator's collaborators.
type NarratorConfig struct {
	// Generator produces base64 PCM for one chunk (required)
	Generator ttypes.SpeechGenerator

	// Cache stores decoded chunk PCM (optional)
	Cache ttypes.AudioCache

	// Player receives the merged buffer after a successful run (optional)
	Player Player

	// Encoder produces MP3 exports (optional)
	Encoder MP3Encoder

	// MaxChunkSize bounds chunk length in characters
	MaxChunkSize int

	// Model takes part in cache keys so audio from different models is not mixed
	Model string
}

// NarratorStats tracks narrator activity.
type NarratorStats struct {
	Narrations      int64
	ChunksGenerated int64
	CacheHits       int64
	ErrorCount      int64
	LastActivity    time.Time
}

// Narrator turns long text into one merged narration: it splits the text,
// generates each chunk in order, decodes and concatenates the audio, then
// publishes the result for playback and export.
//
// Runs never overlap. Starting a narration cancels the previous one, whose
// result is discarded.
type Narrator struct {
	chunker   *Chunker
	generator ttypes.SpeechGenerator
	cache     ttypes.AudioCache
	player    Player
	encoder   MP3Encoder
	model     string

	mu      sync.Mutex
	state   ttypes.State
	runID   uint64
	cancel  context.CancelFunc
	result  *Result
	lastErr error
	stats   NarratorStats
}

// NewNarrator creates a narrator from config.
func NewNarrator(config NarratorConfig) (*Narrator, error) {
	if config.Generator == nil {
		return nil, errors.New("narrator requires a speech generator")
	}

	return &Narrator{
		chunker:   NewChunker(config.MaxChunkSize),
		generator: config.Generator,
		cache:     config.Cache,
		player:    config.Player,
		encoder:   config.Encoder,
		model:     config.Model,
		state:     ttypes.StateIdle,
		stats:     NarratorStats{LastActivity: time.Now()},
	}, nil
}

// Narrate generates speech for text with settings. progress, when non-nil,
// is called after each chunk completes. Any failure aborts the whole run and
// leaves the previously published result in place. A run replaced by a newer
// Narrate call returns ttypes.ErrSuperseded.
func (n *Narrator) Narrate(ctx context.Context, text string, settings ttypes.GenerationSettings, progress ttypes.ProgressFunc) (*Result, error) {
	id, runCtx := n.begin(ctx)

	if err := settings.Validate(); err != nil {
		return nil, n.fail(id, runCtx, ttypes.NewError(ttypes.KindValidation, "invalid settings", err))
	}

	chunks := n.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, n.fail(id, runCtx, ttypes.NewError(ttypes.KindValidation, "nothing to narrate", ttypes.ErrEmptyText))
	}

	log.Info("Narration started", "chunks", len(chunks), "voice", settings.Voice, "tone", settings.Tone)

	var (
		pcm     []byte
		buffers = make([]*audio.AudioBuffer, 0, len(chunks))
	)
	for i, chunk := range chunks {
		if err := runCtx.Err(); err != nil {
			return nil, n.fail(id, runCtx, err)
		}

		data, buf, err := n.chunkAudio(runCtx, chunk, settings)
		if err != nil {
			return nil, n.fail(id, runCtx, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err))
		}

		pcm = append(pcm, data...)
		buffers = append(buffers, buf)

		if progress != nil {
			progress(ttypes.Progress{Current: i + 1, Total: len(chunks)})
		}
	}

	merged, err := audio.ConcatBuffers(buffers...)
	if err != nil {
		return nil, n.fail(id, runCtx, err)
	}

	result := &Result{
		PCM:       pcm,
		Audio:     merged,
		Settings:  settings,
		Chunks:    chunks,
		CreatedAt: time.Now(),
	}

	var playErr error
	if n.player != nil && n.current(id) {
		done, err := n.player.Play(runCtx, merged, settings.BackgroundMusic)
		switch {
		case err == nil:
			result.Done = done
		case runCtx.Err() != nil:
			log.Debug("Playback abandoned", "error", err)
			playErr = fmt.Errorf("playback: %w", err)
		default:
			// The narration itself succeeded and stays exportable.
			log.Error("Playback failed", "error", err)
			playErr = fmt.Errorf("playback: %w", err)
		}
	}

	n.mu.Lock()
	if n.runID != id {
		n.mu.Unlock()
		// A newer run may already own the player.
		if result.Done != nil {
			n.player.StopRun(result.Done)
		}
		return nil, ttypes.ErrSuperseded
	}
	n.result = result
	n.lastErr = nil
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.state = ttypes.StateIdle
	if result.Done != nil {
		n.state = ttypes.StatePlaying
	}
	n.stats.Narrations++
	n.stats.LastActivity = time.Now()
	n.mu.Unlock()

	log.Info("Narration complete", "chunks", len(chunks), "duration", result.Duration(), "bytes", len(pcm))

	if result.Done != nil {
		go func() {
			<-result.Done
			n.setState(id, ttypes.StateIdle)
		}()
	}

	return result, playErr
}

// chunkAudio returns raw and decoded PCM for one chunk, from cache when
// possible. Only audio that decodes is cached; a cached entry that no longer
// decodes is dropped and generated again.
func (n *Narrator) chunkAudio(ctx context.Context, chunk string, settings ttypes.GenerationSettings) ([]byte, *audio.AudioBuffer, error) {
	var key string
	if n.cache != nil {
		key = cache.ChunkKey(chunk, settings, n.model)
		if data, ok := n.cache.Get(key); ok {
			buf, err := audio.DecodeAudioData(data, ttypes.SampleRate, ttypes.Channels)
			if err == nil {
				n.mu.Lock()
				n.stats.CacheHits++
				n.mu.Unlock()
				return data, buf, nil
			}
			log.Warn("Dropping undecodable cached chunk", "key", key, "error", err)
			if err := n.cache.Delete(key); err != nil {
				log.Debug("Failed to delete cached chunk", "error", err)
			}
		}
	}

	encoded, err := n.generator.Generate(ctx, chunk, settings)
	if err != nil {
		return nil, nil, err
	}
	data, err := audio.DecodeBase64(encoded)
	if err != nil {
		return nil, nil, err
	}
	buf, err := audio.DecodeAudioData(data, ttypes.SampleRate, ttypes.Channels)
	if err != nil {
		return nil, nil, err
	}

	n.mu.Lock()
	n.stats.ChunksGenerated++
	n.mu.Unlock()

	if n.cache != nil {
		if err := n.cache.Put(key, data); err != nil {
			log.Warn("Failed to cache chunk audio", "error", err)
		}
	}
	return data, buf, nil
}

// begin invalidates any running narration and starts a new run.
func (n *Narrator) begin(ctx context.Context) (uint64, context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.runID++
	id := n.runID
	n.cancel = cancel
	n.state = ttypes.StateGenerating
	n.stats.LastActivity = time.Now()
	n.mu.Unlock()

	if n.player != nil {
		n.player.Stop()
	}
	return id, runCtx
}

// fail records err for run id unless a newer run has taken over.
func (n *Narrator) fail(id uint64, runCtx context.Context, err error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.runID != id {
		return ttypes.ErrSuperseded
	}

	cancelled := runCtx.Err() != nil && errors.Is(err, context.Canceled)
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}

	if cancelled {
		n.state = ttypes.StateIdle
		log.Info("Narration cancelled")
		return err
	}

	n.state = ttypes.StateError
	n.lastErr = err
	n.stats.ErrorCount++

	log.Error("Narration failed", "error", err)
	return err
}

func (n *Narrator) current(id uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.runID == id
}

func (n *Narrator) setState(id uint64, state ttypes.State) {
	n.mu.Lock()
	if n.runID == id {
		n.state = state
	}
	n.mu.Unlock()
}

// Cancel aborts a running narration and stops playback.
func (n *Narrator) Cancel() {
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	n.mu.Unlock()

	if n.player != nil {
		n.player.Stop()
	}
}

// State returns the narrator state.
func (n *Narrator) State() ttypes.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// LastResult returns the most recently published result, or nil.
func (n *Narrator) LastResult() *Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result
}

// LastError returns the error of the last failed run.
func (n *Narrator) LastError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastErr
}

// Stats returns narrator activity counters.
func (n *Narrator) Stats() NarratorStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}
