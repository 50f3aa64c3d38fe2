package audio

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// MusicVolume is the level background music plays at under narration.
const MusicVolume = 0.15

// MusicLoader turns a background music reference into float samples at the
// output sample rate.
type MusicLoader interface {
	Load(ctx context.Context, ref string) ([]float32, error)
}

// FFmpegMusicLoader decodes music files or URLs with ffmpeg. The last decoded
// track is kept so replaying with the same reference does not decode again.
type FFmpegMusicLoader struct {
	ffmpeg     *FFmpeg
	sampleRate int

	mu      sync.Mutex
	lastRef string
	last    []float32
}

// NewFFmpegMusicLoader creates a loader producing samples at sampleRate.
func NewFFmpegMusicLoader(ffmpeg *FFmpeg, sampleRate int) *FFmpegMusicLoader {
	return &FFmpegMusicLoader{ffmpeg: ffmpeg, sampleRate: sampleRate}
}

// Load implements MusicLoader.
func (l *FFmpegMusicLoader) Load(ctx context.Context, ref string) ([]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ref == l.lastRef && l.last != nil {
		return l.last, nil
	}

	pcm, err := l.ffmpeg.DecodeToPCM(ctx, ref, l.sampleRate)
	if err != nil {
		return nil, err
	}
	l.lastRef = ref
	l.last = PCMToFloat32(pcm)

	log.Debug("Loaded background music", "ref", ref, "samples", len(l.last))
	return l.last, nil
}
