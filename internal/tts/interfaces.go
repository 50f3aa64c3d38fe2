package tts

import (
	"context"

	"github.com/dastaan/dastaan/internal/audio"
)

// Player plays a merged narration buffer, optionally over looping background
// music. The returned channel closes once when narration ends or is stopped.
// StopRun stops playback only while done is still the current run.
type Player interface {
	Play(ctx context.Context, buf *audio.AudioBuffer, musicRef string) (<-chan struct{}, error)
	Stop()
	StopRun(done <-chan struct{})
}

// MP3Encoder turns mono 16-bit PCM into an MP3 stream.
type MP3Encoder interface {
	EncodeMP3(ctx context.Context, pcm []byte, sampleRate, kbps int) ([]byte, error)
}

// Compile-time checks for the production implementations.
var (
	_ Player     = (*audio.Playback)(nil)
	_ MP3Encoder = (*audio.FFmpeg)(nil)
)
