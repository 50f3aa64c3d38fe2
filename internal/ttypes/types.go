// Package ttypes contains shared types and interfaces for the narration system.
// It sits below tts, engines, audio and cache so they can share it without import cycles.
package ttypes

import (
	"context"
	"fmt"
	"strings"
)

// Audio format produced by the speech service.
const (
	// SampleRate is the sample rate of generated speech in Hz
	SampleRate = 24000
	// Channels is the number of audio channels (1 = mono)
	Channels = 1
	// BitDepth is the bit depth per sample
	BitDepth = 16
	// BytesPerSample is the number of bytes per sample
	BytesPerSample = BitDepth / 8
)

// Voice is the abstract narrator voice identifier.
type Voice string

const (
	VoiceKore   Voice = "kore"
	VoicePuck   Voice = "puck"
	VoiceCharon Voice = "charon"
	VoiceFenrir Voice = "fenrir"
	VoiceZephyr Voice = "zephyr"
)

// Voices lists the supported voices in display order.
func Voices() []Voice {
	return []Voice{VoiceKore, VoicePuck, VoiceCharon, VoiceFenrir, VoiceZephyr}
}

// Tone is the narrator tone.
type Tone string

const (
	ToneBedtime    Tone = "bedtime"
	ToneDramatic   Tone = "dramatic"
	ToneCalm       Tone = "calm"
	ToneReflective Tone = "reflective"
)

// Tones lists the supported tones in display order.
func Tones() []Tone {
	return []Tone{ToneBedtime, ToneDramatic, ToneCalm, ToneReflective}
}

// Label returns the human readable tone name.
func (t Tone) Label() string {
	switch t {
	case ToneBedtime:
		return "Bedtime Story (Gentle & Slow)"
	case ToneDramatic:
		return "Dramatic (Expressive & Cinematic)"
	case ToneCalm:
		return "Calm & Steady (Audiobook Style)"
	case ToneReflective:
		return "Reflective & Philosophical"
	default:
		return string(t)
	}
}

// ParseTone resolves a tone id, ignoring case.
func ParseTone(s string) (Tone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range Tones() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// Quality values accepted for MP3 export, in kbps.
var Qualities = []int{24, 48, 96, 128}

// ValidQuality reports whether kbps is an accepted MP3 bitrate.
func ValidQuality(kbps int) bool {
	for _, q := range Qualities {
		if q == kbps {
			return true
		}
	}
	return false
}

// GenerationSettings is the per-run narration configuration.
// It is passed by value so every run works on its own snapshot.
type GenerationSettings struct {
	Voice           Voice  `json:"voice" yaml:"voice" mapstructure:"voice"`
	Tone            Tone   `json:"tone" yaml:"tone" mapstructure:"tone"`
	BackgroundMusic string `json:"backgroundMusic" yaml:"music" mapstructure:"music"`
	Quality         int    `json:"quality" yaml:"quality" mapstructure:"quality"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() GenerationSettings {
	return GenerationSettings{
		Voice:   VoiceZephyr,
		Tone:    ToneCalm,
		Quality: 128,
	}
}

// Validate checks the tone and quality. Unknown voices are allowed; the
// speech client falls back to its default voice for them.
func (s GenerationSettings) Validate() error {
	if _, err := ParseTone(string(s.Tone)); err != nil {
		return err
	}
	if !ValidQuality(s.Quality) {
		return fmt.Errorf("quality must be one of %v kbps, got %d", Qualities, s.Quality)
	}
	return nil
}

// State represents the narration state
type State int

const (
	// StateIdle indicates no narration is running
	StateIdle State = iota

	// StateGenerating indicates chunks are being generated
	StateGenerating

	// StatePlaying indicates merged audio is playing
	StatePlaying

	// StateError indicates the last run failed
	StateError
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Progress reports how far a narration run has got.
type Progress struct {
	Current int // Chunks completed
	Total   int // Total number of chunks
}

// PercentComplete returns the completion percentage (0-100)
func (p Progress) PercentComplete() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// ProgressFunc receives progress after every completed chunk.
type ProgressFunc func(Progress)

// SpeechGenerator produces base64 encoded PCM for one chunk of text.
type SpeechGenerator interface {
	// Generate synthesizes one chunk. Retries happen inside the implementation;
	// the returned error is final.
	Generate(ctx context.Context, text string, settings GenerationSettings) (string, error)
}

// AudioCache caches decoded chunk PCM keyed by chunk identity.
type AudioCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, audio []byte) error
	Delete(key string) error
}
