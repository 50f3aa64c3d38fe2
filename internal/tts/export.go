package tts

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dastaan/dastaan/internal/audio"
	"github.com/dastaan/dastaan/internal/ttypes"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Format is an export container.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// ParseFormat accepts "wav" or "mp3" in any case, with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatWAV, FormatMP3:
		return f, nil
	default:
		return "", ttypes.NewError(ttypes.KindValidation, fmt.Sprintf("unsupported export format %q", s), nil)
	}
}

// FormatFromPath picks the format from a file extension, falling back to def.
func FormatFromPath(path string, def Format) Format {
	if f, err := ParseFormat(filepath.Ext(path)); err == nil {
		return f
	}
	return def
}

// MimeType returns the MIME type of the container.
func (f Format) MimeType() string {
	if f == FormatMP3 {
		return audio.MP3MimeType
	}
	return audio.WAVMimeType
}

// Export encodes the last published narration. kbps is used for MP3 only.
func (n *Narrator) Export(ctx context.Context, format Format, kbps int) ([]byte, error) {
	result := n.LastResult()
	if result == nil {
		return nil, ttypes.ErrNothingToExport
	}
	return EncodeResult(ctx, result, format, kbps, n.encoder)
}

// EncodeResult encodes result into format. encoder may be nil for WAV.
func EncodeResult(ctx context.Context, result *Result, format Format, kbps int, encoder MP3Encoder) ([]byte, error) {
	if result == nil || len(result.PCM) == 0 {
		return nil, ttypes.ErrNothingToExport
	}

	switch format {
	case FormatWAV:
		return audio.EncodeWAV(result.PCM, ttypes.SampleRate), nil
	case FormatMP3:
		if !ttypes.ValidQuality(kbps) {
			return nil, ttypes.NewError(ttypes.KindValidation, fmt.Sprintf("unsupported bitrate %d kbps", kbps), nil)
		}
		if encoder == nil {
			return nil, ttypes.ErrEncoderUnavailable
		}
		return encoder.EncodeMP3(ctx, result.PCM, ttypes.SampleRate, kbps)
	default:
		return nil, ttypes.NewError(ttypes.KindValidation, fmt.Sprintf("unsupported export format %q", format), nil)
	}
}

// ExportFilename names a download, e.g. Dastaan-Zephyr-calm-128kbps-1700000000000.mp3.
func ExportFilename(settings ttypes.GenerationSettings, format Format, kbps int, at time.Time) string {
	voice := cases.Title(language.Und).String(string(settings.Voice))
	if format == FormatMP3 {
		return fmt.Sprintf("Dastaan-%s-%s-%dkbps-%d.mp3", voice, settings.Tone, kbps, at.UnixMilli())
	}
	return fmt.Sprintf("Dastaan-%s-%s-%d.wav", voice, settings.Tone, at.UnixMilli())
}
