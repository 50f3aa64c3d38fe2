package audio

import (
	"bytes"
	"testing"

	"github.com/dastaan/dastaan/internal/ttypes"
)

func TestEncodeWAV_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate int
	}{
		{"empty", 0, ttypes.SampleRate},
		{"one second", 48000, ttypes.SampleRate},
		{"other rate", 4410, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := make([]byte, tt.size)
			for i := range pcm {
				pcm[i] = byte(i)
			}

			wav := EncodeWAV(pcm, tt.sampleRate)
			if len(wav) != WAVHeaderSize+tt.size {
				t.Fatalf("len = %d, want %d", len(wav), WAVHeaderSize+tt.size)
			}
			if !bytes.Equal(wav[WAVHeaderSize:], pcm) {
				t.Error("PCM not copied verbatim")
			}

			h, err := ReadWAVHeader(wav)
			if err != nil {
				t.Fatalf("ReadWAVHeader failed: %v", err)
			}
			want := WAVHeader{
				AudioFormat:   1,
				Channels:      1,
				SampleRate:    uint32(tt.sampleRate),
				ByteRate:      uint32(tt.sampleRate * 2),
				BlockAlign:    2,
				BitsPerSample: 16,
				DataSize:      uint32(tt.size),
			}
			if h != want {
				t.Errorf("header = %+v, want %+v", h, want)
			}
		})
	}
}

func TestEncodeWAV_RIFFSize(t *testing.T) {
	wav := EncodeWAV(make([]byte, 100), ttypes.SampleRate)
	if got := uint32(wav[4]) | uint32(wav[5])<<8 | uint32(wav[6])<<16 | uint32(wav[7])<<24; got != 136 {
		t.Errorf("RIFF size = %d, want 136", got)
	}
}

func TestReadWAVHeader_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", make([]byte, 10)},
		{"no signature", make([]byte, WAVHeaderSize)},
	}

	for _, tt := range tests {
		if _, err := ReadWAVHeader(tt.data); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}
