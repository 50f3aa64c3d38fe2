package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dastaan/dastaan/internal/ttypes"
)

// PCMFormat represents PCM audio format parameters
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultPCMFormat returns the format of generated speech
func DefaultPCMFormat() PCMFormat {
	return PCMFormat{
		SampleRate: ttypes.SampleRate,
		Channels:   ttypes.Channels,
		BitDepth:   ttypes.BitDepth,
	}
}

// FrameSize returns the number of bytes per frame (one sample for every channel)
func (f PCMFormat) FrameSize() int {
	return f.BitDepth / 8 * f.Channels
}

// Duration calculates the duration of dataLen bytes of PCM
func (f PCMFormat) Duration(dataLen int) time.Duration {
	if f.SampleRate == 0 || f.FrameSize() == 0 {
		return 0
	}
	frames := dataLen / f.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// DecodeBase64 decodes a standard base64 payload into raw bytes.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ttypes.NewError(ttypes.KindDecoding, "malformed base64 audio payload", err).
			WithContext("length", len(s))
	}
	return data, nil
}

// AudioBuffer holds deinterleaved float samples in [-1, 1).
type AudioBuffer struct {
	sampleRate int
	channels   [][]float32
}

// NewAudioBuffer allocates a silent buffer.
func NewAudioBuffer(channels, frames, sampleRate int) *AudioBuffer {
	b := &AudioBuffer{
		sampleRate: sampleRate,
		channels:   make([][]float32, channels),
	}
	for i := range b.channels {
		b.channels[i] = make([]float32, frames)
	}
	return b
}

// DecodeAudioData interprets data as interleaved 16-bit little-endian PCM and
// converts it to float samples. Data whose length is not a whole number of
// frames is rejected rather than truncated.
func DecodeAudioData(data []byte, sampleRate, channels int) (*AudioBuffer, error) {
	if channels <= 0 {
		return nil, ttypes.NewError(ttypes.KindDecoding, fmt.Sprintf("invalid channel count %d", channels), nil)
	}
	frameSize := 2 * channels
	if len(data)%frameSize != 0 {
		return nil, ttypes.NewError(ttypes.KindDecoding,
			fmt.Sprintf("PCM length %d is not aligned to %d-byte frames", len(data), frameSize), nil)
	}

	frames := len(data) / frameSize
	buf := NewAudioBuffer(channels, frames, sampleRate)
	for ch := 0; ch < channels; ch++ {
		out := buf.channels[ch]
		for i := 0; i < frames; i++ {
			off := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(data[off:]))
			out[i] = float32(sample) / 32768.0
		}
	}
	return buf, nil
}

// Length returns the number of frames.
func (b *AudioBuffer) Length() int {
	if b == nil || len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// NumberOfChannels returns the channel count.
func (b *AudioBuffer) NumberOfChannels() int {
	if b == nil {
		return 0
	}
	return len(b.channels)
}

// SampleRate returns the sample rate in Hz.
func (b *AudioBuffer) SampleRate() int {
	if b == nil {
		return 0
	}
	return b.sampleRate
}

// Channel returns the samples of channel i. The slice must not be modified.
func (b *AudioBuffer) Channel(i int) []float32 {
	return b.channels[i]
}

// Duration returns the playback length.
func (b *AudioBuffer) Duration() time.Duration {
	if b.SampleRate() == 0 {
		return 0
	}
	return time.Duration(b.Length()) * time.Second / time.Duration(b.sampleRate)
}

// Interleaved returns the samples frame by frame.
func (b *AudioBuffer) Interleaved() []float32 {
	n := b.NumberOfChannels()
	out := make([]float32, b.Length()*n)
	for ch, samples := range b.channels {
		for i, s := range samples {
			out[i*n+ch] = s
		}
	}
	return out
}

// ConcatBuffers joins buffers in order into a new buffer whose length is the
// sum of theirs. All buffers must share sample rate and channel count.
func ConcatBuffers(buffers ...*AudioBuffer) (*AudioBuffer, error) {
	if len(buffers) == 0 {
		return nil, ttypes.NewError(ttypes.KindDecoding, "no audio buffers to merge", nil)
	}

	first := buffers[0]
	total := 0
	for i, b := range buffers {
		if b.SampleRate() != first.SampleRate() || b.NumberOfChannels() != first.NumberOfChannels() {
			return nil, ttypes.NewError(ttypes.KindDecoding, "audio buffers have different formats", nil).
				WithContext("index", i)
		}
		total += b.Length()
	}

	merged := NewAudioBuffer(first.NumberOfChannels(), total, first.SampleRate())
	offset := 0
	for _, b := range buffers {
		for ch := range merged.channels {
			copy(merged.channels[ch][offset:], b.channels[ch])
		}
		offset += b.Length()
	}
	return merged, nil
}

// PCMToFloat32 converts 16-bit little-endian mono PCM to float samples.
func PCMToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}
	return out
}
