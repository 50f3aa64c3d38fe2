package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Output creates playback handles on the process audio device.
type Output interface {
	// NewHandle prepares samples for playback. When loop is true the samples
	// repeat until the handle is stopped.
	NewHandle(samples []float32, loop bool) (Handle, error)
}

// Handle is one playing sound.
type Handle interface {
	Play()
	Stop() error
	IsPlaying() bool
	SetVolume(volume float64)
}

// OtoOutput is the oto/v3 backed Output. oto allows a single context per
// process, so create one OtoOutput and share it.
type OtoOutput struct {
	context    *oto.Context
	sampleRate int
	channels   int
}

var (
	otoOnce   sync.Once
	otoOutput *OtoOutput
	otoErr    error
)

// OpenOutput returns the process wide output, creating it on first use.
func OpenOutput(sampleRate, channels int) (*OtoOutput, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   100 * time.Millisecond,
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready

		otoOutput = &OtoOutput{context: ctx, sampleRate: sampleRate, channels: channels}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoOutput.sampleRate != sampleRate || otoOutput.channels != channels {
		return nil, fmt.Errorf("audio output already opened at %d Hz/%d ch", otoOutput.sampleRate, otoOutput.channels)
	}
	return otoOutput, nil
}

// NewHandle implements Output.
func (o *OtoOutput) NewHandle(samples []float32, loop bool) (Handle, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio data is empty")
	}

	// Keep the encoded bytes referenced by the handle for the whole playback.
	data := float32ToBytes(samples)
	var r io.Reader = bytes.NewReader(data)
	if loop {
		r = &loopReader{data: data}
	}

	return &otoHandle{data: data, player: o.context.NewPlayer(r)}, nil
}

type otoHandle struct {
	mu     sync.Mutex
	data   []byte
	player *oto.Player
}

func (h *otoHandle) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.player != nil {
		h.player.Play()
	}
}

func (h *otoHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.player == nil {
		return nil
	}
	h.player.Pause()
	err := h.player.Close()
	h.player = nil
	h.data = nil
	return err
}

func (h *otoHandle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.player != nil && h.player.IsPlaying()
}

func (h *otoHandle) SetVolume(volume float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.player != nil {
		h.player.SetVolume(volume)
	}
}

// loopReader repeats data forever.
type loopReader struct {
	data []byte
	pos  int
}

func (l *loopReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		c := copy(p[n:], l.data[l.pos:])
		n += c
		l.pos = (l.pos + c) % len(l.data)
	}
	return n, nil
}

func float32ToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
