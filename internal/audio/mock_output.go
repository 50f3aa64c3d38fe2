package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockOutput implements Output for testing purposes.
// It simulates playback without producing sound.
type MockOutput struct {
	sampleRate  int
	delayFactor float64 // Scales simulated playback time; < 1.0 plays faster

	// Test configuration
	failNext atomic.Bool

	mu      sync.Mutex
	handles []*MockHandle
}

// NewMockOutput creates a mock output. delayFactor scales the simulated
// duration of every sound.
func NewMockOutput(sampleRate int, delayFactor float64) *MockOutput {
	if delayFactor <= 0 {
		delayFactor = 1.0
	}
	return &MockOutput{sampleRate: sampleRate, delayFactor: delayFactor}
}

// FailNext makes the next NewHandle call return an error.
func (m *MockOutput) FailNext() {
	m.failNext.Store(true)
}

// NewHandle implements Output.
func (m *MockOutput) NewHandle(samples []float32, loop bool) (Handle, error) {
	if m.failNext.Swap(false) {
		return nil, errors.New("simulated output error")
	}
	if len(samples) == 0 {
		return nil, errors.New("audio data is empty")
	}

	d := time.Duration(len(samples)) * time.Second / time.Duration(m.sampleRate)
	h := &MockHandle{
		Samples:  samples,
		Loop:     loop,
		duration: time.Duration(float64(d) * m.delayFactor),
		volume:   1.0,
	}

	m.mu.Lock()
	m.handles = append(m.handles, h)
	m.mu.Unlock()
	return h, nil
}

// Handles returns every handle created so far, in order.
func (m *MockOutput) Handles() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockHandle(nil), m.handles...)
}

// MockHandle is a simulated sound.
type MockHandle struct {
	Samples []float32
	Loop    bool

	duration time.Duration

	mu        sync.Mutex
	volume    float64
	startedAt time.Time
	started   bool
	stopped   bool

	playCount atomic.Int64
	stopCount atomic.Int64
}

func (h *MockHandle) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.started = true
	h.startedAt = time.Now()
	h.playCount.Add(1)
}

func (h *MockHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		h.stopCount.Add(1)
	}
	return nil
}

func (h *MockHandle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started || h.stopped {
		return false
	}
	return h.Loop || time.Since(h.startedAt) < h.duration
}

func (h *MockHandle) SetVolume(volume float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = volume
}

// Volume returns the last volume set.
func (h *MockHandle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// Stopped reports whether Stop was called.
func (h *MockHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// PlayCount returns how often Play was called.
func (h *MockHandle) PlayCount() int64 { return h.playCount.Load() }

// StopCount returns how often Stop took effect.
func (h *MockHandle) StopCount() int64 { return h.stopCount.Load() }
