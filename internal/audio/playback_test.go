package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dastaan/dastaan/internal/ttypes"
)

type stubMusic struct {
	samples []float32
	err     error
	loads   atomic.Int32
}

func (m *stubMusic) Load(ctx context.Context, ref string) ([]float32, error) {
	m.loads.Add(1)
	return m.samples, m.err
}

// shortBuffer returns about 20ms of audio.
func shortBuffer() *AudioBuffer {
	return NewAudioBuffer(1, ttypes.SampleRate/50, ttypes.SampleRate)
}

func newTestPlayback(music MusicLoader) (*Playback, *MockOutput) {
	out := NewMockOutput(ttypes.SampleRate, 1.0)
	p := NewPlayback(out, music)
	p.pollInterval = 5 * time.Millisecond
	return p, out
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("done was not signalled")
	}
}

func TestPlayback_DoneWhenNarrationEnds(t *testing.T) {
	p, out := newTestPlayback(nil)

	done, err := p.Play(context.Background(), shortBuffer(), "")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !p.IsPlaying() {
		t.Error("should be playing")
	}

	waitDone(t, done)

	if p.IsPlaying() {
		t.Error("should not be playing after done")
	}
	handles := out.Handles()
	if len(handles) != 1 || handles[0].PlayCount() != 1 || !handles[0].Stopped() {
		t.Errorf("narration handle not played and released")
	}
}

func TestPlayback_MusicLoopsUnderNarrationAndIsReleased(t *testing.T) {
	music := &stubMusic{samples: make([]float32, 1000)}
	p, out := newTestPlayback(music)

	done, err := p.Play(context.Background(), shortBuffer(), "rain.mp3")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	handles := out.Handles()
	if len(handles) != 2 {
		t.Fatalf("handles = %d, want narration and music", len(handles))
	}
	bg := handles[1]
	if !bg.Loop {
		t.Error("music should loop")
	}
	if bg.Volume() != MusicVolume {
		t.Errorf("music volume = %v, want %v", bg.Volume(), MusicVolume)
	}
	if !bg.IsPlaying() {
		t.Error("music should be playing")
	}

	waitDone(t, done)

	if !bg.Stopped() {
		t.Error("music not released when narration ended")
	}
}

func TestPlayback_MusicFailureStillPlaysNarration(t *testing.T) {
	music := &stubMusic{err: errors.New("404")}
	p, out := newTestPlayback(music)

	done, err := p.Play(context.Background(), shortBuffer(), "https://example.com/missing.mp3")
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if n := len(out.Handles()); n != 1 {
		t.Errorf("handles = %d, want narration only", n)
	}
	waitDone(t, done)
}

func TestPlayback_NewPlayReleasesPrevious(t *testing.T) {
	music := &stubMusic{samples: make([]float32, 1000)}
	p, out := newTestPlayback(music)

	long := NewAudioBuffer(1, ttypes.SampleRate*10, ttypes.SampleRate)
	first, err := p.Play(context.Background(), long, "a.mp3")
	if err != nil {
		t.Fatal(err)
	}

	second, err := p.Play(context.Background(), shortBuffer(), "")
	if err != nil {
		t.Fatal(err)
	}

	// The first run resolves immediately when replaced.
	waitDone(t, first)

	handles := out.Handles()
	if !handles[0].Stopped() || !handles[1].Stopped() {
		t.Error("previous narration and music should be stopped")
	}

	waitDone(t, second)
}

func TestPlayback_StopResolvesOnce(t *testing.T) {
	p, _ := newTestPlayback(nil)

	long := NewAudioBuffer(1, ttypes.SampleRate*10, ttypes.SampleRate)
	done, err := p.Play(context.Background(), long, "")
	if err != nil {
		t.Fatal(err)
	}

	p.Stop()
	p.Stop()
	waitDone(t, done)

	// Give the watcher a chance to observe the stopped handle; a second
	// close would panic.
	time.Sleep(20 * time.Millisecond)
	if p.IsPlaying() {
		t.Error("still playing after Stop")
	}
}

func TestPlayback_Errors(t *testing.T) {
	p, out := newTestPlayback(nil)

	if _, err := p.Play(context.Background(), nil, ""); err == nil {
		t.Error("expected error for nil buffer")
	}
	if _, err := p.Play(context.Background(), NewAudioBuffer(1, 0, ttypes.SampleRate), ""); err == nil {
		t.Error("expected error for empty buffer")
	}

	out.FailNext()
	if _, err := p.Play(context.Background(), shortBuffer(), ""); err == nil {
		t.Error("expected error when output fails")
	}
}

func TestPlayback_StopRunIgnoresReplacedRun(t *testing.T) {
	p, out := newTestPlayback(nil)

	long := NewAudioBuffer(1, ttypes.SampleRate*10, ttypes.SampleRate)
	first, err := p.Play(context.Background(), long, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Play(context.Background(), long, "")
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, first)

	p.StopRun(first)

	select {
	case <-second:
		t.Fatal("stopping the replaced run ended the current one")
	default:
	}
	if handles := out.Handles(); handles[1].Stopped() {
		t.Error("current narration handle was stopped")
	}

	p.StopRun(second)
	waitDone(t, second)
	if p.IsPlaying() {
		t.Error("still playing after StopRun of the current run")
	}
}

func TestPlayback_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	music := &stubMusic{samples: make([]float32, 1000)}
	p, out := newTestPlayback(music)

	long := NewAudioBuffer(1, ttypes.SampleRate*10, ttypes.SampleRate)
	current, err := p.Play(context.Background(), long, "")
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	if _, err := p.Play(ctx, shortBuffer(), "rain.mp3"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	handles := out.Handles()
	for i, h := range handles[1:] {
		if h.IsPlaying() || h.PlayCount() != 0 {
			t.Errorf("handle %d of the abandoned run was started", i+1)
		}
	}
	// Play always releases the previous run before loading.
	waitDone(t, current)
}
