package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dastaan/dastaan/internal/audio"
	"github.com/dastaan/dastaan/internal/cache"
	"github.com/dastaan/dastaan/internal/ttypes"
)

const threeSentences = "پہلا جملہ۔ دوسرا جملہ۔ تیسرا جملہ۔"

// mockGenerator returns PCM of the configured sizes, one per call.
type mockGenerator struct {
	sizes []int
	fail  map[int]error  // call index -> error
	raw   map[int]string // call index -> payload
	hold  map[int]bool   // call index -> wait for cancellation

	entered chan struct{}
	calls   int32
}

func (g *mockGenerator) Generate(ctx context.Context, text string, settings ttypes.GenerationSettings) (string, error) {
	i := int(atomic.AddInt32(&g.calls, 1)) - 1

	if g.entered != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
	}
	if g.hold[i] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err, ok := g.fail[i]; ok {
		return "", err
	}
	if raw, ok := g.raw[i]; ok {
		return raw, nil
	}

	size := 480
	if i < len(g.sizes) {
		size = g.sizes[i]
	}
	return base64.StdEncoding.EncodeToString(pcmPattern(size)), nil
}

func pcmPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 31)
	}
	return data
}

type mockPlayer struct {
	mu      sync.Mutex
	plays   int
	stops   int
	lastBuf *audio.AudioBuffer
	music   string
	done    chan struct{}
	err     error
}

func (p *mockPlayer) Play(ctx context.Context, buf *audio.AudioBuffer, musicRef string) (<-chan struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.plays++
	p.lastBuf = buf
	p.music = musicRef
	p.done = make(chan struct{})
	return p.done, nil
}

func (p *mockPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}

func (p *mockPlayer) StopRun(done <-chan struct{}) {
	p.mu.Lock()
	current := p.done
	p.mu.Unlock()
	if current != nil && (<-chan struct{})(current) == done {
		p.Stop()
	}
}

// reentrantPlayer runs onPlay the first time Play is called, before it
// starts anything. Like Playback it refuses to start once ctx is done and
// replaces the previous run when it does start.
type reentrantPlayer struct {
	mockPlayer
	onPlay    func()
	ignoreCtx bool
}

func (p *reentrantPlayer) Play(ctx context.Context, buf *audio.AudioBuffer, musicRef string) (<-chan struct{}, error) {
	if hook := p.onPlay; hook != nil {
		p.onPlay = nil
		hook()
	}
	if !p.ignoreCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	p.mu.Lock()
	if p.done != nil && !p.ignoreCtx {
		close(p.done)
	}
	p.plays++
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()
	return done, nil
}

type mockEncoder struct {
	kbps int
}

func (e *mockEncoder) EncodeMP3(ctx context.Context, pcm []byte, sampleRate, kbps int) ([]byte, error) {
	e.kbps = kbps
	return []byte{0xFF, 0xFB, byte(len(pcm) % 256)}, nil
}

func newTestNarrator(t *testing.T, gen *mockGenerator, maxChunk int) *Narrator {
	t.Helper()
	n, err := NewNarrator(NarratorConfig{Generator: gen, MaxChunkSize: maxChunk, Model: "test"})
	if err != nil {
		t.Fatalf("NewNarrator failed: %v", err)
	}
	return n
}

func TestNewNarrator_RequiresGenerator(t *testing.T) {
	if _, err := NewNarrator(NarratorConfig{}); err == nil {
		t.Error("expected error without generator")
	}
}

func TestNarrate_MergesChunksInOrder(t *testing.T) {
	gen := &mockGenerator{sizes: []int{1000, 2000, 1500}}
	n := newTestNarrator(t, gen, 12)

	var progress []ttypes.Progress
	result, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), func(p ttypes.Progress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}

	if len(result.Chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(result.Chunks))
	}
	if len(result.PCM) != 4500 {
		t.Errorf("PCM bytes = %d, want 4500", len(result.PCM))
	}
	if result.Audio.Length() != 2250 {
		t.Errorf("samples = %d, want 2250", result.Audio.Length())
	}

	want := append(append(pcmPattern(1000), pcmPattern(2000)...), pcmPattern(1500)...)
	for i := range want {
		if result.PCM[i] != want[i] {
			t.Fatalf("PCM differs at byte %d", i)
		}
	}

	if len(progress) != 3 {
		t.Fatalf("progress callbacks = %d, want 3", len(progress))
	}
	for i, p := range progress {
		if p.Current != i+1 || p.Total != 3 {
			t.Errorf("progress[%d] = %+v", i, p)
		}
	}

	if n.LastResult() != result {
		t.Error("result not published")
	}
	if n.State() != ttypes.StateIdle {
		t.Errorf("state = %v, want idle", n.State())
	}
}

func TestNarrate_SingleChunk(t *testing.T) {
	gen := &mockGenerator{}
	n := newTestNarrator(t, gen, 0)

	result, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0] != threeSentences {
		t.Errorf("chunks = %q", result.Chunks)
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1", gen.calls)
	}
}

func TestNarrate_EmptyText(t *testing.T) {
	gen := &mockGenerator{}
	n := newTestNarrator(t, gen, 0)

	_, err := n.Narrate(context.Background(), "  \n ", ttypes.DefaultSettings(), nil)
	if kind, _ := ttypes.KindOf(err); kind != ttypes.KindValidation {
		t.Errorf("kind = %v, want validation", kind)
	}
	if !errors.Is(err, ttypes.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times", gen.calls)
	}
}

func TestNarrate_InvalidSettings(t *testing.T) {
	n := newTestNarrator(t, &mockGenerator{}, 0)

	settings := ttypes.DefaultSettings()
	settings.Quality = 64
	_, err := n.Narrate(context.Background(), threeSentences, settings, nil)
	if kind, _ := ttypes.KindOf(err); kind != ttypes.KindValidation {
		t.Errorf("kind = %v, want validation (err %v)", kind, err)
	}
}

func TestNarrate_FailureAbortsWithoutPublishing(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
		kind ttypes.ErrorKind
	}{
		{
			name: "generation error",
			gen:  &mockGenerator{fail: map[int]error{1: ttypes.NewError(ttypes.KindQuota, "quota", nil)}},
			kind: ttypes.KindQuota,
		},
		{
			name: "bad base64",
			gen:  &mockGenerator{raw: map[int]string{1: "%%%"}},
			kind: ttypes.KindDecoding,
		},
		{
			name: "odd byte length",
			gen:  &mockGenerator{sizes: []int{100, 101, 100}},
			kind: ttypes.KindDecoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNarrator(t, tt.gen, 12)

			var progress int
			_, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), func(ttypes.Progress) {
				progress++
			})
			if kind, _ := ttypes.KindOf(err); kind != tt.kind {
				t.Errorf("kind = %v, want %v (err %v)", kind, tt.kind, err)
			}
			if progress != 1 {
				t.Errorf("progress callbacks = %d, want 1", progress)
			}
			if tt.gen.calls != 2 {
				t.Errorf("generator calls = %d, want 2", tt.gen.calls)
			}
			if n.LastResult() != nil {
				t.Error("failed run published a result")
			}
			if n.State() != ttypes.StateError {
				t.Errorf("state = %v, want error", n.State())
			}
			if n.LastError() == nil {
				t.Error("LastError not recorded")
			}
		})
	}
}

func TestNarrate_FailureKeepsPreviousResult(t *testing.T) {
	gen := &mockGenerator{}
	n := newTestNarrator(t, gen, 0)

	first, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("first Narrate failed: %v", err)
	}

	gen.fail = map[int]error{1: ttypes.NewError(ttypes.KindGeneration, "boom", nil)}
	if _, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil); err == nil {
		t.Fatal("expected second run to fail")
	}

	if n.LastResult() != first {
		t.Error("failed run replaced the published result")
	}
}

func TestNarrate_SupersededRunDoesNotPublish(t *testing.T) {
	gen := &mockGenerator{hold: map[int]bool{0: true}, entered: make(chan struct{}, 1)}
	n := newTestNarrator(t, gen, 0)

	firstErr := make(chan error, 1)
	go func() {
		_, err := n.Narrate(context.Background(), "پرانا متن۔", ttypes.DefaultSettings(), nil)
		firstErr <- err
	}()

	select {
	case <-gen.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never reached the generator")
	}

	second, err := n.Narrate(context.Background(), "نیا متن۔", ttypes.DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("second Narrate failed: %v", err)
	}

	select {
	case err := <-firstErr:
		if !errors.Is(err, ttypes.ErrSuperseded) {
			t.Errorf("first run err = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not finish")
	}

	if n.LastResult() != second {
		t.Error("published result is not the newest run")
	}
	if second.Chunks[0] != "نیا متن۔" {
		t.Errorf("chunks = %q", second.Chunks)
	}
}

func TestNarrate_Cancel(t *testing.T) {
	gen := &mockGenerator{hold: map[int]bool{0: true}, entered: make(chan struct{}, 1)}
	n := newTestNarrator(t, gen, 0)

	errc := make(chan error, 1)
	go func() {
		_, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil)
		errc <- err
	}()

	<-gen.entered
	n.Cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not stop the run")
	}

	if n.State() != ttypes.StateIdle {
		t.Errorf("state = %v, want idle", n.State())
	}
	if n.LastResult() != nil {
		t.Error("cancelled run published a result")
	}
}

func TestNarrate_Deterministic(t *testing.T) {
	gen := &mockGenerator{}
	n := newTestNarrator(t, gen, 20)

	a, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Chunks) != len(b.Chunks) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a.Chunks), len(b.Chunks))
	}
	for i := range a.Chunks {
		if a.Chunks[i] != b.Chunks[i] {
			t.Errorf("chunk %d differs", i)
		}
	}
}

func TestNarrate_UsesCache(t *testing.T) {
	c, err := cache.NewManager(cache.Config{MemoryCapacity: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	gen := &mockGenerator{}
	n, err := NewNarrator(NarratorConfig{Generator: gen, Cache: c, MaxChunkSize: 12, Model: "test"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	if gen.calls != 3 {
		t.Errorf("generator calls = %d, want 3", gen.calls)
	}
	stats := n.Stats()
	if stats.CacheHits != 3 || stats.ChunksGenerated != 3 {
		t.Errorf("cache hits/generated = %d/%d, want 3/3", stats.CacheHits, stats.ChunksGenerated)
	}

	// A different voice is a different narration.
	settings := ttypes.DefaultSettings()
	settings.Voice = ttypes.VoiceKore
	if _, err := n.Narrate(context.Background(), threeSentences, settings, nil); err != nil {
		t.Fatal(err)
	}
	if gen.calls != 6 {
		t.Errorf("generator calls = %d, want 6", gen.calls)
	}
}

func TestNarrate_HandsResultToPlayer(t *testing.T) {
	player := &mockPlayer{}
	n, err := NewNarrator(NarratorConfig{Generator: &mockGenerator{}, Player: player})
	if err != nil {
		t.Fatal(err)
	}

	settings := ttypes.DefaultSettings()
	settings.BackgroundMusic = "rain.mp3"
	result, err := n.Narrate(context.Background(), threeSentences, settings, nil)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}

	if player.plays != 1 || player.lastBuf != result.Audio || player.music != "rain.mp3" {
		t.Errorf("player got plays=%d music=%q", player.plays, player.music)
	}
	if result.Done == nil {
		t.Fatal("Done channel missing")
	}
	if n.State() != ttypes.StatePlaying {
		t.Errorf("state = %v, want playing", n.State())
	}

	n.Cancel()
	select {
	case <-result.Done:
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Cancel")
	}

	deadline := time.Now().Add(time.Second)
	for n.State() != ttypes.StateIdle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n.State() != ttypes.StateIdle {
		t.Errorf("state = %v, want idle after playback", n.State())
	}
}

func TestNarrate_PlaybackFailureKeepsResult(t *testing.T) {
	player := &mockPlayer{err: errors.New("no device")}
	n, err := NewNarrator(NarratorConfig{Generator: &mockGenerator{}, Player: player})
	if err != nil {
		t.Fatal(err)
	}

	result, err := n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil)
	if err == nil {
		t.Fatal("expected playback error")
	}
	if result == nil || n.LastResult() != result {
		t.Error("result should still be published")
	}
}

func TestNarrate_SupersededRunLeavesNewerPlaybackAlone(t *testing.T) {
	for _, ignoreCtx := range []bool{false, true} {
		player := &reentrantPlayer{ignoreCtx: ignoreCtx}
		n, err := NewNarrator(NarratorConfig{Generator: &mockGenerator{}, Player: player})
		if err != nil {
			t.Fatal(err)
		}

		var (
			newer    *Result
			newerErr error
		)
		player.onPlay = func() {
			newer, newerErr = n.Narrate(context.Background(), "دوسری کہانی۔", ttypes.DefaultSettings(), nil)
		}

		_, err = n.Narrate(context.Background(), threeSentences, ttypes.DefaultSettings(), nil)
		if !errors.Is(err, ttypes.ErrSuperseded) {
			t.Fatalf("ignoreCtx=%v: older run err = %v, want ErrSuperseded", ignoreCtx, err)
		}
		if newerErr != nil || newer == nil || newer.Done == nil {
			t.Fatalf("ignoreCtx=%v: newer run = %v, %v", ignoreCtx, newer, newerErr)
		}

		select {
		case <-newer.Done:
			t.Errorf("ignoreCtx=%v: newer playback was stopped by the older run", ignoreCtx)
		default:
		}
		if n.State() != ttypes.StatePlaying || n.LastResult() != newer {
			t.Errorf("ignoreCtx=%v: state = %v, last result replaced", ignoreCtx, n.State())
		}
		n.Cancel()
	}
}

func TestNarrate_MalformedAudioIsNotCached(t *testing.T) {
	c, err := cache.NewManager(cache.Config{MemoryCapacity: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	odd := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	gen := &mockGenerator{raw: map[int]string{0: odd, 1: odd}}
	n, err := NewNarrator(NarratorConfig{Generator: gen, Cache: c, Model: "test"})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		_, err := n.Narrate(context.Background(), "ایک جملہ۔", ttypes.DefaultSettings(), nil)
		if kind, _ := ttypes.KindOf(err); kind != ttypes.KindDecoding {
			t.Fatalf("run %d: kind = %v, want decoding", i, kind)
		}
	}
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want 2", gen.calls)
	}

	// Third call returns valid audio, which is then cached.
	if _, err := n.Narrate(context.Background(), "ایک جملہ۔", ttypes.DefaultSettings(), nil); err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	key := cache.ChunkKey("ایک جملہ۔", ttypes.DefaultSettings(), "test")
	if data, ok := c.Get(key); !ok || len(data)%2 != 0 {
		t.Errorf("cached entry = %d bytes, ok=%v", len(data), ok)
	}
}

func TestNarrate_UndecodableCacheHitIsRegenerated(t *testing.T) {
	c, err := cache.NewManager(cache.Config{MemoryCapacity: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	text := "ایک جملہ۔"
	key := cache.ChunkKey(text, ttypes.DefaultSettings(), "test")
	if err := c.Put(key, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	gen := &mockGenerator{sizes: []int{480}}
	n, err := NewNarrator(NarratorConfig{Generator: gen, Cache: c, Model: "test"})
	if err != nil {
		t.Fatal(err)
	}

	result, err := n.Narrate(context.Background(), text, ttypes.DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}
	if gen.calls != 1 || len(result.PCM) != 480 {
		t.Errorf("calls = %d, pcm = %d bytes", gen.calls, len(result.PCM))
	}
	if data, ok := c.Get(key); !ok || len(data) != 480 {
		t.Errorf("cache not repaired: %d bytes, ok=%v", len(data), ok)
	}
}
