package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dastaan/dastaan/internal/ttypes"
)

const (
	// MP3BlockSamples is the number of samples fed to the encoder per write,
	// one MPEG audio frame.
	MP3BlockSamples = 1152

	// MP3MimeType is the MIME type of exported MP3 files.
	MP3MimeType = "audio/mp3"

	defaultFFmpegTimeout = 2 * time.Minute
)

// FFmpeg runs the ffmpeg binary for MP3 encoding and background music decoding.
type FFmpeg struct {
	binary  string
	timeout time.Duration
}

// NewFFmpeg creates a runner. An empty binary selects "ffmpeg" from PATH.
func NewFFmpeg(binary string, timeout time.Duration) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = defaultFFmpegTimeout
	}
	return &FFmpeg{binary: binary, timeout: timeout}
}

// Available reports whether the binary can be found.
func (f *FFmpeg) Available() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ttypes.ErrEncoderUnavailable, f.binary)
	}
	return nil
}

// EncodeMP3 encodes mono 16-bit PCM at sampleRate into MPEG audio frames at
// kbps. The PCM is streamed to the encoder in MP3BlockSamples blocks; closing
// the input flushes the final frames, which are returned together with all
// frames emitted before.
func (f *FFmpeg) EncodeMP3(ctx context.Context, pcm []byte, sampleRate, kbps int) ([]byte, error) {
	if !ttypes.ValidQuality(kbps) {
		return nil, ttypes.NewError(ttypes.KindValidation,
			fmt.Sprintf("bitrate must be one of %v kbps, got %d", ttypes.Qualities, kbps), nil)
	}
	if len(pcm) == 0 {
		return nil, ttypes.ErrNothingToExport
	}
	if err := f.Available(); err != nil {
		return nil, err
	}

	rate := strconv.Itoa(sampleRate)
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", rate, "-ac", "1", // Raw PCM input on stdin
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", kbps),
		"-ar", rate, "-ac", "1", // Keep the source rate; bitrate is the only lossy control
		"-write_xing", "0", "-id3v2_version", "0",
		"-f", "mp3", "pipe:1",
	}

	out, err := f.run(ctx, args, func(w io.Writer) error {
		block := MP3BlockSamples * 2
		for off := 0; off < len(pcm); off += block {
			end := off + block
			if end > len(pcm) {
				end = len(pcm)
			}
			if _, err := w.Write(pcm[off:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mp3 encoding failed: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("mp3 encoder produced no output")
	}

	log.Debug("Encoded MP3", "pcmBytes", len(pcm), "mp3Bytes", len(out), "kbps", kbps)
	return out, nil
}

// DecodeToPCM decodes any audio file or URL ffmpeg understands into mono
// 16-bit PCM at sampleRate.
func (f *FFmpeg) DecodeToPCM(ctx context.Context, ref string, sampleRate int) ([]byte, error) {
	if err := f.Available(); err != nil {
		return nil, err
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", ref,
		"-f", "s16le", "-ar", strconv.Itoa(sampleRate), "-ac", "1",
		"pipe:1",
	}
	out, err := f.run(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding %s failed: %w", ref, err)
	}
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// run executes ffmpeg with the given arguments. When feed is non-nil it writes
// the process input; the input is closed when feed returns.
func (f *FFmpeg) run(ctx context.Context, args []string, feed func(io.Writer) error) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var stdin io.WriteCloser
	if feed != nil {
		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open encoder input: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", f.binary, err)
	}

	feedErr := make(chan error, 1)
	if feed != nil {
		go func() {
			err := feed(stdin)
			if cerr := stdin.Close(); err == nil {
				err = cerr
			}
			feedErr <- err
		}()
	} else {
		feedErr <- nil
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", f.binary, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", f.binary, err, stderr.String())
	}
	if err := <-feedErr; err != nil {
		return nil, fmt.Errorf("failed to write encoder input: %w", err)
	}

	return stdout.Bytes(), nil
}
