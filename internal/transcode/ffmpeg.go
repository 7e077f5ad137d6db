package transcode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultFFmpegPath = "ffmpeg"
	stderrTail        = 4 << 10
	waitDelay         = 5 * time.Second
)

// FFmpegEncoder implements [Encoder] with the ffmpeg command line tool, reading from stdin and writing to stdout.
type FFmpegEncoder struct {
	Path string
}

// NewFFmpegEncoder returns a new FFmpegEncoder.
// If path is empty, it looks for "ffmpeg" in PATH.
func NewFFmpegEncoder(path string) *FFmpegEncoder {
	if path == "" {
		path = defaultFFmpegPath
	}
	return &FFmpegEncoder{Path: path}
}

// Available checks if ffmpeg is executable.
func (f *FFmpegEncoder) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Args builds the ffmpeg argument list for opts.
func (f *FFmpegEncoder) Args(opts Options) []string {
	// ffmpeg -i pipe:0 -vn -f mp3 -acodec libmp3lame -ac 2 -b:a 128k pipe:1
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-f", opts.Format,
		"-acodec", opts.Codec,
		"-ac", strconv.Itoa(opts.Channels),
		"-b:a", strconv.Itoa(opts.Bitrate) + "k",
		"pipe:1",
	}
}

// Encode runs ffmpeg with src as stdin and dst as stdout.
//
// Cancelling ctx kills the process. The error carries the tail of ffmpeg's stderr.
func (f *FFmpegEncoder) Encode(ctx context.Context, src io.Reader, dst io.Writer, opts Options) error {
	stderr := &tailBuffer{max: stderrTail}

	cmd := exec.CommandContext(ctx, f.Path, f.Args(opts)...)
	cmd.Stdin = src
	cmd.Stdout = dst
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg stopped: %w", ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
