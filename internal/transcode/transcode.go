package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mp3d/internal/shared"
)

const (
	outputFormat   = "mp3"
	outputCodec    = "libmp3lame"
	outputChannels = 2
	streamBuffer   = 32 << 10
)

// Options configures one encode.
type Options struct {
	Format   string
	Codec    string
	Channels int
	Bitrate  int // kbps
}

// NewOptions returns MP3/libmp3lame/stereo options at bitrate kbps.
func NewOptions(bitrate int) Options {
	return Options{
		Format:   outputFormat,
		Codec:    outputCodec,
		Channels: outputChannels,
		Bitrate:  bitrate,
	}
}

// Source opens the audio-only stream of a video.
type Source interface {
	Open(ctx context.Context, videoID string) (io.ReadCloser, error)
}

// Encoder reads audio from src and writes encoded output to dst until src is exhausted.
type Encoder interface {
	Encode(ctx context.Context, src io.Reader, dst io.Writer, opts Options) error
}

// Pipeline composes a [Source] and an [Encoder].
type Pipeline struct {
	source  Source
	encoder Encoder
	logger  *log.Logger
}

// NewPipeline creates a Pipeline. A nil logger discards output.
func NewPipeline(source Source, encoder Encoder, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Pipeline{source: source, encoder: encoder, logger: logger}
}

// Open starts the pipeline for videoID and returns the encoded stream.
//
// Failures after Open returns are reported by [Stream.Prime], [Stream.Read] and [Stream.Err].
// The caller must Close the stream.
func (p *Pipeline) Open(ctx context.Context, videoID string, bitrate int) (*Stream, error) {
	if videoID == "" {
		return nil, fmt.Errorf("%w: video id", shared.ErrMissingParameter)
	}
	if bitrate <= 0 {
		return nil, fmt.Errorf("%w: bitrate %d", shared.ErrInvalidParameter, bitrate)
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	done := make(chan struct{})

	s := &Stream{
		br:     bufio.NewReaderSize(pr, streamBuffer),
		pr:     pr,
		cancel: cancel,
		done:   done,
	}
	go p.run(ctx, videoID, NewOptions(bitrate), pw, s, done)

	return s, nil
}

// run drives the pipeline and records its terminal error on s before closing done.
func (p *Pipeline) run(ctx context.Context, videoID string, opts Options, pw *io.PipeWriter, s *Stream, done chan<- struct{}) {
	defer close(done)

	logger := shared.WithLogger(p.logger, "video_id", videoID, "bitrate", opts.Bitrate)

	src, err := p.source.Open(ctx, videoID)
	if err != nil {
		logger.Debug("source open failed", "error", err)
		s.err = pipelineError(shared.StageSource, err)
		pw.CloseWithError(s.err)
		return
	}
	defer src.Close()

	tr := &trackingReader{r: src}
	encErr := p.encoder.Encode(ctx, tr, pw, opts)

	switch srcErr := tr.Err(); {
	case srcErr != nil:
		logger.Debug("source failed mid-stream", "error", srcErr, "encoder_error", encErr, "bytes_in", tr.N())
		s.err = pipelineError(shared.StageSource, srcErr)
		pw.CloseWithError(s.err)
	case encErr != nil:
		logger.Debug("encoder failed", "error", encErr, "bytes_in", tr.N())
		s.err = pipelineError(shared.StageEncoder, encErr)
		pw.CloseWithError(s.err)
	default:
		logger.Debug("pipeline finished", "bytes_in", tr.N())
		pw.Close()
	}
}

func pipelineError(stage shared.Stage, err error) error {
	return shared.NewStageError(stage, fmt.Errorf("%w: %w", shared.ErrPipeline, err))
}

// Stream is the consumer end of a running pipeline.
type Stream struct {
	br     *bufio.Reader
	pr     *io.PipeReader
	cancel context.CancelFunc
	done   <-chan struct{}
	once   sync.Once
	err    error // written by the pipeline goroutine before done is closed
}

// Read reads encoded bytes. A pipeline failure is returned as a terminal error wrapping [shared.ErrPipeline].
func (s *Stream) Read(p []byte) (int, error) {
	return s.br.Read(p)
}

// Prime blocks until the first encoded byte is buffered, the pipeline fails, or ctx is done.
//
// A pipeline that ends without producing any output is an encoder failure.
func (s *Stream) Prime(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.pr.CloseWithError(ctx.Err())
	})
	defer stop()

	_, err := s.br.Peek(1)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return pipelineError(shared.StageEncoder, errors.New("encoder produced no output"))
	default:
		return err
	}
}

// Err reports the pipeline's terminal error without blocking.
//
// It returns nil while the pipeline is still running or if it finished cleanly.
// Bytes already buffered in the stream are not considered.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close tears the pipeline down and waits for it to exit. It is safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.pr.Close()
		<-s.done
	})
	return nil
}

// trackingReader records the first non-EOF error from the source, so source failures can be told apart from encoder failures.
type trackingReader struct {
	r   io.Reader
	mu  sync.Mutex
	n   int64
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)

	t.mu.Lock()
	t.n += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	t.mu.Unlock()

	return n, err
}

func (t *trackingReader) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *trackingReader) N() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}
