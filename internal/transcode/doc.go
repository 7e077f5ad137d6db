// Package transcode turns a YouTube video id into a live MP3 byte stream.
//
// # Pipeline
//
// [Pipeline.Open] starts a goroutine that opens the audio-only [Source], feeds it to the [Encoder],
// and writes the encoder output into a synchronous [io.Pipe]. The returned [Stream] reads the other end.
//
//	Source.Open ──► trackingReader ──► Encoder.Encode ──► io.PipeWriter ──► Stream.Read
//
// Nothing is buffered to completion. The pipe blocks the encoder until the consumer reads,
// and the encoder pulls from the source only as fast as it encodes.
//
// # Errors
//
// A pipeline ends with exactly one terminal error, delivered through [io.PipeWriter.CloseWithError].
// Source failures (at open or mid-read) and encoder failures both wrap [shared.ErrPipeline];
// the [shared.StageError] stage (source or encoder) is the only difference, and it exists for logs.
//
// # Lifecycle
//
// [Stream.Prime] waits for the first encoded byte so callers can commit response headers only for a live stream.
// [Stream.Close] cancels the pipeline context, which kills the encoder process and aborts the source download,
// then waits for the pipeline goroutine to exit.
package transcode
