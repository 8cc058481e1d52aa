package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-client/internal/audio"
	"github.com/lexiqai/speech-client/internal/resilience"
)

// StreamOptions tune how request bodies are produced from a source
type StreamOptions struct {
	// ChunkSize is the read size and the amount of live data waited for
	// before the header is written
	ChunkSize int
	// DataWaitInterval and DataWaitAttempts bound the wait for first live data
	DataWaitInterval time.Duration
	DataWaitAttempts int
	// MaxReadRetries is the number of consecutive empty live reads tolerated
	// when the source has no completion signal
	MaxReadRetries int
	// StreamReadDelay is the pause after an empty live read
	StreamReadDelay time.Duration
}

// DefaultStreamOptions returns 1 KiB chunks, a one second first-data wait
// and a 30ms delay between empty reads
func DefaultStreamOptions() StreamOptions {
	poll := resilience.DefaultPollConfig()
	return StreamOptions{
		ChunkSize:        1024,
		DataWaitInterval: poll.Interval,
		DataWaitAttempts: poll.MaxAttempts,
		MaxReadRetries:   10,
		StreamReadDelay:  30 * time.Millisecond,
	}
}

func (o StreamOptions) withDefaults() StreamOptions {
	d := DefaultStreamOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.DataWaitInterval <= 0 {
		o.DataWaitInterval = d.DataWaitInterval
	}
	if o.DataWaitAttempts <= 0 {
		o.DataWaitAttempts = d.DataWaitAttempts
	}
	if o.MaxReadRetries <= 0 {
		o.MaxReadRetries = d.MaxReadRetries
	}
	if o.StreamReadDelay <= 0 {
		o.StreamReadDelay = d.StreamReadDelay
	}
	return o
}

var errBodyNotReplayable = errors.New("request body cannot be rebuilt for a consumed source")

// bodyBuilder produces request bodies for one logical call. Files are
// reopened for every attempt. Readers and live streams can only be read
// once, so when replayable is set every byte taken from them (header
// included) is kept and replayed at the start of the next attempt.
type bodyBuilder struct {
	source     AudioSource
	opts       StreamOptions
	replayable bool
	logger     zerolog.Logger
	metrics    Metrics

	// owned by the producer goroutine of the current attempt
	started  bool
	replay   bytes.Buffer
	streamed int64
}

func newBodyBuilder(source AudioSource, opts StreamOptions, replayable bool, logger zerolog.Logger, metrics Metrics) *bodyBuilder {
	return &bodyBuilder{
		source:     source,
		opts:       opts.withDefaults(),
		replayable: replayable,
		logger:     logger.With().Str("source", source.kind.String()).Logger(),
		metrics:    metrics,
	}
}

// bodyStream is the reading end of one attempt's body. Closing it aborts
// the producer: pending and later writes fail fast.
type bodyStream struct {
	*io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	err      error
	streamed int64
}

func (s *bodyStream) Close() error {
	s.cancel()
	return s.PipeReader.Close()
}

// wait blocks until the producer has exited
func (s *bodyStream) wait() {
	<-s.done
}

// sourceErr returns the producer's error if it came from the audio source
func (s *bodyStream) sourceErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var srcErr *SourceReadError
	if errors.As(s.err, &srcErr) {
		return s.err
	}
	return nil
}

func (s *bodyStream) bytesStreamed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamed
}

// open starts a producer goroutine writing one complete body into a pipe.
// The previous stream must have been closed and waited on.
func (b *bodyBuilder) open(ctx context.Context) *bodyStream {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	s := &bodyStream{
		PipeReader: pr,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer cancel()

		b.streamed = 0
		err := b.writeTo(ctx, pw)

		s.mu.Lock()
		s.err = err
		s.streamed = b.streamed
		s.mu.Unlock()

		if b.streamed > 0 {
			b.metrics.AudioStreamed(b.source.kind.String(), b.streamed)
		}

		switch {
		case err == nil:
			b.logger.Debug().Int64("bytes", b.streamed).Msg("Request body complete")
		case ctx.Err() != nil || errors.Is(err, io.ErrClosedPipe):
			b.logger.Debug().Err(err).Int64("bytes", b.streamed).Msg("Request body aborted")
		default:
			b.logger.Error().Err(err).Int64("bytes", b.streamed).Msg("Failed to produce request body")
		}

		// Closing the writer tells the transport the body is complete
		pw.CloseWithError(err)
	}()

	return s
}

func (b *bodyBuilder) writeTo(ctx context.Context, w io.Writer) error {
	switch b.source.kind {
	case sourceFile:
		return b.writeFile(ctx, w)
	case sourceReader:
		return b.writeReader(ctx, w)
	case sourceLive:
		return b.writeLive(ctx, w)
	default:
		return ErrNoAudioSource
	}
}

func (b *bodyBuilder) writeFile(ctx context.Context, w io.Writer) error {
	path := b.source.path

	// Raw PCM files get a header with the real length; WAV files go as is
	header := false
	var length int64
	if !b.source.format.IsZero() {
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			return b.sourceError(err)
		}
		if !mtype.Is("audio/wav") {
			info, err := os.Stat(path)
			if err != nil {
				return b.sourceError(err)
			}
			header = true
			length = info.Size()
			b.logger.Debug().Str("mime", mtype.String()).Int64("length", length).Msg("Synthesizing WAV header for file")
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return b.sourceError(err)
	}
	defer f.Close()

	if header {
		if err := b.emitHeader(w, length); err != nil {
			return err
		}
	}
	return b.pump(ctx, f, w, false)
}

func (b *bodyBuilder) writeReader(ctx context.Context, w io.Writer) error {
	resumed, err := b.resume(w)
	if err != nil {
		return err
	}
	if !resumed {
		length := audio.UnknownLength
		if b.source.size >= 0 {
			length = b.source.size
		}
		if err := b.writeHeader(w, length); err != nil {
			return err
		}
	}
	return b.pump(ctx, b.source.reader, w, b.replayable)
}

// writeLive streams a recording in progress: wait (bounded) for the first
// chunk, write a header with unknown length, then copy chunks as they
// arrive until the completion signal or a run of empty reads ends it.
func (b *bodyBuilder) writeLive(ctx context.Context, w io.Writer) error {
	src := b.source
	opts := b.opts

	resumed, err := b.resume(w)
	if err != nil {
		return err
	}
	if !resumed {
		ready, err := resilience.Poll(ctx,
			resilience.PollConfig{Interval: opts.DataWaitInterval, MaxAttempts: opts.DataWaitAttempts},
			src.done,
			func() bool { return src.stream.Len() >= opts.ChunkSize },
		)
		if err != nil {
			return err
		}
		if !ready {
			b.logger.Debug().Int("available", src.stream.Len()).Msg("Live source below one chunk after wait, streaming anyway")
		}
		if err := b.writeHeader(w, audio.UnknownLength); err != nil {
			return err
		}
	}

	buf := make([]byte, opts.ChunkSize)
	emptyReads := 0
	finished := false

	for {
		n, err := src.stream.Read(buf)
		if err != nil && err != io.EOF {
			return b.sourceError(err)
		}

		if n > 0 {
			emptyReads = 0
			if err := b.emit(w, buf[:n], true); err != nil {
				return err
			}
			continue
		}

		// Caught up with the producer
		if finished {
			return nil
		}

		if src.done != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-src.done:
				// One more pass drains anything written before the signal
				finished = true
			case <-time.After(opts.StreamReadDelay):
			}
			continue
		}

		emptyReads++
		if emptyReads >= opts.MaxReadRetries {
			b.logger.Debug().Int("empty_reads", emptyReads).Msg("Live source went quiet, ending body")
			return nil
		}
		if err := resilience.Sleep(ctx, opts.StreamReadDelay); err != nil {
			return err
		}
	}
}

// pump copies r to w in chunks until EOF
func (b *bodyBuilder) pump(ctx context.Context, r io.Reader, w io.Writer, record bool) error {
	buf := make([]byte, b.opts.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			if werr := b.write(w, buf[:n], record, true); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return b.sourceError(err)
		}
	}
}

// resume replays what earlier attempts consumed. It reports false on the
// first attempt, when the header still has to be written.
func (b *bodyBuilder) resume(w io.Writer) (bool, error) {
	if !b.started {
		return false, nil
	}
	if !b.replayable {
		return true, errBodyNotReplayable
	}
	if b.replay.Len() == 0 {
		return true, nil
	}

	b.logger.Debug().Int("bytes", b.replay.Len()).Msg("Replaying consumed audio")
	if _, err := w.Write(b.replay.Bytes()); err != nil {
		return true, err
	}
	return true, nil
}

// writeHeader marks the body as started and writes a WAV header when the
// source carries format metadata
func (b *bodyBuilder) writeHeader(w io.Writer, length int64) error {
	b.started = true
	if b.source.format.IsZero() {
		return nil
	}
	return b.emitHeader(b.sink(w, b.replayable), length)
}

// emitHeader writes a header for the source format to w
func (b *bodyBuilder) emitHeader(w io.Writer, length int64) error {
	return audio.WriteWAVHeader(w, b.source.format.wav(), length)
}

// sink returns w, wrapped to keep a replay copy when record is set
func (b *bodyBuilder) sink(w io.Writer, record bool) io.Writer {
	if !record {
		return w
	}
	return &replayWriter{w: w, replay: &b.replay}
}

// emit records and writes audio taken from a one-shot source
func (b *bodyBuilder) emit(w io.Writer, p []byte, isAudio bool) error {
	return b.write(w, p, b.replayable, isAudio)
}

func (b *bodyBuilder) write(w io.Writer, p []byte, record, isAudio bool) error {
	if _, err := b.sink(w, record).Write(p); err != nil {
		return err
	}
	if isAudio {
		b.streamed += int64(len(p))
	}
	return nil
}

// replayWriter keeps every byte before passing it on, so bytes are not lost
// when the write fails because the attempt was aborted
type replayWriter struct {
	w      io.Writer
	replay *bytes.Buffer
}

func (r *replayWriter) Write(p []byte) (int, error) {
	r.replay.Write(p)
	return r.w.Write(p)
}

func (b *bodyBuilder) sourceError(err error) error {
	return &SourceReadError{Source: b.source.kind.String(), Err: err}
}
