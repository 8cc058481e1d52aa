package speech

import (
	"fmt"
	"io"
	"os"
)

// LiveStream is audio that is still being recorded. Read returns whatever
// has arrived; a zero-byte read or io.EOF means "caught up", not "finished".
// Len reports the total number of bytes written so far.
type LiveStream interface {
	io.Reader
	Len() int
}

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceFile
	sourceReader
	sourceLive
)

func (k sourceKind) String() string {
	switch k {
	case sourceFile:
		return "file"
	case sourceReader:
		return "reader"
	case sourceLive:
		return "live"
	default:
		return "none"
	}
}

// AudioSource is the audio streamed as a recognition request body.
// Build one with FileSource, ReaderSource or LiveSource.
type AudioSource struct {
	kind   sourceKind
	path   string
	reader io.Reader
	size   int64
	stream LiveStream
	done   <-chan struct{}
	format AudioFormat
}

// FileSource streams a file. A WAV file is sent as is; other files are
// treated as raw PCM and get a header if a format is set with WithFormat.
func FileSource(path string) AudioSource {
	return AudioSource{kind: sourceFile, path: path}
}

// ReaderSource streams a finite reader of size bytes (negative if unknown)
func ReaderSource(r io.Reader, size int64) AudioSource {
	return AudioSource{kind: sourceReader, reader: r, size: size}
}

// LiveSource streams a recording in progress. done, if not nil, is closed
// by the producer once no more bytes will be written; without it the stream
// ends after a bounded run of empty reads.
func LiveSource(stream LiveStream, done <-chan struct{}) AudioSource {
	return AudioSource{kind: sourceLive, stream: stream, done: done}
}

// WithFormat attaches PCM format metadata, which makes the body start with
// a synthesized WAV header
func (s AudioSource) WithFormat(format AudioFormat) AudioSource {
	s.format = format
	return s
}

// Format returns the attached format metadata
func (s AudioSource) Format() AudioFormat {
	return s.format
}

func (s AudioSource) validate() error {
	switch s.kind {
	case sourceFile:
		if s.path == "" {
			return ErrNoAudioSource
		}
		if _, err := os.Stat(s.path); err != nil {
			return &SourceReadError{Source: s.kind.String(), Err: err}
		}
	case sourceReader:
		if s.reader == nil {
			return ErrNoAudioSource
		}
	case sourceLive:
		if s.stream == nil {
			return ErrNoAudioSource
		}
	default:
		return ErrNoAudioSource
	}

	if !s.format.IsZero() {
		if err := s.format.wav().Validate(); err != nil {
			return fmt.Errorf("invalid audio format: %w", err)
		}
	}
	return nil
}

// contentType describes the body for the Content-Type header
func (s AudioSource) contentType() string {
	if s.format.IsZero() {
		return "audio/wav"
	}
	return fmt.Sprintf("audio/wav; codec=audio/pcm; samplerate=%d", s.format.SampleRate)
}
