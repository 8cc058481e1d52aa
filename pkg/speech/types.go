package speech

import (
	"time"

	"github.com/lexiqai/speech-client/internal/audio"
)

// AudioFormat is the PCM layout of a source. When set on a source that is
// not already a WAV file, a WAV header is synthesized in front of the audio.
type AudioFormat struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

const (
	// DefaultChannelCount is used by MonoPCM16
	DefaultChannelCount = 1
	// DefaultBitsPerSample is used by MonoPCM16
	DefaultBitsPerSample = 16
)

// MonoPCM16 is the usual recording format: one channel, 16 bit samples
func MonoPCM16(sampleRate int) AudioFormat {
	return AudioFormat{
		Channels:      DefaultChannelCount,
		SampleRate:    sampleRate,
		BitsPerSample: DefaultBitsPerSample,
	}
}

// IsZero reports whether no format was supplied
func (f AudioFormat) IsZero() bool {
	return f == AudioFormat{}
}

func (f AudioFormat) wav() audio.WAVFormat {
	return audio.WAVFormat{
		Channels:      f.Channels,
		SampleRate:    f.SampleRate,
		BitsPerSample: f.BitsPerSample,
	}
}

// Ticks is a time span in 100 nanosecond units, as the service reports them
type Ticks int64

// Duration converts ticks to a time.Duration
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * 100
}

// SimpleResult is the response for OutputModeSimple
type SimpleResult struct {
	RecognitionStatus RecognitionStatus `json:"RecognitionStatus"`
	Offset            Ticks             `json:"Offset"`
	Duration          Ticks             `json:"Duration"`
	DisplayText       string            `json:"DisplayText"`
}

// Alternative is one N-best recognition hypothesis
type Alternative struct {
	Confidence float64 `json:"Confidence"`
	Lexical    string  `json:"Lexical"`
	ITN        string  `json:"ITN"`
	MaskedITN  string  `json:"MaskedITN"`
	Display    string  `json:"Display"`
}

// DetailedResult is the response for OutputModeDetailed.
// NBest is ordered best first.
type DetailedResult struct {
	RecognitionStatus RecognitionStatus `json:"RecognitionStatus"`
	Offset            Ticks             `json:"Offset"`
	Duration          Ticks             `json:"Duration"`
	NBest             []Alternative     `json:"NBest"`
}

// Best returns the top alternative
func (r *DetailedResult) Best() (Alternative, bool) {
	if r == nil || len(r.NBest) == 0 {
		return Alternative{}, false
	}
	return r.NBest[0], true
}

// Result holds exactly one of Simple or Detailed, selected by Mode
type Result struct {
	Mode     OutputMode      `json:"mode"`
	Simple   *SimpleResult   `json:"simple,omitempty"`
	Detailed *DetailedResult `json:"detailed,omitempty"`
}

// Status returns the recognition status of whichever variant is set
func (r Result) Status() RecognitionStatus {
	switch {
	case r.Simple != nil:
		return r.Simple.RecognitionStatus
	case r.Detailed != nil:
		return r.Detailed.RecognitionStatus
	default:
		return ""
	}
}

// Text returns the display text, using the best alternative in detailed mode
func (r Result) Text() string {
	switch {
	case r.Simple != nil:
		return r.Simple.DisplayText
	case r.Detailed != nil:
		best, _ := r.Detailed.Best()
		return best.Display
	default:
		return ""
	}
}
