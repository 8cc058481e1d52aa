package ingest

import (
	"fmt"

	"github.com/lexiqai/speech-client/internal/audio"
	"github.com/lexiqai/speech-client/pkg/speech"
)

// Frame events exchanged on the stream socket
const (
	EventStart  = "start"
	EventStop   = "stop"
	EventResult = "result"
	EventError  = "error"
)

// ControlFrame is a text frame sent by the client.
// The first frame must be a start event; a later stop event ends the recording.
type ControlFrame struct {
	Event         string `json:"event"`
	SampleRate    int    `json:"sampleRate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	BitsPerSample int    `json:"bitsPerSample,omitempty"`
	Encoding      string `json:"encoding,omitempty"` // pcm16 or pcmu
	Output        string `json:"output,omitempty"`   // simple or detailed
}

// ResultFrame carries the decoded recognition result back to the client
type ResultFrame struct {
	Event     string                   `json:"event"`
	SessionID string                   `json:"sessionId"`
	Status    speech.RecognitionStatus `json:"status"`
	Text      string                   `json:"text"`
	Result    interface{}              `json:"result"`
}

// ErrorFrame reports a failed session
type ErrorFrame struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// sessionSettings is a validated start frame
type sessionSettings struct {
	format   speech.AudioFormat
	encoding audio.Encoding
	output   speech.OutputMode
}

const (
	defaultPCMSampleRate  = 16000
	defaultPCMUSampleRate = 8000
)

// settings validates the start frame. Mu-law input is decoded to 16 bit PCM
// before it is buffered, so the declared bit depth only applies to pcm16.
func (f ControlFrame) settings(defaultOutput string) (sessionSettings, error) {
	if f.Event != EventStart {
		return sessionSettings{}, fmt.Errorf("expected %q event, got %q", EventStart, f.Event)
	}

	enc, err := audio.ParseEncoding(f.Encoding)
	if err != nil {
		return sessionSettings{}, err
	}

	rate := f.SampleRate
	if rate == 0 {
		rate = defaultPCMSampleRate
		if enc == audio.EncodingPCMU {
			rate = defaultPCMUSampleRate
		}
	}

	format := speech.MonoPCM16(rate)
	if f.Channels != 0 {
		format.Channels = f.Channels
	}
	if enc == audio.EncodingPCM16 && f.BitsPerSample != 0 {
		format.BitsPerSample = f.BitsPerSample
	}
	if err := validateFormat(format); err != nil {
		return sessionSettings{}, err
	}

	output, err := parseOutput(f.Output, defaultOutput)
	if err != nil {
		return sessionSettings{}, err
	}

	return sessionSettings{format: format, encoding: enc, output: output}, nil
}

func validateFormat(format speech.AudioFormat) error {
	wav := audio.WAVFormat{
		Channels:      format.Channels,
		SampleRate:    format.SampleRate,
		BitsPerSample: format.BitsPerSample,
	}
	return wav.Validate()
}

func parseOutput(requested, fallback string) (speech.OutputMode, error) {
	if requested == "" {
		requested = fallback
	}
	return speech.ParseOutputMode(requested)
}

// resultPayload returns whichever result shape the request asked for
func resultPayload(res speech.Result) interface{} {
	if res.Detailed != nil {
		return res.Detailed
	}
	return res.Simple
}
