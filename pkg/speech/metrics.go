package speech

import "time"

// Metrics receives client events. Implementations must be safe for
// concurrent use. The default records nothing.
type Metrics interface {
	// RecognitionFinished is called once per SpeechToText call with
	// "success" or the error kind suffixed by "_error"
	RecognitionFinished(status string, elapsed time.Duration)
	AuthTokenRequested(success bool)
	// AuthRetried is called when a recognition request is resent after a
	// 401/403 response
	AuthRetried()
	AudioStreamed(source string, bytes int64)
	AuthCircuitChanged(service string, state int)
}

type nopMetrics struct{}

func (nopMetrics) RecognitionFinished(string, time.Duration) {}
func (nopMetrics) AuthTokenRequested(bool)                    {}
func (nopMetrics) AuthRetried()                               {}
func (nopMetrics) AudioStreamed(string, int64)                {}
func (nopMetrics) AuthCircuitChanged(string, int)             {}
