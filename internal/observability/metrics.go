package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recognition metrics
	recognitionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_client_recognition_requests_total",
		Help: "Total number of recognition requests by outcome",
	}, []string{"status"})

	recognitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_client_recognition_latency_seconds",
		Help:    "Time from first request byte to decoded result in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 20.0},
	})

	// Auth metrics
	authTokenRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_client_auth_token_requests_total",
		Help: "Total number of token requests to the auth endpoint",
	}, []string{"status"})

	authRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_client_auth_retries_total",
		Help: "Recognition requests resent after a 401/403 response",
	})

	// Audio metrics
	audioBytesStreamed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_client_audio_bytes_streamed_total",
		Help: "Total audio bytes written into recognition request bodies",
	}, []string{"source"}) // source: "file", "reader" or "live"

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speech_client_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_client_active_sessions",
		Help: "Number of recognition sessions in progress on the gateway",
	})
)

// SpeechMetrics records speech client events on the Prometheus collectors.
// Pass it as speech.Config.Metrics.
type SpeechMetrics struct{}

// RecognitionFinished records the latency and outcome of one recognition call
func (SpeechMetrics) RecognitionFinished(status string, elapsed time.Duration) {
	recognitionLatency.Observe(elapsed.Seconds())
	recognitionRequests.WithLabelValues(status).Inc()
}

// AuthTokenRequested counts a token request by outcome
func (SpeechMetrics) AuthTokenRequested(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	authTokenRequests.WithLabelValues(status).Inc()
}

// AuthRetried counts a recognition request resent after reauthentication
func (SpeechMetrics) AuthRetried() {
	authRetries.Inc()
}

// AudioStreamed records audio bytes streamed from a source kind
func (SpeechMetrics) AudioStreamed(source string, bytes int64) {
	if bytes <= 0 {
		return
	}
	audioBytesStreamed.WithLabelValues(source).Add(float64(bytes))
}

// AuthCircuitChanged updates the circuit breaker state gauge
func (SpeechMetrics) AuthCircuitChanged(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// SessionStarted increments the active session gauge
func SessionStarted() {
	activeSessions.Inc()
}

// SessionEnded decrements the active session gauge
func SessionEnded() {
	activeSessions.Dec()
}
