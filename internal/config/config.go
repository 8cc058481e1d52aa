package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/speech-client/pkg/speech"
)

// Config holds all configuration for the speech client and its gateway
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service, used only when logging the stream endpoint.
	// Optional; if unset, logs ws://localhost:PORT/v1/recognize/stream.
	GatewayURL string `envconfig:"GATEWAY_URL" default:""`

	// Speech service credentials and request options
	SubscriptionKey string `envconfig:"SPEECH_SUBSCRIPTION_KEY" required:"true"`
	Region          string `envconfig:"SPEECH_REGION" default:""` // e.g. westus; selects the regional Speech Service endpoints
	Language        string `envconfig:"SPEECH_LANGUAGE" default:"en-US"`
	RecognitionMode string `envconfig:"SPEECH_RECOGNITION_MODE" default:"interactive"` // interactive, conversation, dictation
	ProfanityMode   string `envconfig:"SPEECH_PROFANITY_MODE" default:"masked"`        // masked, removed, raw
	OutputMode      string `envconfig:"SPEECH_OUTPUT_MODE" default:"simple"`           // simple, detailed
	APIVersion      string `envconfig:"SPEECH_API_VERSION" default:"v1"`
	AuthMode        string `envconfig:"SPEECH_AUTH_MODE" default:"token"` // token, key

	// Custom endpoints for private or compatible deployments
	AuthEndpoint         string `envconfig:"SPEECH_AUTH_ENDPOINT" default:""`
	RecognitionEndpoint  string `envconfig:"SPEECH_RECOGNITION_ENDPOINT" default:""`
	EndpointRegionPrefix bool   `envconfig:"SPEECH_ENDPOINT_REGION_PREFIX" default:"false"` // Prefix custom endpoint hosts with the region

	RequestTimeout time.Duration `envconfig:"SPEECH_REQUEST_TIMEOUT" default:"0s"` // Whole-call bound, 0 = none

	// Streaming configuration
	ChunkSize          int `envconfig:"SPEECH_CHUNK_SIZE" default:"1024"`            // Bytes per read
	DataWaitIntervalMs int `envconfig:"SPEECH_DATA_WAIT_INTERVAL_MS" default:"100"`  // Poll interval while waiting for first live data
	DataWaitAttempts   int `envconfig:"SPEECH_DATA_WAIT_ATTEMPTS" default:"10"`      // Polls before streaming anyway
	MaxReadRetries     int `envconfig:"SPEECH_MAX_READ_RETRIES" default:"10"`        // Empty reads before ending a live stream without a done signal
	StreamReadDelayMs  int `envconfig:"SPEECH_STREAM_READ_DELAY_MS" default:"30"`    // Delay after an empty live read

	// Resilience configuration
	AuthCircuitBreakerMaxFailures  int `envconfig:"AUTH_CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit, 0 disables
	AuthCircuitBreakerResetTimeout int `envconfig:"AUTH_CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Gateway session configuration
	MaxConcurrentSessions int           `envconfig:"MAX_CONCURRENT_SESSIONS" default:"50"`
	RecordingTimeout      time.Duration `envconfig:"RECORDING_TIMEOUT" default:"15s"` // Longest audio the REST API accepts
	AudioBufferSize       int           `envconfig:"AUDIO_BUFFER_SIZE" default:"65536"` // Initial live buffer capacity in bytes

	// Voice activity detection for stop-on-silence
	VADEnabled         bool    `envconfig:"VAD_ENABLED" default:"true"`
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"50"`      // Frames of silence to mark speech end
	VADFrameSize       int     `envconfig:"VAD_FRAME_SIZE" default:"320"`         // Samples per frame

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	if c.SubscriptionKey == "" {
		return fmt.Errorf("SPEECH_SUBSCRIPTION_KEY is required")
	}
	if c.MaxConcurrentSessions <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_SESSIONS must be positive, got %d", c.MaxConcurrentSessions)
	}
	if _, err := c.SpeechConfig(); err != nil {
		return err
	}
	return nil
}

// SpeechConfig converts the environment settings into a speech client configuration
func (c *Config) SpeechConfig() (speech.Config, error) {
	recognitionMode, err := speech.ParseRecognitionMode(c.RecognitionMode)
	if err != nil {
		return speech.Config{}, fmt.Errorf("SPEECH_RECOGNITION_MODE: %w", err)
	}
	profanityMode, err := speech.ParseProfanityMode(c.ProfanityMode)
	if err != nil {
		return speech.Config{}, fmt.Errorf("SPEECH_PROFANITY_MODE: %w", err)
	}
	outputMode, err := speech.ParseOutputMode(c.OutputMode)
	if err != nil {
		return speech.Config{}, fmt.Errorf("SPEECH_OUTPUT_MODE: %w", err)
	}
	authMode, err := speech.ParseAuthenticationMode(c.AuthMode)
	if err != nil {
		return speech.Config{}, fmt.Errorf("SPEECH_AUTH_MODE: %w", err)
	}

	// A region without custom endpoints selects the regional Speech Service
	authEndpoint := speech.DefaultAuthEndpoint
	recognitionEndpoint := speech.DefaultRecognitionEndpoint
	if c.Region != "" {
		authEndpoint = speech.SpeechServiceAuthEndpoint
		recognitionEndpoint = speech.SpeechServiceEndpoint
	}
	if c.AuthEndpoint != "" {
		if authEndpoint, err = speech.ParseEndpoint(c.AuthEndpoint, c.EndpointRegionPrefix); err != nil {
			return speech.Config{}, fmt.Errorf("SPEECH_AUTH_ENDPOINT: %w", err)
		}
	}
	if c.RecognitionEndpoint != "" {
		if recognitionEndpoint, err = speech.ParseEndpoint(c.RecognitionEndpoint, c.EndpointRegionPrefix); err != nil {
			return speech.Config{}, fmt.Errorf("SPEECH_RECOGNITION_ENDPOINT: %w", err)
		}
	}

	return speech.Config{
		SubscriptionKey:     c.SubscriptionKey,
		Region:              c.Region,
		Language:            c.Language,
		RecognitionMode:     recognitionMode,
		ProfanityMode:       profanityMode,
		OutputMode:          outputMode,
		APIVersion:          c.APIVersion,
		AuthMode:            authMode,
		AuthEndpoint:        authEndpoint,
		RecognitionEndpoint: recognitionEndpoint,
		RequestTimeout:      c.RequestTimeout,
		Stream: speech.StreamOptions{
			ChunkSize:        c.ChunkSize,
			DataWaitInterval: time.Duration(c.DataWaitIntervalMs) * time.Millisecond,
			DataWaitAttempts: c.DataWaitAttempts,
			MaxReadRetries:   c.MaxReadRetries,
			StreamReadDelay:  time.Duration(c.StreamReadDelayMs) * time.Millisecond,
		},
		AuthCircuitBreakerMaxFailures:  c.AuthCircuitBreakerMaxFailures,
		AuthCircuitBreakerResetTimeout: time.Duration(c.AuthCircuitBreakerResetTimeout) * time.Second,
	}, nil
}
