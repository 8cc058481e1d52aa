package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	traceIDHeader   = "X-ClientTraceId"
	maxResponseSize = 1 << 20
)

// Config configures a Client. Zero values fall back to the defaults noted.
type Config struct {
	SubscriptionKey string // required
	Region          string // used by endpoints with PrefixWithRegion

	Language        string // default "en-US"
	RecognitionMode RecognitionMode
	ProfanityMode   ProfanityMode
	OutputMode      OutputMode // used by SpeechToText
	APIVersion      string     // default "v1"
	AuthMode        AuthenticationMode

	AuthEndpoint        Endpoint // default DefaultAuthEndpoint
	RecognitionEndpoint Endpoint // default DefaultRecognitionEndpoint

	// HTTPClient sends both token and recognition requests.
	// Its Timeout must be zero or longer than the longest recording.
	HTTPClient *http.Client
	// RequestTimeout bounds a whole recognition call; zero means none
	RequestTimeout time.Duration

	Stream StreamOptions

	// AuthCircuitBreakerMaxFailures enables a circuit breaker around token
	// requests when positive
	AuthCircuitBreakerMaxFailures  int
	AuthCircuitBreakerResetTimeout time.Duration

	// Logger defaults to the global logger
	Logger *zerolog.Logger
	// Metrics defaults to a recorder that drops everything
	Metrics Metrics
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.APIVersion == "" {
		c.APIVersion = "v1"
	}
	if c.AuthEndpoint.IsZero() {
		c.AuthEndpoint = DefaultAuthEndpoint
	}
	if c.RecognitionEndpoint.IsZero() {
		c.RecognitionEndpoint = DefaultRecognitionEndpoint
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.AuthCircuitBreakerResetTimeout <= 0 {
		c.AuthCircuitBreakerResetTimeout = 30 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	c.Stream = c.Stream.withDefaults()
	return c
}

// Client talks to the speech recognition REST API. It is safe for
// concurrent use; each call keeps its own retry state.
type Client struct {
	config     Config
	auth       *AuthClient
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.RWMutex
	authMode AuthenticationMode
}

// NewClient creates a client for the given configuration
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SubscriptionKey) == "" {
		return nil, ErrMissingSubscriptionKey
	}
	cfg = cfg.withDefaults()

	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	logger := base.With().Str("component", "speech").Logger()

	return &Client{
		config:     cfg,
		auth:       newAuthClient(cfg, cfg.HTTPClient, logger),
		httpClient: cfg.HTTPClient,
		logger:     logger,
		authMode:   cfg.AuthMode,
	}, nil
}

// Config returns the effective configuration
func (c *Client) Config() Config {
	return c.config
}

// AuthenticationMode returns the current authentication mode
func (c *Client) AuthenticationMode() AuthenticationMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authMode
}

// SetAuthenticationMode switches how requests are authorized. Switching to
// subscription-key mode discards any cached token.
func (c *Client) SetAuthenticationMode(mode AuthenticationMode) {
	c.mu.Lock()
	c.authMode = mode
	c.mu.Unlock()

	if mode == AuthModeSubscriptionKey {
		c.auth.ClearToken()
	}
}

// Authenticate fetches a token ahead of the first call, or a fresh one with
// force. It does nothing in subscription-key mode.
func (c *Client) Authenticate(ctx context.Context, force bool) error {
	if c.AuthenticationMode() != AuthModeToken {
		return nil
	}
	_, err := c.auth.Authenticate(ctx, force)
	return err
}

// ClearAuthToken discards the cached token
func (c *Client) ClearAuthToken() {
	c.auth.ClearToken()
}

// AuthCircuitState reports the auth circuit breaker state
// ("closed", "open" or "half-open")
func (c *Client) AuthCircuitState() string {
	return c.auth.CircuitState().String()
}

// SpeechToText recognizes source using the configured output mode
func (c *Client) SpeechToText(ctx context.Context, source AudioSource) (Result, error) {
	return c.recognizeAs(ctx, source, c.config.OutputMode)
}

// SpeechToTextSimple recognizes source and returns the simple result shape
func (c *Client) SpeechToTextSimple(ctx context.Context, source AudioSource) (*SimpleResult, error) {
	res, err := c.recognizeAs(ctx, source, OutputModeSimple)
	if err != nil {
		return nil, err
	}
	return res.Simple, nil
}

// SpeechToTextDetailed recognizes source and returns the N-best result shape
func (c *Client) SpeechToTextDetailed(ctx context.Context, source AudioSource) (*DetailedResult, error) {
	res, err := c.recognizeAs(ctx, source, OutputModeDetailed)
	if err != nil {
		return nil, err
	}
	return res.Detailed, nil
}

// RecognitionURL returns the request URL for an output mode:
// {endpoint}/{mode}/cognitiveservices/{version}?language=&format=&profanity=
func (c *Client) RecognitionURL(output OutputMode) string {
	u := c.config.RecognitionEndpoint.URL(c.config.Region)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + c.config.RecognitionMode.String() +
		"/cognitiveservices/" + c.config.APIVersion

	params := fmt.Sprintf("language=%s&format=%s&profanity=%s",
		url.QueryEscape(c.config.Language),
		url.QueryEscape(output.String()),
		url.QueryEscape(c.config.ProfanityMode.String()),
	)
	if u.RawQuery != "" {
		u.RawQuery = u.RawQuery + "&" + params
	} else {
		u.RawQuery = params
	}
	return u.String()
}

func (c *Client) recognizeAs(ctx context.Context, source AudioSource, output OutputMode) (Result, error) {
	start := time.Now()

	res, err := c.recognize(ctx, source, output)
	if err != nil {
		c.config.Metrics.RecognitionFinished(ErrorKind(err)+"_error", time.Since(start))
		return Result{}, err
	}

	c.config.Metrics.RecognitionFinished("success", time.Since(start))
	return res, nil
}

func (c *Client) recognize(ctx context.Context, source AudioSource, output OutputMode) (Result, error) {
	if err := source.validate(); err != nil {
		return Result{}, err
	}

	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	traceID := uuid.NewString()
	logger := c.logger.With().
		Str("correlation_id", traceID).
		Str("output", output.String()).
		Str("source", source.kind.String()).
		Logger()

	mode := c.AuthenticationMode()
	body := newBodyBuilder(source, c.config.Stream, mode == AuthModeToken, logger, c.config.Metrics)
	target := c.RecognitionURL(output)

	// At most one reauthentication per call
	retried := false
	for {
		req := outgoingRequest{url: target, traceID: traceID, contentType: source.contentType()}

		if mode == AuthModeToken {
			token, err := c.auth.Authenticate(ctx, retried)
			if err != nil {
				return Result{}, err
			}
			req.token = token
		}

		mayRetry := mode == AuthModeToken && !retried
		status, reason, payload, err := c.send(ctx, req, body, mayRetry, logger)
		if err != nil {
			return Result{}, err
		}

		if isSuccessStatus(status) {
			logger.Debug().Int("status", status).Bool("retried", retried).Msg("Recognition request succeeded")
			return decodeResult(payload, output)
		}

		if isAuthStatus(status) && mode == AuthModeToken && !retried {
			logger.Warn().Int("status", status).Msg("Recognition request rejected, refreshing token and resending")
			c.config.Metrics.AuthRetried()
			retried = true
			continue
		}

		apiErr := &APIError{StatusCode: status, Reason: reason, Body: string(payload)}
		logger.Error().Err(apiErr).Bool("retried", retried).Msg("Recognition request failed")
		return Result{}, apiErr
	}
}

type outgoingRequest struct {
	url         string
	token       string
	traceID     string
	contentType string
}

// send performs one attempt. When another attempt may follow it waits for
// the body producer to stop so the next body can replay what was consumed.
func (c *Client) send(ctx context.Context, r outgoingRequest, body *bodyBuilder, mayRetry bool, logger zerolog.Logger) (int, string, []byte, error) {
	stream := body.open(ctx)
	defer func() {
		stream.Close()
		if mayRetry {
			stream.wait()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, stream)
	if err != nil {
		return 0, "", nil, &TransportError{Err: err}
	}
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Accept", "application/json, text/xml")
	req.Header.Set("Content-Type", r.contentType)
	req.Header.Set("Expect", "100-continue")
	req.Header.Set(traceIDHeader, r.traceID)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	} else {
		req.Header.Set(subscriptionKeyHeader, c.config.SubscriptionKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The producer records its error before closing the pipe, so a
		// transport failure caused by the source is visible here
		if srcErr := stream.sourceErr(); srcErr != nil {
			return 0, "", nil, srcErr
		}
		logger.Error().Err(err).Msg("Recognition request transport failure")
		return 0, "", nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		logger.Error().Err(err).Int("status", resp.StatusCode).Msg("Failed to read recognition response")
		return 0, "", nil, &TransportError{Err: fmt.Errorf("reading response: %w", err)}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Int64("audio_bytes", stream.bytesStreamed()).
		Msg("Recognition response received")

	return resp.StatusCode, reasonPhrase(resp), payload, nil
}

func decodeResult(payload []byte, output OutputMode) (Result, error) {
	res := Result{Mode: output}

	switch output {
	case OutputModeDetailed:
		var detailed DetailedResult
		if err := json.Unmarshal(payload, &detailed); err != nil {
			return Result{}, &DecodeError{Body: string(payload), Err: err}
		}
		res.Detailed = &detailed
	default:
		var simple SimpleResult
		if err := json.Unmarshal(payload, &simple); err != nil {
			return Result{}, &DecodeError{Body: string(payload), Err: err}
		}
		res.Simple = &simple
	}
	return res, nil
}
