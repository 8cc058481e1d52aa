package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lexiqai/speech-client/internal/resilience"
)

const (
	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	maxTokenSize          = 64 << 10
)

// AuthClient exchanges a subscription key for a bearer token and caches it.
// Expiry is not tracked; callers refresh with force after a 401/403.
type AuthClient struct {
	subscriptionKey string
	endpoint        Endpoint
	region          string
	httpClient      *http.Client
	breaker         *resilience.CircuitBreaker
	logger          zerolog.Logger
	metrics         Metrics

	mu    sync.RWMutex
	token string
	group singleflight.Group
}

func newAuthClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) *AuthClient {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	breaker := resilience.NewCircuitBreaker("speech_auth", cfg.AuthCircuitBreakerMaxFailures, cfg.AuthCircuitBreakerResetTimeout)
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		metrics.AuthCircuitChanged(name, int(state))
		logger.Warn().Str("service", name).Str("state", state.String()).Msg("Auth circuit breaker changed state")
	})

	return &AuthClient{
		subscriptionKey: cfg.SubscriptionKey,
		endpoint:        cfg.AuthEndpoint,
		region:          cfg.Region,
		httpClient:      httpClient,
		breaker:         breaker,
		logger:          logger.With().Str("component", "auth").Logger(),
		metrics:         metrics,
	}
}

// Token returns the cached token, or "" if none has been fetched
func (a *AuthClient) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// ClearToken discards the cached token
func (a *AuthClient) ClearToken() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}

// CircuitState reports the auth circuit breaker state
func (a *AuthClient) CircuitState() resilience.CircuitState {
	return a.breaker.State()
}

// Authenticate returns a usable token, fetching one when none is cached or
// force is set. Concurrent refreshes share a single request. On failure the
// cached token is cleared so the next call fetches again.
func (a *AuthClient) Authenticate(ctx context.Context, force bool) (string, error) {
	if !force {
		if token := a.Token(); token != "" {
			return token, nil
		}
	}

	v, err, shared := a.group.Do("token", func() (interface{}, error) {
		token, err := a.fetch(ctx)

		a.mu.Lock()
		a.token = token
		a.mu.Unlock()

		return token, err
	})
	if shared {
		a.logger.Debug().Msg("Joined in-flight token request")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (a *AuthClient) fetch(ctx context.Context) (string, error) {
	url := a.endpoint.URL(a.region).String()

	var token string
	err := a.breaker.Call(func() error {
		var err error
		token, err = a.requestToken(ctx, url)
		return err
	})

	a.metrics.AuthTokenRequested(err == nil)

	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = &AuthError{Err: ErrCircuitOpen}
		}
		a.logger.Error().Err(err).Str("url", url).Msg("Failed to obtain auth token")
		return "", err
	}

	a.logger.Debug().Str("url", url).Msg("Obtained auth token")
	return token, nil
}

func (a *AuthClient) requestToken(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("building token request: %w", err)}
	}
	req.Header.Set(subscriptionKeyHeader, a.subscriptionKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenSize))
	if err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Reason: reasonPhrase(resp), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{
			StatusCode: resp.StatusCode,
			Reason:     reasonPhrase(resp),
			Err:        fmt.Errorf("token endpoint returned %s", resp.Status),
		}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Reason: reasonPhrase(resp), Err: errors.New("empty token in response")}
	}
	return token, nil
}
