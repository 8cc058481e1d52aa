package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-client/internal/audio"
)

const (
	detailedJSON = `{"RecognitionStatus":"Success","Offset":22500000,"Duration":21000000,"NBest":[{"Confidence":0.94,"Lexical":"find a funny movie","ITN":"find a funny movie","MaskedITN":"find a funny movie","Display":"Find a funny movie."}]}`
	simpleJSON   = `{"RecognitionStatus":"Success","DisplayText":"This is a test.","Offset":8500000,"Duration":27800000}`
)

// fakeService stands in for both the token and the recognition endpoints
type fakeService struct {
	t      *testing.T
	server *httptest.Server

	mu               sync.Mutex
	tokenCalls       int
	recognitionCalls int
	bodies           [][]byte
	requests         []*http.Request

	tokenStatus func(call int) int
	recognize   func(w http.ResponseWriter, r *http.Request, call int)
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	f := &fakeService{t: t}
	mux := http.NewServeMux()

	mux.HandleFunc("/sts/v1.0/issueToken", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		call := f.tokenCalls
		statusFn := f.tokenStatus
		f.mu.Unlock()

		if r.Method != http.MethodPost {
			t.Errorf("Expected POST to token endpoint, got %s", r.Method)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Errorf("Expected subscription key header, got %q", r.Header.Get("Ocp-Apim-Subscription-Key"))
		}

		if statusFn != nil {
			if status := statusFn(call); status != http.StatusOK {
				w.WriteHeader(status)
				return
			}
		}
		fmt.Fprintf(w, "token-%d", call)
	})

	mux.HandleFunc("/speech/recognition/", func(w http.ResponseWriter, r *http.Request) {
		// Aborted uploads show up as read errors; keep what arrived
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.recognitionCalls++
		call := f.recognitionCalls
		f.bodies = append(f.bodies, body)
		f.requests = append(f.requests, r)
		handler := f.recognize
		f.mu.Unlock()

		if handler == nil {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, simpleJSON)
			return
		}
		handler(w, r, call)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) counts() (tokens, recognitions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls, f.recognitionCalls
}

func (f *fakeService) setRecognize(fn func(w http.ResponseWriter, r *http.Request, call int)) {
	f.mu.Lock()
	f.recognize = fn
	f.mu.Unlock()
}

func (f *fakeService) setTokenStatus(fn func(call int) int) {
	f.mu.Lock()
	f.tokenStatus = fn
	f.mu.Unlock()
}

func (f *fakeService) body(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[i]
}

func (f *fakeService) request(i int) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeService) client(t *testing.T, mutate func(*Config)) *Client {
	t.Helper()

	authEndpoint, err := ParseEndpoint(f.server.URL+"/sts/v1.0/issueToken", false)
	if err != nil {
		t.Fatal(err)
	}
	recognitionEndpoint, err := ParseEndpoint(f.server.URL+"/speech/recognition", false)
	if err != nil {
		t.Fatal(err)
	}

	logger := zerolog.Nop()
	cfg := Config{
		SubscriptionKey:     "test-key",
		AuthEndpoint:        authEndpoint,
		RecognitionEndpoint: recognitionEndpoint,
		Stream:              fastStreamOptions(),
		Logger:              &logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClient_RequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); !errors.Is(err, ErrMissingSubscriptionKey) {
		t.Errorf("Expected ErrMissingSubscriptionKey, got %v", err)
	}
}

func TestClient_RecognitionURL(t *testing.T) {
	logger := zerolog.Nop()
	tests := []struct {
		name string
		cfg  Config
		mode OutputMode
		want string
	}{
		{
			name: "defaults",
			cfg:  Config{SubscriptionKey: "k", Logger: &logger},
			mode: OutputModeSimple,
			want: "https://speech.platform.bing.com/speech/recognition/interactive/cognitiveservices/v1?language=en-US&format=simple&profanity=masked",
		},
		{
			name: "regional speech service",
			cfg: Config{
				SubscriptionKey:     "k",
				Region:              "WestEurope",
				Language:            "de-DE",
				RecognitionMode:     RecognitionModeDictation,
				ProfanityMode:       ProfanityModeRaw,
				RecognitionEndpoint: SpeechServiceEndpoint,
				Logger:              &logger,
			},
			mode: OutputModeDetailed,
			want: "https://westeurope.stt.speech.microsoft.com/speech/recognition/dictation/cognitiveservices/v1?language=de-DE&format=detailed&profanity=raw",
		},
		{
			name: "custom endpoint with static query and version",
			cfg: Config{
				SubscriptionKey:     "k",
				APIVersion:          "v2",
				RecognitionEndpoint: Endpoint{Protocol: "http", Host: "localhost", Port: 5000, Path: "/speech/recognition/", Query: "cid=42"},
				Logger:              &logger,
			},
			mode: OutputModeSimple,
			want: "http://localhost:5000/speech/recognition/interactive/cognitiveservices/v2?cid=42&language=en-US&format=simple&profanity=masked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if got := client.RecognitionURL(tt.mode); got != tt.want {
				t.Errorf("RecognitionURL() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestClient_SpeechToTextSimple(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t, nil)

	data := testAudio(3000)
	format := MonoPCM16(16000)
	src := ReaderSource(bytes.NewReader(data), int64(len(data))).WithFormat(format)

	res, err := client.SpeechToTextSimple(context.Background(), src)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.DisplayText != "This is a test." {
		t.Errorf("Expected DisplayText %q, got %q", "This is a test.", res.DisplayText)
	}
	if res.RecognitionStatus != StatusSuccess {
		t.Errorf("Expected Success, got %q", res.RecognitionStatus)
	}
	if res.Offset.Duration() != 850*time.Millisecond {
		t.Errorf("Expected offset 850ms, got %v", res.Offset.Duration())
	}
	if res.Duration.Duration() != 2780*time.Millisecond {
		t.Errorf("Expected duration 2.78s, got %v", res.Duration.Duration())
	}

	tokens, recognitions := svc.counts()
	if tokens != 1 || recognitions != 1 {
		t.Errorf("Expected 1 token and 1 recognition request, got %d and %d", tokens, recognitions)
	}

	want := append(wavHeader(t, format, int64(len(data))), data...)
	if !bytes.Equal(svc.body(0), want) {
		t.Errorf("Expected body of header + audio (%d bytes), got %d bytes", len(want), len(svc.body(0)))
	}
}

func TestClient_RequestHeadersAndQuery(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t, func(cfg *Config) {
		cfg.Language = "fr-FR"
		cfg.ProfanityMode = ProfanityModeRemoved
		cfg.RecognitionMode = RecognitionModeConversation
	})

	src := ReaderSource(bytes.NewReader(testAudio(100)), 100).WithFormat(MonoPCM16(16000))
	if _, err := client.SpeechToTextSimple(context.Background(), src); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	r := svc.request(0)
	if r.Method != http.MethodPost {
		t.Errorf("Expected POST, got %s", r.Method)
	}
	if r.URL.Path != "/speech/recognition/conversation/cognitiveservices/v1" {
		t.Errorf("Unexpected path %q", r.URL.Path)
	}
	q := r.URL.Query()
	if q.Get("language") != "fr-FR" || q.Get("format") != "simple" || q.Get("profanity") != "removed" {
		t.Errorf("Unexpected query %q", r.URL.RawQuery)
	}
	if len(r.TransferEncoding) == 0 || r.TransferEncoding[0] != "chunked" {
		t.Errorf("Expected chunked transfer encoding, got %v", r.TransferEncoding)
	}
	if r.Header.Get("Accept") != "application/json, text/xml" {
		t.Errorf("Unexpected Accept %q", r.Header.Get("Accept"))
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "audio/wav") {
		t.Errorf("Unexpected Content-Type %q", r.Header.Get("Content-Type"))
	}
	if r.Header.Get("Authorization") != "Bearer token-1" {
		t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
	}
	if r.Header.Get("Ocp-Apim-Subscription-Key") != "" {
		t.Error("Expected no subscription key on recognition request in token mode")
	}
	if r.Header.Get("X-ClientTraceId") == "" {
		t.Error("Expected a trace id header")
	}
}

func TestClient_SpeechToTextDetailed(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		if r.URL.Query().Get("format") != "detailed" {
			t.Errorf("Expected detailed format, got %q", r.URL.Query().Get("format"))
		}
		io.WriteString(w, detailedJSON)
	})
	client := svc.client(t, nil)

	res, err := client.SpeechToTextDetailed(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	best, ok := res.Best()
	if !ok {
		t.Fatal("Expected at least one alternative")
	}
	if best.Display != "Find a funny movie." {
		t.Errorf("Expected Display %q, got %q", "Find a funny movie.", best.Display)
	}
	if best.Confidence != 0.94 {
		t.Errorf("Expected Confidence 0.94, got %v", best.Confidence)
	}
	if best.Lexical != "find a funny movie" || best.ITN != "find a funny movie" || best.MaskedITN != "find a funny movie" {
		t.Errorf("Unexpected alternative %+v", best)
	}
	if res.Offset != 22500000 || res.Duration != 21000000 {
		t.Errorf("Unexpected offset/duration %d/%d", res.Offset, res.Duration)
	}
}

func TestClient_SpeechToTextUsesConfiguredOutputMode(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		io.WriteString(w, detailedJSON)
	})
	client := svc.client(t, func(cfg *Config) { cfg.OutputMode = OutputModeDetailed })

	res, err := client.SpeechToText(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Mode != OutputModeDetailed || res.Detailed == nil || res.Simple != nil {
		t.Fatalf("Expected detailed variant only, got %+v", res)
	}
	if res.Text() != "Find a funny movie." || res.Status() != StatusSuccess {
		t.Errorf("Unexpected text %q status %q", res.Text(), res.Status())
	}
}

func TestClient_ReauthenticatesOnceOn403(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		if call == 1 {
			if r.Header.Get("Authorization") != "Bearer token-1" {
				t.Errorf("Expected first token, got %q", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer token-2" {
			t.Errorf("Expected refreshed token, got %q", r.Header.Get("Authorization"))
		}
		io.WriteString(w, simpleJSON)
	})
	client := svc.client(t, nil)

	data := testAudio(2500)
	format := MonoPCM16(16000)
	src := ReaderSource(bytes.NewReader(data), int64(len(data))).WithFormat(format)

	res, err := client.SpeechToTextSimple(context.Background(), src)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.DisplayText != "This is a test." {
		t.Errorf("Unexpected DisplayText %q", res.DisplayText)
	}

	tokens, recognitions := svc.counts()
	if recognitions != 2 {
		t.Errorf("Expected exactly 2 recognition requests, got %d", recognitions)
	}
	// One initial fetch plus one forced refresh
	if tokens != 2 {
		t.Errorf("Expected 2 token requests, got %d", tokens)
	}

	want := append(wavHeader(t, format, int64(len(data))), data...)
	if !bytes.Equal(svc.body(1), want) {
		t.Errorf("Expected resent body to be rebuilt in full (%d bytes), got %d", len(want), len(svc.body(1)))
	}
}

// recordingMetrics keeps every event it receives
type recordingMetrics struct {
	mu           sync.Mutex
	statuses     []string
	tokenResults []bool
	retries      int
	audio        map[string]int64
}

func (m *recordingMetrics) RecognitionFinished(status string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func (m *recordingMetrics) AuthTokenRequested(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenResults = append(m.tokenResults, success)
}

func (m *recordingMetrics) AuthRetried() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *recordingMetrics) AudioStreamed(source string, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.audio == nil {
		m.audio = make(map[string]int64)
	}
	m.audio[source] += bytes
}

func (m *recordingMetrics) AuthCircuitChanged(service string, state int) {}

func (m *recordingMetrics) streamed(source string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audio[source]
}

func TestClient_ReportsMetrics(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		if call == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, simpleJSON)
	})
	metrics := &recordingMetrics{}
	client := svc.client(t, func(cfg *Config) {
		cfg.Metrics = metrics
	})

	if _, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(500)), 500)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		w.WriteHeader(http.StatusBadRequest)
	})
	if _, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(500)), 500)); err == nil {
		t.Fatal("Expected an error")
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.statuses) != 2 || metrics.statuses[0] != "success" || metrics.statuses[1] != "api_error" {
		t.Errorf("Unexpected recognition statuses %v", metrics.statuses)
	}
	if metrics.retries != 1 {
		t.Errorf("Expected 1 auth retry, got %d", metrics.retries)
	}
	if len(metrics.tokenResults) != 2 || !metrics.tokenResults[0] || !metrics.tokenResults[1] {
		t.Errorf("Expected 2 successful token requests, got %v", metrics.tokenResults)
	}
	if metrics.audio["reader"] == 0 {
		t.Error("Expected streamed reader audio to be reported")
	}
}

func TestClient_PersistentAuthFailure(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "token expired")
	})
	client := svc.client(t, nil)

	_, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(100)), 100))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Reason != "Forbidden" || apiErr.Body != "token expired" {
		t.Errorf("Unexpected APIError %+v", apiErr)
	}
	if !IsAuthFailure(err) {
		t.Error("Expected IsAuthFailure to be true")
	}

	tokens, recognitions := svc.counts()
	if recognitions != 2 || tokens != 2 {
		t.Errorf("Expected 2 recognition and 2 token requests, got %d and %d", recognitions, tokens)
	}

	// The retry budget belongs to the call, so the next call retries again
	_, err = client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(100)), 100))
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError on second call, got %v", err)
	}
	_, recognitions = svc.counts()
	if recognitions != 4 {
		t.Errorf("Expected 4 recognition requests after two calls, got %d", recognitions)
	}
}

func TestClient_LiveSourceRetry(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		if call == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, simpleJSON)
	})
	client := svc.client(t, nil)

	buf := audio.NewLiveBuffer(0)
	data := testAudio(1024)
	go func() {
		for i := 0; i < len(data); i += 128 {
			buf.Write(data[i : i+128])
			time.Sleep(5 * time.Millisecond)
		}
		buf.Finish()
	}()

	format := MonoPCM16(16000)
	res, err := client.SpeechToTextSimple(context.Background(), LiveSource(buf, buf.Done()).WithFormat(format))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.DisplayText != "This is a test." {
		t.Errorf("Unexpected DisplayText %q", res.DisplayText)
	}

	want := append(wavHeader(t, format, audio.UnknownLength), data...)
	if !bytes.Equal(svc.body(1), want) {
		t.Errorf("Expected resent live body to hold every byte (%d), got %d", len(want), len(svc.body(1)))
	}
}

func TestClient_SubscriptionKeyMode(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Errorf("Expected subscription key header, got %q", r.Header.Get("Ocp-Apim-Subscription-Key"))
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("Expected no Authorization header, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := svc.client(t, func(cfg *Config) { cfg.AuthMode = AuthModeSubscriptionKey })

	_, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10))

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 APIError, got %v", err)
	}

	tokens, recognitions := svc.counts()
	if tokens != 0 || recognitions != 1 {
		t.Errorf("Expected no token requests and no resend, got %d and %d", tokens, recognitions)
	}
}

func TestClient_SetAuthenticationModeClearsToken(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t, nil)

	if err := client.Authenticate(context.Background(), false); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if client.auth.Token() != "token-1" {
		t.Fatalf("Expected cached token, got %q", client.auth.Token())
	}

	client.SetAuthenticationMode(AuthModeSubscriptionKey)
	if client.auth.Token() != "" {
		t.Error("Expected token to be cleared when switching to key mode")
	}
	if err := client.Authenticate(context.Background(), true); err != nil {
		t.Fatalf("Expected no-op in key mode, got %v", err)
	}

	client.SetAuthenticationMode(AuthModeToken)
	if _, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if svc.request(0).Header.Get("Authorization") != "Bearer token-2" {
		t.Errorf("Expected a fresh token after switching back, got %q", svc.request(0).Header.Get("Authorization"))
	}
}

func TestClient_APIError(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "bad audio")
	})
	client := svc.client(t, nil)

	_, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Body != "bad audio" {
		t.Errorf("Unexpected APIError %+v", apiErr)
	}
	if IsAuthFailure(err) {
		t.Error("Expected 400 not to count as auth failure")
	}
	if _, recognitions := svc.counts(); recognitions != 1 {
		t.Errorf("Expected no resend for 400, got %d requests", recognitions)
	}
	if ErrorKind(err) != "api" {
		t.Errorf("Expected api kind, got %q", ErrorKind(err))
	}
}

func TestClient_DecodeError(t *testing.T) {
	svc := newFakeService(t)
	svc.setRecognize(func(w http.ResponseWriter, r *http.Request, call int) {
		io.WriteString(w, "<xml>not json</xml>")
	})
	client := svc.client(t, nil)

	_, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10))

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
	if decodeErr.Body != "<xml>not json</xml>" {
		t.Errorf("Expected raw body on DecodeError, got %q", decodeErr.Body)
	}
}

func TestClient_AuthError(t *testing.T) {
	svc := newFakeService(t)
	svc.setTokenStatus(func(call int) int { return http.StatusUnauthorized })
	client := svc.client(t, nil)

	_, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10))

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized || authErr.Reason != "Unauthorized" {
		t.Errorf("Unexpected AuthError %+v", authErr)
	}
	if _, recognitions := svc.counts(); recognitions != 0 {
		t.Errorf("Expected no recognition request without a token, got %d", recognitions)
	}
}

func TestClient_TransportError(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t, func(cfg *Config) { cfg.AuthMode = AuthModeSubscriptionKey })
	svc.server.Close()

	_, err := client.SpeechToTextSimple(context.Background(), ReaderSource(bytes.NewReader(testAudio(10)), 10))

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if ErrorKind(err) != "transport" {
		t.Errorf("Expected transport kind, got %q", ErrorKind(err))
	}
}

func TestClient_MissingFile(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t, nil)

	_, err := client.SpeechToTextSimple(context.Background(), FileSource("/does/not/exist.wav"))

	var srcErr *SourceReadError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Expected SourceReadError, got %v", err)
	}
	if tokens, recognitions := svc.counts(); tokens != 0 || recognitions != 0 {
		t.Errorf("Expected no requests for a missing file, got %d and %d", tokens, recognitions)
	}
}

func TestClient_NoAudioSource(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t, nil)

	if _, err := client.SpeechToText(context.Background(), AudioSource{}); !errors.Is(err, ErrNoAudioSource) {
		t.Errorf("Expected ErrNoAudioSource, got %v", err)
	}
}

func TestClient_ContextCancelledDuringLiveStream(t *testing.T) {
	svc := newFakeService(t)
	client := svc.client(t, func(cfg *Config) { cfg.AuthMode = AuthModeSubscriptionKey })

	buf := audio.NewLiveBuffer(0)
	buf.Write(testAudio(256))
	never := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := client.SpeechToTextSimple(ctx, LiveSource(buf, never))
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Recognition did not stop after the context expired")
	}
}
