package ingest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-client/internal/config"
	"github.com/lexiqai/speech-client/internal/observability"
	"github.com/lexiqai/speech-client/pkg/speech"
)

// maxUploadBytes bounds an uploaded recording. Fifteen seconds of 16 bit
// stereo audio at 48kHz fits comfortably.
const maxUploadBytes = 8 << 20

// Recognizer runs one recognition request. *speech.Client implements it.
type Recognizer interface {
	SpeechToTextSimple(ctx context.Context, source speech.AudioSource) (*speech.SimpleResult, error)
	SpeechToTextDetailed(ctx context.Context, source speech.AudioSource) (*speech.DetailedResult, error)
}

// Gateway accepts recordings over HTTP and WebSocket and forwards them to
// the speech service
type Gateway struct {
	recognizer Recognizer
	cfg        *config.Config
	sessions   chan struct{}
	uploadMax  int64
	logger     zerolog.Logger
}

// NewGateway creates a gateway that admits at most cfg.MaxConcurrentSessions
// recognitions at a time
func NewGateway(recognizer Recognizer, cfg *config.Config) *Gateway {
	limit := cfg.MaxConcurrentSessions
	if limit <= 0 {
		limit = 1
	}
	return &Gateway{
		recognizer: recognizer,
		cfg:        cfg,
		sessions:   make(chan struct{}, limit),
		uploadMax:  maxUploadBytes,
		logger:     observability.ComponentLogger("ingest"),
	}
}

// Register mounts the gateway routes on mux
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/recognize", g.HandleUpload)
	mux.HandleFunc("/v1/recognize/stream", g.HandleStream)
}

func (g *Gateway) acquire() bool {
	select {
	case g.sessions <- struct{}{}:
		observability.SessionStarted()
		return true
	default:
		return false
	}
}

func (g *Gateway) release() {
	<-g.sessions
	observability.SessionEnded()
}

func (g *Gateway) recognize(ctx context.Context, source speech.AudioSource, output speech.OutputMode) (speech.Result, error) {
	if output == speech.OutputModeDetailed {
		detailed, err := g.recognizer.SpeechToTextDetailed(ctx, source)
		return speech.Result{Mode: output, Detailed: detailed}, err
	}
	simple, err := g.recognizer.SpeechToTextSimple(ctx, source)
	return speech.Result{Mode: output, Simple: simple}, err
}

// HandleUpload recognizes the request body.
// Query parameters: output (simple|detailed), and for raw PCM bodies
// sampleRate with optional channels and bits.
func (g *Gateway) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, ErrorFrame{Kind: "request", Error: "method not allowed"})
		return
	}

	q := r.URL.Query()
	output, err := parseOutput(q.Get("output"), g.cfg.OutputMode)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorFrame{Kind: "request", Error: err.Error()})
		return
	}
	format, err := uploadFormat(q.Get("sampleRate"), q.Get("channels"), q.Get("bits"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorFrame{Kind: "request", Error: err.Error()})
		return
	}

	if !g.acquire() {
		writeError(w, http.StatusServiceUnavailable, ErrorFrame{Kind: "busy", Error: "too many active sessions"})
		return
	}
	defer g.release()

	sessionID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(g.logger, sessionID)

	body := http.MaxBytesReader(w, r.Body, g.uploadMax)
	source := speech.ReaderSource(body, r.ContentLength).WithFormat(format)

	logger.Debug().
		Int64("content_length", r.ContentLength).
		Bool("raw_pcm", !source.Format().IsZero()).
		Str("output", output.String()).
		Msg("Recognizing upload")

	res, err := g.recognize(r.Context(), source, output)
	if err != nil {
		logger.Warn().Err(err).Str("kind", speech.ErrorKind(err)).Msg("Upload recognition failed")
		writeError(w, statusForError(err), ErrorFrame{
			SessionID: sessionID,
			Kind:      speech.ErrorKind(err),
			Error:     err.Error(),
		})
		return
	}

	logger.Info().
		Str("status", string(res.Status())).
		Msg("Upload recognized")
	writeJSON(w, http.StatusOK, resultPayload(res))
}

// uploadFormat parses optional raw PCM metadata. No sample rate means the
// body is already a WAV file.
func uploadFormat(sampleRate, channels, bits string) (speech.AudioFormat, error) {
	if sampleRate == "" {
		return speech.AudioFormat{}, nil
	}

	rate, err := strconv.Atoi(sampleRate)
	if err != nil {
		return speech.AudioFormat{}, errors.New("sampleRate must be an integer")
	}
	format := speech.MonoPCM16(rate)

	if channels != "" {
		if format.Channels, err = strconv.Atoi(channels); err != nil {
			return speech.AudioFormat{}, errors.New("channels must be an integer")
		}
	}
	if bits != "" {
		if format.BitsPerSample, err = strconv.Atoi(bits); err != nil {
			return speech.AudioFormat{}, errors.New("bits must be an integer")
		}
	}

	if err := validateFormat(format); err != nil {
		return speech.AudioFormat{}, err
	}
	return format, nil
}

// statusForError maps a recognition failure to the gateway's HTTP status
func statusForError(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, speech.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	switch speech.ErrorKind(err) {
	case "source":
		return http.StatusBadRequest
	case "auth", "api", "decode", "transport":
		return http.StatusBadGateway
	case "canceled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, frame ErrorFrame) {
	frame.Event = EventError
	writeJSON(w, code, frame)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
