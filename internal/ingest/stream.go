package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-client/internal/audio"
	"github.com/lexiqai/speech-client/internal/observability"
	"github.com/lexiqai/speech-client/pkg/speech"
)

// startTimeout bounds the wait for the start frame after the upgrade
const startTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Clients are native apps, not browsers
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type outcome struct {
	result speech.Result
	err    error
}

// streamSession holds the state of one live recording
type streamSession struct {
	conn     *websocket.Conn
	id       string
	settings sessionSettings

	buffer *audio.LiveBuffer
	vad    *audio.VADDetector

	received   atomic.Int64
	finishOnce sync.Once
	stopReason string
	closing    atomic.Bool

	logger zerolog.Logger
}

// HandleStream records audio from a WebSocket client and recognizes it
// while the recording is still in progress.
//
// The client sends a start frame, then binary audio frames. The recording
// ends on a stop frame, on sustained silence, or when the recording
// timeout expires. The server answers with one result or error frame and
// closes the socket.
func (g *Gateway) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !g.acquire() {
		writeError(w, http.StatusServiceUnavailable, ErrorFrame{Kind: "busy", Error: "too many active sessions"})
		return
	}
	defer g.release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		g.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	sessionID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(g.logger, sessionID)

	settings, err := g.readStart(conn)
	if err != nil {
		logger.Warn().Err(err).Msg("Rejected stream start")
		writeFrame(conn, ErrorFrame{Event: EventError, SessionID: sessionID, Kind: "request", Error: err.Error()})
		closeNormally(conn)
		return
	}

	s := g.newStreamSession(conn, sessionID, settings, logger)
	logger.Info().
		Int("sample_rate", settings.format.SampleRate).
		Int("channels", settings.format.Channels).
		Str("encoding", string(settings.encoding)).
		Str("output", settings.output.String()).
		Msg("Stream session started")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Recognition starts now and streams the recording as it grows
	results := make(chan outcome, 1)
	go func() {
		source := speech.LiveSource(s.buffer, s.buffer.Done()).WithFormat(settings.format)
		res, err := g.recognize(ctx, source, settings.output)
		results <- outcome{result: res, err: err}
	}()

	if g.cfg.RecordingTimeout > 0 {
		timer := time.AfterFunc(g.cfg.RecordingTimeout, func() { s.finish("timeout") })
		defer timer.Stop()
	}

	go s.readLoop(cancel)

	out := <-results
	s.finish("recognized")

	event := logger.Info().
		Str("stop_reason", s.stopReason).
		Int64("bytes_received", s.received.Load())
	if out.err != nil {
		event.Err(out.err).Str("kind", speech.ErrorKind(out.err)).Msg("Stream session failed")
		writeFrame(conn, ErrorFrame{
			Event:     EventError,
			SessionID: sessionID,
			Kind:      speech.ErrorKind(out.err),
			Error:     out.err.Error(),
		})
	} else {
		event.Str("status", string(out.result.Status())).Msg("Stream session recognized")
		writeFrame(conn, ResultFrame{
			Event:     EventResult,
			SessionID: sessionID,
			Status:    out.result.Status(),
			Text:      out.result.Text(),
			Result:    resultPayload(out.result),
		})
	}

	s.closing.Store(true)
	closeNormally(conn)
}

func (g *Gateway) readStart(conn *websocket.Conn) (sessionSettings, error) {
	if err := conn.SetReadDeadline(time.Now().Add(startTimeout)); err != nil {
		return sessionSettings{}, err
	}
	mt, data, err := conn.ReadMessage()
	if err != nil {
		return sessionSettings{}, fmt.Errorf("reading start frame: %w", err)
	}
	if mt != websocket.TextMessage {
		return sessionSettings{}, fmt.Errorf("expected a text start frame")
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return sessionSettings{}, err
	}

	var frame ControlFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return sessionSettings{}, fmt.Errorf("parsing start frame: %w", err)
	}
	return frame.settings(g.cfg.OutputMode)
}

func (g *Gateway) newStreamSession(conn *websocket.Conn, id string, settings sessionSettings, logger zerolog.Logger) *streamSession {
	s := &streamSession{
		conn:     conn,
		id:       id,
		settings: settings,
		buffer:   audio.NewLiveBuffer(g.cfg.AudioBufferSize),
		logger:   logger,
	}
	if g.cfg.VADEnabled {
		s.vad = audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: g.cfg.VADEnergyThreshold,
			SilenceFrames:   g.cfg.VADSilenceFrames,
			FrameSize:       g.cfg.VADFrameSize,
		})
	}
	return s
}

// readLoop consumes client frames until the socket closes. Losing the
// client cancels the recognition.
func (s *streamSession) readLoop(cancel context.CancelFunc) {
	defer cancel()

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			s.finish("disconnected")
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			s.handleAudio(data)
		case websocket.TextMessage:
			var frame ControlFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to parse control frame")
				continue
			}
			if frame.Event == EventStop {
				s.finish("stop")
			} else {
				s.logger.Debug().Str("event", frame.Event).Msg("Ignoring control frame")
			}
		}
	}
}

// handleAudio decodes a frame into the live buffer. Frames arriving after
// the recording ended are dropped.
func (s *streamSession) handleAudio(data []byte) {
	if s.buffer.IsFinished() || len(data) == 0 {
		return
	}

	pcm, err := audio.ToPCM16(data, s.settings.encoding)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Dropping undecodable audio frame")
		return
	}
	if _, err := s.buffer.Write(pcm); err != nil {
		return
	}
	s.received.Add(int64(len(data)))

	if s.vad != nil && s.vad.Feed(pcm) {
		s.finish("silence")
	}
}

// finish ends the recording once; the first reason wins
func (s *streamSession) finish(reason string) {
	s.finishOnce.Do(func() {
		s.stopReason = reason
		s.buffer.Finish()
		s.logger.Debug().
			Str("reason", reason).
			Int("buffered_bytes", s.buffer.Len()).
			Int("unsent_bytes", s.buffer.Available()).
			Msg("Recording finished")
	})
}

func writeFrame(conn *websocket.Conn, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
