// Package httpapi exposes the realtime voice websocket and the operational
// HTTP endpoints.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/config"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/observability"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/protocol"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/session"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/voice"
)

// TurnRunner starts the turn pipeline for one finalized input.
type TurnRunner interface {
	RunTurn(ctx context.Context, sess *session.Session, input, trigger string)
}

type Server struct {
	cfg         config.Config
	transcriber voice.TranscriptionProvider
	turns       TurnRunner
	sessions    *session.Registry
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

func New(cfg config.Config, transcriber voice.TranscriptionProvider, turns TurnRunner, sessions *session.Registry, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		transcriber: transcriber,
		turns:       turns,
		sessions:    sessions,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser audio capture pages may be served from anywhere
				// during development; same-origin is enforced only when
				// configured.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleConversationWS)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Post("/v1/perf/latency/reset", s.handlePerfReset)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"provider_mode":   s.cfg.ProviderMode,
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"tts_provider":  s.cfg.DefaultTTSProvider,
		"provider_mode": s.cfg.ProviderMode,
	})
}

// wsConn serializes writes to one websocket. Write calls come from the read
// loop, the transcript consumer, turn goroutines and the delivery queue.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeBinary(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		respondJSON(w, http.StatusOK, map[string]any{
			"service": "nexus-voice",
			"usage":   "connect with a websocket client; optional query params: ttsProvider, voice, systemInstruction",
		})
		return
	}

	opts := session.ParseOptions(r.URL.Query(), s.cfg.DefaultTTSProvider, s.cfg.DefaultVoice)

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	sess := session.New(opts, conn.writeJSON, conn.writeBinary)
	s.sessions.Add(sess)
	defer func() {
		s.sessions.Remove(sess.ID)
		sess.Close()
	}()

	s.metrics.ActiveConnections.Inc()
	s.metrics.ConnectionEvents.WithLabelValues("connected").Inc()
	defer func() {
		s.metrics.ActiveConnections.Dec()
		s.metrics.ConnectionEvents.WithLabelValues("disconnected").Inc()
	}()
	log.Printf("session %s: client connected (ttsProvider=%s voice=%s)", sess.ID, opts.TTSProvider, opts.Voice)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queue := voice.NewDeliveryQueue(ctx, conn.writeBinary, func(seq int, text string, err error) {
		s.metrics.ProviderErrors.WithLabelValues(opts.TTSProvider, "synthesis_skipped").Inc()
		s.metrics.ObserveTurnIndicator("synthesis_skipped")
	})
	sess.AttachQueue(queue)

	// A transcription open failure leaves the connection usable for the
	// text_input path; audio frames are dropped until the client reconnects.
	tsession, events, err := s.transcriber.StartSession(ctx)
	if err != nil {
		log.Printf("session %s: transcription open failed: %v", sess.ID, err)
		s.metrics.ProviderErrors.WithLabelValues("deepgram", "open").Inc()
	} else {
		sess.AttachTranscription(tsession)
		go s.consumeTranscripts(ctx, sess, events)
	}

	raw.SetReadLimit(2 << 20)

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			log.Printf("session %s: client disconnected", sess.ID)
			return
		}

		parsed, err := protocol.ParseClientMessage(data)
		switch {
		case err == protocol.ErrNotControl:
			s.metrics.WSMessages.WithLabelValues("in", "audio").Inc()
			sess.ForwardAudio(data)
			continue
		case err != nil:
			// Unrecognized control frames are dropped silently.
			continue
		}

		switch msg := parsed.(type) {
		case protocol.TextInput:
			s.metrics.WSMessages.WithLabelValues("in", string(protocol.EventTextInput)).Inc()
			s.turns.RunTurn(ctx, sess, msg.Text, voice.TriggerText)
		case protocol.Ping:
			s.metrics.WSMessages.WithLabelValues("in", string(protocol.EventPing)).Inc()
			if err := sess.SendJSON(protocol.Pong{Event: protocol.EventPong, Data: "pong"}); err != nil {
				return
			}
			s.metrics.WSMessages.WithLabelValues("out", string(protocol.EventPong)).Inc()
		}
	}
}

func (s *Server) consumeTranscripts(ctx context.Context, sess *session.Session, events <-chan voice.TranscriptEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case voice.TranscriptEventInterim, voice.TranscriptEventFinal:
				if err := sess.SendJSON(protocol.Transcript{Event: protocol.EventTranscript, Data: ev.Text}); err != nil {
					return
				}
				s.metrics.WSMessages.WithLabelValues("out", string(protocol.EventTranscript)).Inc()
				if ev.Type == voice.TranscriptEventFinal {
					s.turns.RunTurn(ctx, sess, ev.Text, voice.TriggerVoice)
				}
			case voice.TranscriptEventError:
				s.metrics.ProviderErrors.WithLabelValues("deepgram", ev.Code).Inc()
				log.Printf("session %s: transcription error (%s): %s", sess.ID, ev.Code, ev.Detail)
			}
		}
	}
}
