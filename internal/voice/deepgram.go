package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/reliability"
)

type DeepgramConfig struct {
	APIKey         string
	APIBaseURL     string
	WSBaseURL      string
	STTModel       string
	Language       string
	TTSModel       string
	UtteranceEndMS int
}

// DeepgramProvider implements live transcription over the Deepgram listen
// websocket and speech synthesis over the speak REST endpoint.
type DeepgramProvider struct {
	cfg    DeepgramConfig
	client *http.Client
}

func NewDeepgramProvider(cfg DeepgramConfig) *DeepgramProvider {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "https://api.deepgram.com"
	}
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.deepgram.com"
	}
	if strings.TrimSpace(cfg.STTModel) == "" {
		cfg.STTModel = "nova-2"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "pt-BR"
	}
	if strings.TrimSpace(cfg.TTSModel) == "" {
		cfg.TTSModel = "aura-asteria-en"
	}
	if cfg.UtteranceEndMS <= 0 {
		cfg.UtteranceEndMS = 1000
	}
	return &DeepgramProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (p *DeepgramProvider) StartSession(ctx context.Context) (TranscriptionSession, <-chan TranscriptEvent, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/listen")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model", p.cfg.STTModel)
	q.Set("language", p.cfg.Language)
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", strconv.Itoa(p.cfg.UtteranceEndMS))
	q.Set("vad_events", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial listen websocket: %w", err)
	}

	events := make(chan TranscriptEvent, 256)
	s := &deepgramSession{conn: conn, events: events, done: make(chan struct{})}
	s.ready.Store(true)

	events <- TranscriptEvent{Type: TranscriptEventOpen, Timestamp: time.Now().UnixMilli()}
	go s.readLoop()
	go s.keepaliveLoop()
	return s, events, nil
}

type deepgramSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	ready     atomic.Bool
	// events is owned by readLoop: only readLoop sends on it and only
	// readLoop closes it, on exit. Close signals done instead so a sender
	// blocked on a full buffer can never hit a closed channel.
	events chan TranscriptEvent
	done   chan struct{}
}

func (s *deepgramSession) Ready() bool { return s.ready.Load() }

func (s *deepgramSession) Send(audio []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

type deepgramListenMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// emit delivers one event unless the session is shutting down. Returns
// false once done is closed so the read loop can unwind.
func (s *deepgramSession) emit(ev TranscriptEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *deepgramSession) readLoop() {
	defer close(s.events)
	defer s.shutdown()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg deepgramListenMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "Results":
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			text := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
			if text == "" {
				continue
			}
			evType := TranscriptEventInterim
			if msg.IsFinal {
				evType = TranscriptEventFinal
			}
			if !s.emit(TranscriptEvent{Type: evType, Text: text, Timestamp: time.Now().UnixMilli()}) {
				return
			}
		case "UtteranceEnd", "SpeechStarted", "Metadata":
			// control events, nothing to surface
		case "Error":
			detail := msg.Description
			if detail == "" {
				detail = msg.Message
			}
			ev := TranscriptEvent{
				Type:      TranscriptEventError,
				Code:      msg.Type,
				Detail:    detail,
				Retryable: reliability.IsRetryableRealtimeMessageType(msg.Type),
				Timestamp: time.Now().UnixMilli(),
			}
			if !s.emit(ev) {
				return
			}
		}
	}
}

// keepaliveLoop keeps the listen socket open across silence; Deepgram drops
// connections idle for more than ~10 seconds.
func (s *deepgramSession) keepaliveLoop() {
	ticker := time.NewTicker(8 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *deepgramSession) Close() error { return s.shutdown() }

// shutdown stops the session once: signals done, tells Deepgram the stream
// is over, and closes the socket so a blocked ReadMessage returns. It never
// touches s.events; the read loop closes that on its own way out.
func (s *deepgramSession) shutdown() error {
	var retErr error
	s.closeOnce.Do(func() {
		s.ready.Store(false)
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()
		retErr = s.conn.Close()
	})
	return retErr
}

// Synthesize converts one sentence to audio with the aura speak endpoint.
// A voice with the aura- prefix selects the speak model directly; anything
// else keeps the configured default model.
func (p *DeepgramProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	model := p.cfg.TTSModel
	if strings.HasPrefix(voice, "aura-") {
		model = voice
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal speak request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.APIBaseURL, "/") + "/v1/speak?model=" + url.QueryEscape(model)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(reliability.ExponentialBackoff(attempt, 200*time.Millisecond, time.Second)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create speak request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+p.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		res, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			res.Body.Close()
			lastErr = fmt.Errorf("deepgram speak status %d: %s", res.StatusCode, string(body))
			if reliability.IsRetryableHTTPStatus(res.StatusCode) {
				continue
			}
			return nil, lastErr
		}

		audio, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read speak response: %w", err)
		}
		return audio, nil
	}
	return nil, lastErr
}
