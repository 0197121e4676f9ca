package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/config"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/groq"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/observability"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/session"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/voice"
)

func testConfig() config.Config {
	return config.Config{
		AllowAnyOrigin:     true,
		ProviderMode:       "mock",
		DefaultTTSProvider: "openai",
		DefaultVoice:       "alloy",
	}
}

func newTestServer(t *testing.T, tokens []string) (*httptest.Server, *Server) {
	t.Helper()
	metrics := observability.NewMetrics(fmt.Sprintf("nexus_test_httpapi_%d", time.Now().UnixNano()))
	streamer := &groq.MockStreamer{Tokens: tokens}
	orch := voice.NewOrchestrator(streamer, map[string]voice.Synthesizer{
		"openai":   voice.NewMockSynthesizer(),
		"deepgram": voice.NewMockSynthesizer(),
	}, metrics)
	s := New(testConfig(), voice.NewMockProvider(), orch, session.NewRegistry(), metrics)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, s
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	if query != "" {
		u += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type clientEvent struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// collect reads frames until want is satisfied or the deadline passes.
func collect(t *testing.T, conn *websocket.Conn, want func(events []clientEvent, audio [][]byte) bool) ([]clientEvent, [][]byte) {
	t.Helper()
	var events []clientEvent
	var audio [][]byte
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if want(events, audio) {
			return events, audio
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (events=%v audio=%d)", err, events, len(audio))
		}
		if mt == websocket.BinaryMessage {
			audio = append(audio, data)
			continue
		}
		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		events = append(events, ev)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, res.StatusCode)
		}
		res.Body.Close()
	}
}

func TestPerfLatencyReturnsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	res, err := http.Get(srv.URL + "/v1/perf/latency")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	var snap observability.TurnStageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestRootWithoutUpgradeDescribesService(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	res, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestPingPongWireFormat(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	conn := dialWS(t, srv, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping","data":"1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(data); got != `{"event":"pong","data":"pong"}` {
		t.Fatalf("pong frame = %s", got)
	}
}

func TestTextInputStreamsTokensThenOrderedAudio(t *testing.T) {
	srv, _ := newTestServer(t, []string{"Bom dia.", " Tudo bem?"})
	conn := dialWS(t, srv, "ttsProvider=openai&voice=nova")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"text_input","text":"oi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	events, audio := collect(t, conn, func(events []clientEvent, audio [][]byte) bool {
		return len(audio) >= 2
	})

	var tokens []string
	for _, ev := range events {
		if ev.Event != "llm_token" {
			t.Fatalf("unexpected event %+v", ev)
		}
		tokens = append(tokens, ev.Data)
	}
	if strings.Join(tokens, "") != "Bom dia. Tudo bem?" {
		t.Fatalf("tokens = %v", tokens)
	}

	if got := string(audio[0]); !strings.HasSuffix(got, "Bom dia.") {
		t.Fatalf("audio[0] = %q", got)
	}
	if got := string(audio[1]); !strings.HasSuffix(got, "Tudo bem?") {
		t.Fatalf("audio[1] = %q", got)
	}
	if !strings.Contains(string(audio[0]), ":nova:") {
		t.Fatalf("audio[0] = %q, want requested voice", audio[0])
	}
}

func TestVoicePathTranscriptsThenTurn(t *testing.T) {
	srv, _ := newTestServer(t, []string{"Entendi."})
	conn := dialWS(t, srv, "")

	// The mock transcriber finalizes after 8 frames.
	for i := 0; i < 8; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x1a, byte(i)}); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}

	events, audio := collect(t, conn, func(events []clientEvent, audio [][]byte) bool {
		return len(audio) >= 1
	})

	sawInterim, sawFinal := false, false
	for _, ev := range events {
		if ev.Event == "transcript" {
			if ev.Data == "..." {
				sawInterim = true
			}
			if ev.Data == "entrada de voz simulada" {
				sawFinal = true
			}
		}
	}
	if !sawInterim || !sawFinal {
		t.Fatalf("events = %v, want interim and final transcripts", events)
	}
	if got := string(audio[0]); !strings.HasSuffix(got, "Entendi.") {
		t.Fatalf("audio[0] = %q", got)
	}
}

type unreadyProvider struct{}

type unreadySession struct{}

func (unreadySession) Ready() bool       { return false }
func (unreadySession) Send([]byte) error { return nil }
func (unreadySession) Close() error      { return nil }

func (unreadyProvider) StartSession(_ context.Context) (voice.TranscriptionSession, <-chan voice.TranscriptEvent, error) {
	events := make(chan voice.TranscriptEvent)
	return unreadySession{}, events, nil
}

func TestAudioBeforeReadyIsDroppedSilently(t *testing.T) {
	metrics := observability.NewMetrics(fmt.Sprintf("nexus_test_httpapi_unready_%d", time.Now().UnixNano()))
	orch := voice.NewOrchestrator(&groq.MockStreamer{Tokens: []string{"Oi."}}, map[string]voice.Synthesizer{
		"openai": voice.NewMockSynthesizer(),
	}, metrics)
	s := New(testConfig(), unreadyProvider{}, orch, session.NewRegistry(), metrics)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	conn := dialWS(t, srv, "")

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x00, 0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The connection stays interactive: the text path still answers.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"text_input","text":"oi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, audio := collect(t, conn, func(events []clientEvent, audio [][]byte) bool {
		return len(audio) >= 1
	})
	if !strings.HasSuffix(string(audio[0]), "Oi.") {
		t.Fatalf("audio = %q", audio[0])
	}
}

type brokenSynth struct{}

func (brokenSynth) Synthesize(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("synthesis unavailable")
}

func TestFailedSynthesisShowsUpInPerfIndicators(t *testing.T) {
	metrics := observability.NewMetrics(fmt.Sprintf("nexus_test_httpapi_skip_%d", time.Now().UnixNano()))
	orch := voice.NewOrchestrator(&groq.MockStreamer{Tokens: []string{"Oi."}}, map[string]voice.Synthesizer{
		"openai": brokenSynth{},
	}, metrics)
	s := New(testConfig(), voice.NewMockProvider(), orch, session.NewRegistry(), metrics)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	conn := dialWS(t, srv, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"text_input","text":"oi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		for _, ind := range metrics.TurnStageSnapshot().Indicators {
			if ind.Name == "synthesis_skipped" && ind.Count >= 1 {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("no synthesis_skipped indicator, snapshot = %+v", metrics.TurnStageSnapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPerfLatencyResetClearsWindow(t *testing.T) {
	srv, s := newTestServer(t, nil)

	s.metrics.ObserveTurnStage("turn_total", 12*time.Millisecond)
	s.metrics.ObserveTurnIndicator("synthesis_skipped")
	snap := s.metrics.TurnStageSnapshot()
	if len(snap.Stages) == 0 || len(snap.Indicators) == 0 {
		t.Fatalf("window empty before reset: %+v", snap)
	}

	res, err := http.Post(srv.URL+"/v1/perf/latency/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", res.StatusCode)
	}

	snap = s.metrics.TurnStageSnapshot()
	if len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("window not cleared: %+v", snap)
	}
}

func TestMalformedJSONControlFrameIsIgnored(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	conn := dialWS(t, srv, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"mystery"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Connection must remain open and answer a subsequent ping.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"pong"`) {
		t.Fatalf("frame = %s", data)
	}
}
