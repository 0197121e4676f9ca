package voice

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/audio"
)

// MockProvider is a local transcription fallback used when Deepgram is not
// configured. It emits an interim event per audio frame and a final event
// every few frames, so the full pipeline can be exercised without credentials.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) StartSession(_ context.Context) (TranscriptionSession, <-chan TranscriptEvent, error) {
	events := make(chan TranscriptEvent, 64)
	s := &mockTranscriptionSession{events: events}
	events <- TranscriptEvent{Type: TranscriptEventOpen, Timestamp: time.Now().UnixMilli()}
	return s, events, nil
}

type mockTranscriptionSession struct {
	mu     sync.Mutex
	events chan TranscriptEvent
	frames int
	closed bool
}

func (s *mockTranscriptionSession) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *mockTranscriptionSession) Send(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.frames++
	if len(audio) > 0 {
		s.events <- TranscriptEvent{Type: TranscriptEventInterim, Text: "...", Timestamp: time.Now().UnixMilli()}
	}
	if s.frames%8 == 0 {
		s.events <- TranscriptEvent{Type: TranscriptEventFinal, Text: "entrada de voz simulada", Timestamp: time.Now().UnixMilli()}
	}
	return nil
}

func (s *mockTranscriptionSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// ToneSynthesizer produces a playable WAV tone whose length tracks the text,
// so mock mode still exercises browser-side audio playback end to end.
type ToneSynthesizer struct{}

func NewToneSynthesizer() *ToneSynthesizer { return &ToneSynthesizer{} }

func (ToneSynthesizer) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	d := time.Duration(len([]rune(text))) * 45 * time.Millisecond
	if d < 200*time.Millisecond {
		d = 200 * time.Millisecond
	}
	if d > 3*time.Second {
		d = 3 * time.Second
	}
	return audio.EncodeWAVPCM16LE(audio.TonePCM16LE(440, d, 16000), 16000)
}

// MockSynthesizer returns a deterministic buffer derived from the input text.
// Buffers are distinguishable per sentence, which the ordering tests rely on.
type MockSynthesizer struct {
	// Delay simulates generation time.
	Delay time.Duration
}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var b strings.Builder
	b.WriteString("mock-audio:")
	b.WriteString(voice)
	b.WriteString(":")
	b.WriteString(text)
	return []byte(b.String()), nil
}
