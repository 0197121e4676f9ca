// Package session holds per-connection state for the realtime voice service.
package session

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Transcription is one live speech-to-text stream owned by the session.
type Transcription interface {
	Ready() bool
	Send(audio []byte) error
	Close() error
}

// AudioQueue delivers synthesized audio buffers to the transport in enqueue
// order.
type AudioQueue interface {
	Enqueue(text string, gen func(ctx context.Context) ([]byte, error), delivered func(bytes int))
	Close()
}

// Options is the connection configuration parsed once at connect time.
type Options struct {
	TTSProvider       string
	Voice             string
	SystemInstruction string
}

// ParseOptions reads connection query parameters, falling back to the
// configured defaults. An unknown ttsProvider value falls back to the
// default rather than rejecting the connection.
func ParseOptions(q url.Values, defaultProvider, defaultVoice string) Options {
	opts := Options{
		TTSProvider:       strings.ToLower(strings.TrimSpace(q.Get("ttsProvider"))),
		Voice:             strings.TrimSpace(q.Get("voice")),
		SystemInstruction: strings.TrimSpace(q.Get("systemInstruction")),
	}
	switch opts.TTSProvider {
	case "openai", "deepgram":
	case "":
		opts.TTSProvider = defaultProvider
	default:
		log.Printf("unknown ttsProvider %q, using %q", opts.TTSProvider, defaultProvider)
		opts.TTSProvider = defaultProvider
	}
	if opts.Voice == "" {
		opts.Voice = defaultVoice
	}
	return opts
}

// Session is the state for one live connection. It is created and destroyed
// by the connection lifecycle and read by the turn pipeline. Exactly one
// transcription stream is attached at a time.
type Session struct {
	ID   string
	Opts Options

	sendJSON   func(v any) error
	sendBinary func(b []byte) error

	mu            sync.Mutex
	transcription Transcription
	queue         AudioQueue

	closeOnce sync.Once
}

func New(opts Options, sendJSON func(v any) error, sendBinary func(b []byte) error) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Opts:       opts,
		sendJSON:   sendJSON,
		sendBinary: sendBinary,
	}
}

func (s *Session) SendJSON(v any) error { return s.sendJSON(v) }

func (s *Session) SendBinary(b []byte) error { return s.sendBinary(b) }

func (s *Session) AttachTranscription(t Transcription) {
	s.mu.Lock()
	s.transcription = t
	s.mu.Unlock()
}

func (s *Session) AttachQueue(q AudioQueue) {
	s.mu.Lock()
	s.queue = q
	s.mu.Unlock()
}

func (s *Session) Queue() AudioQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}

// ForwardAudio hands one inbound audio frame to the transcription stream.
// Frames arriving before the stream exists or is ready are dropped; the
// client keeps recording and later frames flow normally.
func (s *Session) ForwardAudio(frame []byte) bool {
	s.mu.Lock()
	t := s.transcription
	s.mu.Unlock()

	if t == nil || !t.Ready() {
		return false
	}
	if err := t.Send(frame); err != nil {
		log.Printf("session %s: audio forward failed: %v", s.ID, err)
		return false
	}
	return true
}

// Close tears down the owned collaborators. Safe to call from both the
// read-loop exit and the transport close handler; the transcription stream
// is closed exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		t := s.transcription
		q := s.queue
		s.transcription = nil
		s.queue = nil
		s.mu.Unlock()

		if t != nil {
			if err := t.Close(); err != nil {
				log.Printf("session %s: transcription close: %v", s.ID, err)
			}
		}
		if q != nil {
			q.Close()
		}
	})
}
