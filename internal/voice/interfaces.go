package voice

import "context"

type TranscriptEventType string

const (
	TranscriptEventOpen    TranscriptEventType = "open"
	TranscriptEventInterim TranscriptEventType = "interim"
	TranscriptEventFinal   TranscriptEventType = "final"
	TranscriptEventError   TranscriptEventType = "error"
)

type TranscriptEvent struct {
	Type      TranscriptEventType
	Text      string
	Code      string
	Detail    string
	Retryable bool
	Timestamp int64
}

// TranscriptionSession is one live speech-to-text connection. Readiness must
// be checked before Send; frames sent to an unready session are dropped by
// the caller.
type TranscriptionSession interface {
	Ready() bool
	Send(audio []byte) error
	Close() error
}

type TranscriptionProvider interface {
	StartSession(ctx context.Context) (TranscriptionSession, <-chan TranscriptEvent, error)
}

// Synthesizer converts one sentence of text into a playable audio buffer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
