package voice

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/groq"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/observability"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/protocol"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/session"
)

// Turn trigger sources.
const (
	TriggerVoice = "voice"
	TriggerText  = "text"
)

// Orchestrator runs one conversational turn: it streams model tokens to the
// client, cuts the token stream into sentence units, and enqueues one speech
// synthesis job per unit on the session's delivery queue.
type Orchestrator struct {
	streamer groq.Streamer
	synths   map[string]Synthesizer
	metrics  *observability.Metrics
}

func NewOrchestrator(streamer groq.Streamer, synths map[string]Synthesizer, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		streamer: streamer,
		synths:   synths,
		metrics:  metrics,
	}
}

// RunTurn starts the pipeline for one finalized input and returns
// immediately. Turns are not mutually exclusive per connection; ordering of
// the audible output is the delivery queue's concern.
func (o *Orchestrator) RunTurn(ctx context.Context, sess *session.Session, input, trigger string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	go o.runTurn(ctx, sess, input, trigger)
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *session.Session, input, trigger string) {
	finalAt := time.Now()
	o.metrics.Turns.WithLabelValues(trigger).Inc()

	queue := sess.Queue()
	if queue == nil {
		log.Printf("session %s: turn dropped, no audio queue attached", sess.ID)
		return
	}

	synth := o.synths[sess.Opts.TTSProvider]
	if synth == nil {
		log.Printf("session %s: no synthesizer for provider %q, turn is text-only", sess.ID, sess.Opts.TTSProvider)
	}

	seg := &Segmenter{}
	var firstToken, firstSentence, firstAudio sync.Once

	req := groq.ChatRequest{
		SystemInstruction: ResolveSystemInstruction(sess.Opts.SystemInstruction),
		UserText:          input,
	}

	_, err := o.streamer.StreamChat(ctx, req, func(delta string) error {
		firstToken.Do(func() {
			o.metrics.ObserveTurnStage("final_to_first_token", time.Since(finalAt))
		})
		if err := sess.SendJSON(protocol.LLMToken{Event: protocol.EventLLMToken, Data: delta}); err != nil {
			// Transport is gone; stop consuming the stream.
			return err
		}
		o.metrics.WSMessages.WithLabelValues("out", string(protocol.EventLLMToken)).Inc()

		if unit, ok := seg.Feed(delta); ok {
			firstSentence.Do(func() {
				o.metrics.ObserveTurnStage("final_to_first_sentence", time.Since(finalAt))
			})
			o.enqueueUnit(sess, queue, synth, unit, finalAt, &firstAudio)
		}
		return nil
	})
	if err != nil {
		o.metrics.ProviderErrors.WithLabelValues("groq", "stream").Inc()
		log.Printf("session %s: completion stream failed: %v", sess.ID, err)
		return
	}

	if unit, ok := seg.Flush(); ok {
		firstSentence.Do(func() {
			o.metrics.ObserveTurnStage("final_to_first_sentence", time.Since(finalAt))
		})
		o.enqueueUnit(sess, queue, synth, unit, finalAt, &firstAudio)
	}

	o.metrics.ObserveTurnStage("turn_total", time.Since(finalAt))
}

func (o *Orchestrator) enqueueUnit(sess *session.Session, queue session.AudioQueue, synth Synthesizer, unit string, finalAt time.Time, firstAudio *sync.Once) {
	if synth == nil {
		return
	}
	voice := sess.Opts.Voice
	provider := sess.Opts.TTSProvider

	gen := func(ctx context.Context) ([]byte, error) {
		start := time.Now()
		audio, err := synth.Synthesize(ctx, unit, voice)
		if err != nil {
			o.metrics.ProviderErrors.WithLabelValues(provider, "synthesis").Inc()
			return nil, err
		}
		o.metrics.ObserveSynthesisLatency(time.Since(start))
		o.metrics.ObserveTurnStage("sentence_to_audio_ready", time.Since(start))
		return audio, nil
	}

	queue.Enqueue(unit, gen, func(bytes int) {
		firstAudio.Do(func() {
			o.metrics.ObserveFirstAudioLatency(time.Since(finalAt))
			o.metrics.ObserveTurnStage("final_to_first_audio", time.Since(finalAt))
		})
	})
}
