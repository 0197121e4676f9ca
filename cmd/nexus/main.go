package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/config"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/groq"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/httpapi"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/observability"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/session"
	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/voice"
)

func main() {
	// Local development keeps credentials in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var (
		transcriber voice.TranscriptionProvider
		streamer    groq.Streamer
		synths      map[string]voice.Synthesizer
	)

	haveDeepgram := strings.TrimSpace(cfg.DeepgramAPIKey) != ""
	haveGroq := strings.TrimSpace(cfg.GroqAPIKey) != ""
	haveOpenAI := strings.TrimSpace(cfg.OpenAIAPIKey) != ""

	useLive := false
	switch cfg.ProviderMode {
	case "live":
		if !haveDeepgram {
			log.Fatalf("VOICE_PROVIDER_MODE=live but DEEPGRAM_API_KEY is not set")
		}
		if !haveGroq {
			log.Fatalf("VOICE_PROVIDER_MODE=live but GROQ_API_KEY is not set")
		}
		useLive = true
	case "mock":
	case "auto":
		useLive = haveDeepgram && haveGroq
		if !useLive {
			log.Printf("provider mode: mock (missing deepgram or groq credentials)")
		}
	}

	if useLive {
		deepgram := voice.NewDeepgramProvider(voice.DeepgramConfig{
			APIKey:         cfg.DeepgramAPIKey,
			APIBaseURL:     cfg.DeepgramAPIBaseURL,
			WSBaseURL:      cfg.DeepgramWSBaseURL,
			STTModel:       cfg.DeepgramSTTModel,
			Language:       cfg.DeepgramLanguage,
			TTSModel:       cfg.DeepgramTTSModel,
			UtteranceEndMS: cfg.UtteranceEndMS,
		})
		transcriber = deepgram
		streamer = groq.NewClient(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel)
		synths = map[string]voice.Synthesizer{
			"deepgram": deepgram,
			"openai": voice.NewOpenAISynthesizer(voice.OpenAIConfig{
				APIKey:   cfg.OpenAIAPIKey,
				BaseURL:  cfg.OpenAIBaseURL,
				TTSModel: cfg.OpenAITTSModel,
			}),
		}
		if !haveOpenAI {
			log.Printf("OPENAI_API_KEY is not set; openai synthesis will fail per sentence until configured")
		}
		log.Printf("providers: live (stt=%s lang=%s llm=%s)", cfg.DeepgramSTTModel, cfg.DeepgramLanguage, cfg.GroqModel)
	} else {
		mockSynth := voice.NewToneSynthesizer()
		transcriber = voice.NewMockProvider()
		streamer = groq.NewMockStreamer()
		synths = map[string]voice.Synthesizer{
			"deepgram": mockSynth,
			"openai":   mockSynth,
		}
		cfg.ProviderMode = "mock"
		log.Printf("providers: mock")
	}

	sessions := session.NewRegistry()
	orchestrator := voice.NewOrchestrator(streamer, synths, metrics)
	api := httpapi.New(cfg, transcriber, orchestrator, sessions, metrics)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
