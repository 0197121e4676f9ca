package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/misasoares/nexus-voice-to-voice-AI-poc/internal/reliability"
)

type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	TTSModel string
}

// OpenAISynthesizer generates speech via the OpenAI audio endpoint.
type OpenAISynthesizer struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.TTSModel) == "" {
		cfg.TTSModel = "tts-1"
	}
	return &OpenAISynthesizer{
		cfg: cfg,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type openAISpeechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, errors.New("openai synthesis unavailable: no api key configured")
	}
	if strings.TrimSpace(voice) == "" {
		voice = "alloy"
	}

	payload, err := json.Marshal(openAISpeechRequest{
		Model: s.cfg.TTSModel,
		Voice: voice,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/audio/speech"

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
			return nil, fmt.Errorf("create speech request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		res, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			res.Body.Close()
			lastErr = fmt.Errorf("openai speech status %d: %s", res.StatusCode, string(body))
			if reliability.IsRetryableHTTPStatus(res.StatusCode) {
				continue
			}
			return nil, lastErr
		}

		audio, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read speech response: %w", err)
		}
		return audio, nil
	}
	return nil, lastErr
}
