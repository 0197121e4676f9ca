// nexusprobe drives a live server over its websocket like a browser client
// would and reports per-turn latencies.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type options struct {
	baseURL           string
	ttsProvider       string
	voice             string
	systemInstruction string
	turns             int
	turnTimeout       time.Duration
	interTurnDelay    time.Duration
	texts             []string
	verbose           bool
}

type wsEnvelope struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

var defaultUtterances = []string{
	"Responda em três palavras: qual o gargalo?",
	"Responda em três palavras: próxima otimização?",
	"Responda em três palavras: resumo da arquitetura?",
	"Responda em três palavras: maior risco?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nexusprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "nexusprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var texts string

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:3000", "server base URL")
	flag.StringVar(&cfg.ttsProvider, "tts-provider", "", "ttsProvider query param (openai|deepgram)")
	flag.StringVar(&cfg.voice, "voice", "", "voice query param")
	flag.StringVar(&cfg.systemInstruction, "system-instruction", "", "systemInstruction query param")
	flag.IntVar(&cfg.turns, "turns", 3, "number of text turns to run")
	flag.DurationVar(&cfg.turnTimeout, "turn-timeout", 20*time.Second, "max wait for a turn's first audio")
	flag.DurationVar(&cfg.interTurnDelay, "inter-turn-delay", 500*time.Millisecond, "pause between turns")
	flag.StringVar(&texts, "texts", "", "pipe-separated utterances (defaults built in)")
	flag.BoolVar(&cfg.verbose, "v", false, "log every received event")
	flag.Parse()

	if cfg.turns <= 0 {
		return cfg, fmt.Errorf("turns must be positive")
	}
	if texts != "" {
		for _, t := range strings.Split(texts, "|") {
			if s := strings.TrimSpace(t); s != "" {
				cfg.texts = append(cfg.texts, s)
			}
		}
	}
	if len(cfg.texts) == 0 {
		cfg.texts = defaultUtterances
	}
	return cfg, nil
}

func wsURL(cfg options) (string, error) {
	u, err := url.Parse(cfg.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/"
	q := u.Query()
	if cfg.ttsProvider != "" {
		q.Set("ttsProvider", cfg.ttsProvider)
	}
	if cfg.voice != "" {
		q.Set("voice", cfg.voice)
	}
	if cfg.systemInstruction != "" {
		q.Set("systemInstruction", cfg.systemInstruction)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type turnResult struct {
	text       string
	firstToken time.Duration
	firstAudio time.Duration
	audioBytes int
	tokens     int
}

func run(cfg options) error {
	target, err := wsURL(cfg)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	// Liveness check before measuring anything.
	if err := conn.WriteJSON(map[string]string{"event": "ping", "data": "probe"}); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read pong: %w", err)
	}
	var pong wsEnvelope
	if err := json.Unmarshal(data, &pong); err != nil || pong.Event != "pong" {
		return fmt.Errorf("unexpected ping reply: %s", data)
	}
	fmt.Println("connected, pong received")

	var results []turnResult
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		res, err := runTurn(conn, cfg, text)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		results = append(results, res)
		time.Sleep(cfg.interTurnDelay)
	}

	fmt.Println()
	fmt.Printf("%-42s %12s %12s %8s %10s\n", "utterance", "first_token", "first_audio", "tokens", "audio_b")
	for _, r := range results {
		fmt.Printf("%-42s %12s %12s %8d %10d\n",
			truncate(r.text, 42), r.firstToken.Round(time.Millisecond), r.firstAudio.Round(time.Millisecond), r.tokens, r.audioBytes)
	}
	return nil
}

func runTurn(conn *websocket.Conn, cfg options, text string) (turnResult, error) {
	res := turnResult{text: text}

	payload := map[string]string{"event": "text_input", "text": text}
	start := time.Now()
	if err := conn.WriteJSON(payload); err != nil {
		return res, fmt.Errorf("write text_input: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(cfg.turnTimeout))
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return res, fmt.Errorf("read: %w", err)
		}
		if mt == websocket.BinaryMessage {
			if res.firstAudio == 0 {
				res.firstAudio = time.Since(start)
			}
			res.audioBytes += len(data)
			// One buffer per sentence; the first one is enough to judge
			// perceived latency.
			if res.tokens > 0 {
				return res, nil
			}
			continue
		}

		var ev wsEnvelope
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if cfg.verbose {
			fmt.Printf("  <- %s %q\n", ev.Event, truncate(ev.Data, 60))
		}
		switch ev.Event {
		case "llm_token":
			if res.firstToken == 0 {
				res.firstToken = time.Since(start)
			}
			res.tokens++
		case "transcript":
			// Not expected on the text path; ignore.
		}

		if res.firstAudio != 0 && res.tokens > 0 {
			return res, nil
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
