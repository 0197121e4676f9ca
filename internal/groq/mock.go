package groq

import (
	"context"
	"errors"
	"strings"
)

// MockStreamer emits a scripted token sequence; used in tests and in mock
// provider mode when no Groq key is configured.
type MockStreamer struct {
	// Tokens overrides the default echo behavior when non-empty.
	Tokens []string
	Err    error
}

func NewMockStreamer() *MockStreamer { return &MockStreamer{} }

func (m *MockStreamer) StreamChat(ctx context.Context, req ChatRequest, onDelta DeltaHandler) (ChatResponse, error) {
	if m.Err != nil {
		return ChatResponse{}, m.Err
	}

	tokens := m.Tokens
	if len(tokens) == 0 {
		tokens = []string{"Você disse: ", strings.TrimSpace(req.UserText), "."}
	}

	var out strings.Builder
	for _, tok := range tokens {
		select {
		case <-ctx.Done():
			return ChatResponse{}, ctx.Err()
		default:
		}
		out.WriteString(tok)
		if onDelta != nil {
			if err := onDelta(tok); err != nil {
				return ChatResponse{}, err
			}
		}
	}
	if out.Len() == 0 {
		return ChatResponse{}, errors.New("mock stream produced no tokens")
	}
	return ChatResponse{Text: out.String()}, nil
}
