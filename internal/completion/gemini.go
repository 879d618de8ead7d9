// ABOUTME: Gemini-backed completion session using the google.golang.org/genai SDK
// ABOUTME: Wraps a genai.Chat so the SDK carries conversation context between turns

package completion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// defaultGeminiModel is used when the config names no model.
const defaultGeminiModel = "gemini-2.0-flash"

// geminiSession streams replies from a single genai.Chat. The Chat records
// each completed turn itself, so history management stays inside the SDK.
type geminiSession struct {
	chat   *genai.Chat
	logger *slog.Logger
}

func newGeminiSession(ctx context.Context, cfg Config, logger *slog.Logger) (*geminiSession, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	var genCfg *genai.GenerateContentConfig
	if cfg.SystemInstruction != "" {
		genCfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		}
	}

	chat, err := client.Chats.Create(ctx, model, genCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	return &geminiSession{
		chat:   chat,
		logger: logger.With("component", "completion", "provider", ProviderGemini),
	}, nil
}

// SendStream opens one reply stream. The genai iterator reports failures as
// iteration errors, so open-time problems arrive in-band as the first
// increment's Err.
func (s *geminiSession) SendStream(ctx context.Context, text string) (<-chan Increment, error) {
	out := make(chan Increment, incrementBufferSize)

	go func() {
		defer close(out)

		for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				s.logger.Warn("completion stream failed", "error", err)
				out <- Increment{Err: err}
				return
			}
			out <- Increment{Text: chunkText(resp)}
		}
	}()

	return out, nil
}

// chunkText flattens the text parts of one streamed response chunk.
// Candidates without content yield an empty increment rather than an error.
func chunkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
