// ABOUTME: OpenAI-backed completion session using sashabaranov/go-openai
// ABOUTME: Holds the chat history itself and commits turns only on success

package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openaiSession streams replies via the chat completions API. Unlike the
// Gemini SDK it has no server-side chat handle, so the session carries the
// message history and replays it on every request.
//
// History is committed only when a stream completes cleanly: a failed
// exchange leaves no trace in session context, matching the discard of its
// partial reply. The single-flight constraint upstream means SendStream is
// never called concurrently; the channel close on each stream orders the
// history commit before the next send.
type openaiSession struct {
	client  *openai.Client
	model   string
	history []openai.ChatCompletionMessage
	logger  *slog.Logger
}

func newOpenAISession(cfg Config, logger *slog.Logger) *openaiSession {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	var history []openai.ChatCompletionMessage
	if cfg.SystemInstruction != "" {
		history = append(history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.SystemInstruction,
		})
	}

	return &openaiSession{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		history: history,
		logger:  logger.With("component", "completion", "provider", ProviderOpenAI),
	}
}

// SendStream opens one reply stream. Open-time failures (bad key, endpoint
// down) surface as a non-nil error with no channel.
func (s *openaiSession) SendStream(ctx context.Context, text string) (<-chan Increment, error) {
	msgs := make([]openai.ChatCompletionMessage, len(s.history), len(s.history)+1)
	copy(msgs, s.history)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}

	out := make(chan Increment, incrementBufferSize)

	go func() {
		defer close(out)
		defer stream.Close()

		var reply strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				s.history = append(msgs, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: reply.String(),
				})
				return
			}
			if err != nil {
				s.logger.Warn("completion stream failed", "error", err)
				out <- Increment{Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			delta := resp.Choices[0].Delta.Content
			reply.WriteString(delta)
			out <- Increment{Text: delta}
		}
	}()

	return out, nil
}
