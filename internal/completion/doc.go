// Package completion adapts hosted conversational-AI services to a single
// streaming interface.
//
// # Overview
//
// The rest of the widget only knows about Session:
//
//	session, err := completion.New(ctx, cfg, logger)
//	ch, err := session.SendStream(ctx, "hello")
//	for inc := range ch {
//		// inc.Text is a partial reply; inc.Err, if set, ends the stream
//	}
//
// One Session is created at startup with a fixed model and system
// instruction and lives for the widget's lifetime. Sessions carry prior
// turns as context, so each exchange sends only the new user text.
//
// # Providers
//
//   - gemini (default): wraps a genai.Chat from google.golang.org/genai;
//     the SDK holds the conversation history.
//   - openai: uses sashabaranov/go-openai chat completions; the session
//     replays its own history each request. BaseURL in the config points
//     it at any OpenAI-compatible endpoint.
//
// # Failure Modes
//
// Providers differ in where open-time failures appear: go-openai reports
// them from SendStream directly, the genai iterator yields them as the
// first in-band Err increment. Consumers handle both. Mid-stream failures
// are always in-band and terminate the channel.
//
// # Missing Credentials
//
// New returns ErrNoCredential when no API key is configured. The widget
// deliberately runs anyway with a nil session and turns every submission
// into a silent no-op; nothing in this package retries or prompts.
package completion
