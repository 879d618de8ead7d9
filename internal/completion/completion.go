// ABOUTME: Session interface and factory for the hosted completion service
// ABOUTME: Replies arrive as channels of text increments, one channel per exchange

package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoCredential indicates no API key was configured. The caller decides
// what that means; the widget treats it as "run without a session" and lets
// every submission no-op silently.
var ErrNoCredential = errors.New("no completion API key configured")

// ErrUnknownProvider indicates an unrecognized provider name in the config.
var ErrUnknownProvider = errors.New("unknown completion provider")

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	// incrementBufferSize is the buffer on each per-exchange increment
	// channel. The exchange controller folds increments as fast as they
	// arrive, so this only smooths bursts.
	incrementBufferSize = 16
)

// Increment is one element of a streamed reply. A non-nil Err means the
// stream failed mid-flight; it is always the final element before the
// channel closes. Empty Text increments are valid and carry no content.
type Increment struct {
	Text string
	Err  error
}

// Session is a long-lived handle to the completion service. One session is
// created at widget initialization with a fixed model and system
// instruction, and it carries prior turns as context across exchanges.
//
// SendStream opens one reply stream. The returned channel yields increments
// in order and is closed after the final one. Open-time failures may
// surface either as a non-nil error or as a first in-band Err increment,
// depending on the provider; callers must handle both. The channel must be
// drained to completion — sessions assume a single consumer that never
// abandons a stream.
type Session interface {
	SendStream(ctx context.Context, text string) (<-chan Increment, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider          string // "gemini" (default) or "openai"
	Model             string
	APIKey            string
	SystemInstruction string
	BaseURL           string // optional, for OpenAI-compatible endpoints
}

// New creates a Session for the configured provider. It returns
// ErrNoCredential when no API key is set.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}

	switch cfg.Provider {
	case ProviderGemini, "":
		return newGeminiSession(ctx, cfg, logger)
	case ProviderOpenAI:
		return newOpenAISession(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
